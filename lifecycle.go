package vexa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vexasearch/vexa/affinity"
	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/cache"
	"github.com/vexasearch/vexa/index"
	"github.com/vexasearch/vexa/index/flat"
	"github.com/vexasearch/vexa/persistence"
	"github.com/vexasearch/vexa/pool"
	"github.com/vexasearch/vexa/resource"
)

// Initialize brings the engine from Created to Ready: it loads the index
// and metadata snapshots (or starts empty when none exist), and starts
// the worker pool and the cache.
//
// A snapshot that exists but fails format validation is fatal and
// surfaces as ErrInitialization; the engine returns to Created so a
// corrected setup can retry.
func (e *Engine) Initialize(ctx context.Context) error {
	if !e.transition(StateCreated, StateInitializing) {
		switch e.State() {
		case StateReady:
			return nil
		case StateShuttingDown, StateStopped:
			return ErrEngineClosed
		default:
			return fmt.Errorf("%w: concurrent initialization", ErrInitialization)
		}
	}

	if err := e.initialize(ctx); err != nil {
		e.transition(StateInitializing, StateCreated)
		if errors.Is(err, ErrInitialization) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInitialization, err)
	}

	e.transition(StateInitializing, StateReady)
	return nil
}

func (e *Engine) initialize(ctx context.Context) error {
	if e.store == nil {
		store, err := blobstore.NewLocalStore(".")
		if err != nil {
			return err
		}
		e.store = store
	}

	if e.rc == nil && (e.cfg.MemoryLimitBytes > 0 || e.cfg.IOLimitBytesPerSec > 0) {
		e.rc = resource.NewController(resource.Config{
			MemoryLimitBytes:   e.cfg.MemoryLimitBytes,
			IOLimitBytesPerSec: int64(e.cfg.IOLimitBytesPerSec),
		})
	}

	comp, err := persistence.ParseCompression(e.cfg.Compression)
	if err != nil {
		return err
	}
	e.pm = persistence.NewManager(e.store, func(o *persistence.Options) {
		o.Compression = comp
		o.Controller = e.rc
	})

	idx, err := e.openIndex(ctx)
	if err != nil {
		return err
	}
	e.setIndex(idx)

	if err := e.pm.LoadMetadata(ctx, e.cfg.MetadataPath, e.meta); err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			return translateLoadError(e.cfg.MetadataPath, err)
		}
	}

	if e.cfg.EnableCache {
		e.cache = cache.New(time.Duration(e.cfg.CacheTTLSeconds)*time.Second, func(o *cache.Options[SearchResult]) {
			o.Capacity = e.cfg.CacheCapacity
			o.Controller = e.rc
			o.SizeOf = resultSize
			o.Now = e.clock
		})
	}

	e.pool = pool.New(pool.Options{
		Workers:       e.cfg.NumWorkers,
		QueueCapacity: e.cfg.QueueCapacity,
		SubmitTimeout: time.Duration(e.cfg.SubmitTimeoutMS) * time.Millisecond,
		OnWorkerStart: e.workerStart(),
	})

	return nil
}

// openIndex loads the configured snapshot, or creates an empty index of
// the configured shape when no snapshot exists.
func (e *Engine) openIndex(ctx context.Context) (index.Index, error) {
	idx, err := e.pm.LoadIndex(ctx, e.cfg.IndexPath, e.metric, e.cfg.Dimension)
	if err == nil {
		e.logger.LogSnapshot(ctx, "load", e.cfg.IndexPath, nil)
		return idx, nil
	}
	if !errors.Is(err, blobstore.ErrNotFound) {
		e.logger.LogSnapshot(ctx, "load", e.cfg.IndexPath, err)
		return nil, translateLoadError(e.cfg.IndexPath, err)
	}

	return flat.New(func(o *flat.Options) {
		o.Dimension = e.cfg.Dimension
		o.Metric = e.metric
		o.Prefetch = e.cfg.EnablePrefetch
	})
}

// workerStart returns the pool's per-worker hook: CPU pinning when
// enabled, best effort only.
func (e *Engine) workerStart() func(int) func() {
	if !e.cfg.EnableAffinity {
		return nil
	}
	return func(workerID int) func() {
		release, err := affinity.Pin(workerID)
		if err != nil {
			e.logger.Debug("cpu pinning unavailable",
				"worker", workerID,
				"error", err,
			)
			return nil
		}
		return release
	}
}

// Shutdown stops accepting work, drains in-flight tasks up to the
// configured grace period and releases all resources. Terminal from every
// state: a concurrent Initialize is waited out so the engine cannot come
// back up afterwards. Idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	for {
		// Engines that never reached Ready just stop.
		if e.transition(StateCreated, StateStopped) {
			return nil
		}
		if e.transition(StateReady, StateShuttingDown) {
			break
		}
		switch e.State() {
		case StateShuttingDown, StateStopped:
			return nil
		case StateInitializing:
			// An in-flight Initialize settles to Ready or Created; wait
			// for it and claim whichever state it lands on.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Millisecond):
			}
		}
	}

	var err error
	if e.pool != nil {
		drainCtx := ctx
		if grace := time.Duration(e.cfg.ShutdownGraceMS) * time.Millisecond; grace > 0 {
			var cancel context.CancelFunc
			drainCtx, cancel = context.WithTimeout(ctx, grace)
			defer cancel()
		}
		err = e.pool.Shutdown(drainCtx)
	}

	if e.cache != nil {
		e.cache.Purge()
	}

	e.transition(StateShuttingDown, StateStopped)
	return err
}

// IsHealthy reports whether the engine can serve queries: it must be
// Ready, the index must pass a cheap self-check, and recent operations
// must not be failing in a streak.
func (e *Engine) IsHealthy() bool {
	if e.State() != StateReady {
		return false
	}

	idx := e.index()
	if idx == nil {
		return false
	}
	stats := idx.Stats()
	if stats.Count > 0 && stats.Dimension <= 0 {
		return false
	}

	return e.failureStreak.Load() < failureStreakLimit
}

// failureStreakLimit is the number of consecutive failed operations after
// which IsHealthy turns false.
const failureStreakLimit = 10

// resultSize estimates a cached result's memory footprint.
func resultSize(r SearchResult) int64 {
	size := int64(len(r.Indices))*8 + int64(len(r.Scores))*4
	for _, m := range r.Metadata {
		size += int64(len(m)) + 16
	}
	return size + 64
}

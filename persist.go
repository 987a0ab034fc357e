package vexa

import (
	"context"
	"errors"

	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/metadata"
)

// SaveIndex writes the index snapshot to the configured blob. It runs on
// the caller goroutine under the writer lock, never on query workers;
// concurrent searches keep reading the current snapshot.
func (e *Engine) SaveIndex(ctx context.Context) error {
	if err := e.requireReady(); err != nil {
		return err
	}

	start := e.clock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	err := e.pm.SaveIndex(ctx, e.cfg.IndexPath, e.index())
	e.metrics.RecordSnapshot("save_index", e.clock().Sub(start), err)
	e.logger.LogSnapshot(ctx, "save", e.cfg.IndexPath, err)
	return translateError(err)
}

// Save writes both the index and the metadata snapshot as a consistent
// pair: the writer lock is held across both so no mutation interleaves.
func (e *Engine) Save(ctx context.Context) error {
	if err := e.requireReady(); err != nil {
		return err
	}

	start := e.clock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.pm.SaveIndex(ctx, e.cfg.IndexPath, e.index()); err != nil {
		e.metrics.RecordSnapshot("save", e.clock().Sub(start), err)
		e.logger.LogSnapshot(ctx, "save", e.cfg.IndexPath, err)
		return translateError(err)
	}

	err := e.pm.SaveMetadata(ctx, e.cfg.MetadataPath, e.meta)
	e.metrics.RecordSnapshot("save", e.clock().Sub(start), err)
	e.logger.LogSnapshot(ctx, "save", e.cfg.MetadataPath, err)
	return translateError(err)
}

// LoadIndex replaces the live index (and metadata, when its snapshot
// exists) from the configured blobs. Searches dispatched before the swap
// finish against the old snapshot; later ones see the new state. The
// cache is invalidated.
func (e *Engine) LoadIndex(ctx context.Context) error {
	if err := e.requireReady(); err != nil {
		return err
	}

	start := e.clock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	idx, err := e.pm.LoadIndex(ctx, e.cfg.IndexPath, e.metric, e.cfg.Dimension)
	if err != nil {
		err = translateLoadError(e.cfg.IndexPath, err)
		e.metrics.RecordSnapshot("load_index", e.clock().Sub(start), err)
		e.logger.LogSnapshot(ctx, "load", e.cfg.IndexPath, err)
		return err
	}

	// Load metadata into a fresh store first so index and metadata swap
	// as a pair. A missing blob pairs the index with empty metadata.
	tmp := metadata.NewStore()
	if err := e.pm.LoadMetadata(ctx, e.cfg.MetadataPath, tmp); err != nil {
		if !errors.Is(err, blobstore.ErrNotFound) {
			err = translateLoadError(e.cfg.MetadataPath, err)
			e.metrics.RecordSnapshot("load_index", e.clock().Sub(start), err)
			e.logger.LogSnapshot(ctx, "load", e.cfg.MetadataPath, err)
			return err
		}
	}

	e.setIndex(idx)
	e.meta.Replace(tmp.ToMap())
	e.invalidateCache()

	e.metrics.RecordSnapshot("load_index", e.clock().Sub(start), nil)
	e.logger.LogSnapshot(ctx, "load", e.cfg.IndexPath, nil)
	return nil
}

package vexa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vexasearch/vexa/cache"
	"github.com/vexasearch/vexa/index"
)

// Search executes one similarity query.
//
// The request is validated, the cache consulted, and on a miss the query
// is dispatched to the worker pool against the index snapshot current at
// dispatch time. When the pool queue stays full past the submit timeout,
// Search fails with ErrOverloaded without executing the query.
func (e *Engine) Search(ctx context.Context, req *SearchRequest) (SearchResult, error) {
	if err := e.requireReady(); err != nil {
		return SearchResult{}, err
	}
	return e.searchOne(ctx, req)
}

// BatchSearch executes requests concurrently, preserving positional
// correspondence: result i answers request i. One request's failure does
// not fail the batch; the failed position carries Err and empty slices.
func (e *Engine) BatchSearch(ctx context.Context, reqs []*SearchRequest) ([]SearchResult, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}

	start := e.clock()
	results := make([]SearchResult, len(reqs))

	var wg sync.WaitGroup
	wg.Add(len(reqs))
	for i, req := range reqs {
		go func(i int, req *SearchRequest) {
			defer wg.Done()
			res, err := e.searchOne(ctx, req)
			if err != nil {
				res = SearchResult{Err: err}
			}
			results[i] = res
		}(i, req)
	}
	wg.Wait()

	failed := 0
	for i := range results {
		if results[i].Err != nil {
			failed++
		}
	}
	e.metrics.RecordBatchSearch(len(reqs), failed, e.clock().Sub(start))

	return results, nil
}

// WarmupCache runs queries through the normal miss path so their results
// are cached before traffic arrives. Fan-out is bounded by the worker
// count. Returns the first error encountered.
func (e *Engine) WarmupCache(ctx context.Context, queries [][]float32, k int) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if e.cache == nil {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, e.cfg.NumWorkers))

	for _, q := range queries {
		q := q
		g.Go(func() error {
			_, err := e.searchOne(ctx, &SearchRequest{Query: q, K: k})
			return err
		})
	}
	return g.Wait()
}

// searchOne is the shared single-query path for Search, BatchSearch and
// WarmupCache.
func (e *Engine) searchOne(ctx context.Context, req *SearchRequest) (SearchResult, error) {
	start := e.clock()

	if err := e.validateRequest(req); err != nil {
		e.recordSearch(req, SearchResult{}, start, err)
		return SearchResult{}, err
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	threshold := req.Threshold
	if threshold == nil {
		threshold = e.threshold
	}

	var key uint64
	var generation int64
	if e.cache != nil {
		key = cache.Fingerprint(req.Query, req.K, threshold, req.Filters)
		if res, ok := e.cache.Get(key); ok {
			res.FromCache = true
			res.LatencyMS = e.sinceMS(start)
			e.cacheHits.Add(1)
			e.recordSearch(req, res, start, nil)
			e.logger.LogSearch(ctx, requestID, req.K, len(res.Indices), true, e.clock().Sub(start), nil)
			return res, nil
		}
		e.cacheMisses.Add(1)
		// Observe the cache generation before dispatch: if a mutation
		// lands while the query runs, the result is served but never
		// cached.
		generation = e.cache.Generation()
	}

	res, err := e.dispatch(ctx, req, threshold)
	if err != nil {
		e.recordSearch(req, SearchResult{}, start, err)
		e.logger.LogSearch(ctx, requestID, req.K, 0, false, e.clock().Sub(start), err)
		return SearchResult{}, err
	}

	res.LatencyMS = e.sinceMS(start)

	if e.cache != nil {
		e.cache.SetIfCurrent(key, res, generation)
	}

	e.recordSearch(req, res, start, nil)
	e.logger.LogSearch(ctx, requestID, req.K, len(res.Indices), false, e.clock().Sub(start), nil)
	return res, nil
}

// dispatch runs the query on the worker pool and waits for the outcome.
// A caller abandoning via ctx stops the wait; dispatched index work runs
// to completion regardless.
func (e *Engine) dispatch(ctx context.Context, req *SearchRequest, threshold *float32) (SearchResult, error) {
	type outcome struct {
		res SearchResult
		err error
	}
	done := make(chan outcome, 1)

	err := e.pool.Submit(ctx, func() {
		res, err := e.execute(req, threshold)
		done <- outcome{res: res, err: err}
	})
	if err != nil {
		return SearchResult{}, translateError(err)
	}

	select {
	case out := <-done:
		return out.res, translateError(out.err)
	case <-ctx.Done():
		return SearchResult{}, ctx.Err()
	}
}

// execute runs on a pool worker against the index snapshot taken here.
func (e *Engine) execute(req *SearchRequest, threshold *float32) (SearchResult, error) {
	idx := e.index()

	opts := &index.SearchOptions{}
	if threshold != nil {
		opts.Threshold = *threshold
		opts.HasThreshold = true
	}
	if len(req.Filters) > 0 {
		bitmap := e.meta.FilterBitmap(req.Filters)
		opts.Filter = func(id int64) bool {
			return bitmap != nil && bitmap.Contains(uint64(id))
		}
	}

	candidates, err := idx.Search(req.Query, req.K, opts)
	if err != nil {
		return SearchResult{}, err
	}

	res := SearchResult{
		Indices:  make([]int64, len(candidates)),
		Scores:   make([]float32, len(candidates)),
		Metadata: make([]string, len(candidates)),
	}
	for i, c := range candidates {
		res.Indices[i] = c.ID
		res.Scores[i] = c.Score
		res.Metadata[i] = e.meta.Payload(c.ID)
	}
	return res, nil
}

func (e *Engine) validateRequest(req *SearchRequest) error {
	if req == nil {
		return fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if len(req.Query) == 0 {
		return fmt.Errorf("%w: empty query", ErrInvalidRequest)
	}
	if len(req.Query) != e.cfg.Dimension {
		return &ErrDimensionMismatch{Expected: e.cfg.Dimension, Actual: len(req.Query)}
	}
	if req.K < 1 {
		return fmt.Errorf("%w: k must be >= 1, got %d", ErrInvalidRequest, req.K)
	}
	if req.K > e.cfg.MaxResults {
		return fmt.Errorf("%w: k %d exceeds max_results %d", ErrInvalidRequest, req.K, e.cfg.MaxResults)
	}
	return nil
}

// recordSearch updates counters, streaks and the metrics collector.
// Request-side errors never count toward the failure streak: a run of
// malformed client requests says nothing about engine health.
func (e *Engine) recordSearch(req *SearchRequest, res SearchResult, start time.Time, err error) {
	elapsed := e.clock().Sub(start)
	e.searches.Add(1)
	e.latencyNanos.Add(elapsed.Nanoseconds())
	switch {
	case err == nil:
		e.failureStreak.Store(0)
	case !isRequestError(err):
		e.failureStreak.Add(1)
		e.lastErrorNanos.Store(e.clock().UnixNano())
	}

	k := 0
	if req != nil {
		k = req.K
	}
	e.metrics.RecordSearch(k, elapsed, res.FromCache, err)
}

// isRequestError reports errors caused by the request itself rather than
// the engine.
func isRequestError(err error) bool {
	var dim *ErrDimensionMismatch
	return errors.Is(err, ErrInvalidRequest) || errors.As(err, &dim)
}

func (e *Engine) sinceMS(start time.Time) float64 {
	return float64(e.clock().Sub(start).Nanoseconds()) / 1e6
}

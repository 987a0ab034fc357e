package vexa

import (
	"context"
	"fmt"

	"github.com/vexasearch/vexa/metadata"
)

// AddVectors inserts vectors with positionally aligned metadata entries
// and returns the assigned ids. entries may be nil (no metadata) but a
// non-nil entries slice must match vectors in length (ErrCountMismatch).
//
// The index and metadata store mutate together under the single writer
// lock; afterwards the result cache is invalidated. On any validation
// error nothing becomes visible.
func (e *Engine) AddVectors(ctx context.Context, vectors [][]float32, entries []metadata.Entry) ([]int64, error) {
	if err := e.requireReady(); err != nil {
		return nil, err
	}
	if entries != nil && len(entries) != len(vectors) {
		return nil, fmt.Errorf("%w: %d vectors, %d metadata entries",
			ErrCountMismatch, len(vectors), len(entries))
	}
	if len(vectors) == 0 {
		return nil, nil
	}

	start := e.clock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	ids, err := e.index().Insert(vectors)
	if err != nil {
		err = translateError(err)
		e.metrics.RecordAdd(len(vectors), e.clock().Sub(start), err)
		e.logger.LogAdd(ctx, len(vectors), err)
		return nil, err
	}

	for i, id := range ids {
		if entries != nil {
			e.meta.Set(id, entries[i])
		}
	}

	e.invalidateCache()

	e.metrics.RecordAdd(len(vectors), e.clock().Sub(start), nil)
	e.logger.LogAdd(ctx, len(vectors), nil)
	return ids, nil
}

// RemoveVectors deletes the given ids from the index and metadata store
// and invalidates the cache. Missing ids are ignored; removing an
// already-removed id is a no-op. Ids are never reused.
func (e *Engine) RemoveVectors(ctx context.Context, ids []int64) error {
	if err := e.requireReady(); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	start := e.clock()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	removed := e.index().Remove(ids)
	for _, id := range ids {
		e.meta.Remove(id)
	}

	e.invalidateCache()

	e.metrics.RecordRemove(removed, e.clock().Sub(start))
	e.logger.LogRemove(ctx, len(ids), removed)
	return nil
}

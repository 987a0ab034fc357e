// Package flat provides an exact-scan index backend.
//
// The backend keeps vectors in one contiguous float32 slice and evaluates
// every live row against the query, so recall is always 100%. It uses a
// copy-on-write state snapshot for lock-free concurrent reads: mutations
// build a new state under a write lock and publish it with a single atomic
// pointer swap, which gives searches snapshot-at-dispatch consistency
// without blocking them.
package flat

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vexasearch/vexa/distance"
	"github.com/vexasearch/vexa/index"
	"github.com/vexasearch/vexa/internal/queue"
)

// Kind is the registered backend name.
const Kind = "flat"

// KindCode is the byte identifying flat payloads in snapshot headers.
const KindCode uint8 = 1

func init() {
	index.Register(KindCode, Kind, func(dimension int, metric distance.Metric) (index.Index, error) {
		return New(func(o *Options) {
			o.Dimension = dimension
			o.Metric = metric
		})
	})
}

var _ index.Index = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality. Must be > 0.
	Dimension int

	// Metric selects the distance function.
	Metric distance.Metric

	// Prefetch touches vector memory ahead of the scan position.
	// Advisory; never affects results.
	Prefetch bool
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension: 0,
	Metric:    distance.MetricL2,
}

// indexState is the immutable snapshot readers operate on.
type indexState struct {
	ids     []int64         // row -> ID
	vectors []float32       // len(ids) * dimension, row-major
	rows    map[int64]int   // ID -> row
}

// Flat is an exact-scan index.
type Flat struct {
	state     atomic.Pointer[indexState]
	writeMu   sync.Mutex // serializes mutations only
	nextID    atomic.Int64
	dimension int
	distFunc  distance.Func
	normalize bool
	opts      Options
}

// New creates a new flat index. Dimension must be set.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := index.ValidateDimension(opts.Dimension); err != nil {
		return nil, err
	}

	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	f := &Flat{
		dimension: opts.Dimension,
		distFunc:  distFunc,
		normalize: opts.Metric == distance.MetricCosine,
		opts:      opts,
	}
	f.state.Store(&indexState{rows: map[int64]int{}})

	return f, nil
}

// Kind implements index.Index.
func (f *Flat) Kind() string { return Kind }

// Dimension implements index.Index.
func (f *Flat) Dimension() int { return f.dimension }

// Metric implements index.Index.
func (f *Flat) Metric() distance.Metric { return f.opts.Metric }

// Len returns the number of live vectors.
func (f *Flat) Len() int { return len(f.state.Load().ids) }

// Insert adds vectors and returns their assigned IDs.
//
// All vectors are validated before any state changes, so a dimension
// mismatch leaves the index untouched. IDs are assigned from a counter
// that only moves forward; removed IDs are never reused.
func (f *Flat) Insert(vectors [][]float32) ([]int64, error) {
	for _, v := range vectors {
		if len(v) != f.dimension {
			return nil, &index.ErrDimensionMismatch{Expected: f.dimension, Actual: len(v)}
		}
	}
	if len(vectors) == 0 {
		return []int64{}, nil
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.state.Load()
	st := f.cloneState(old, len(vectors))

	ids := make([]int64, len(vectors))
	for i, v := range vectors {
		id := f.nextID.Add(1) - 1
		ids[i] = id

		stored := v
		if f.normalize {
			if n, ok := distance.NormalizeL2Copy(v); ok {
				stored = n
			}
		}

		st.rows[id] = len(st.ids)
		st.ids = append(st.ids, id)
		st.vectors = append(st.vectors, stored...)
	}

	// New IDs become visible only here, after the full batch succeeded.
	f.state.Store(st)
	return ids, nil
}

// Remove deletes the given IDs, returning how many were present.
// Missing IDs are a no-op. In-flight searches keep scanning the snapshot
// they started with.
func (f *Flat) Remove(ids []int64) int {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	old := f.state.Load()

	removed := 0
	drop := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := old.rows[id]; !ok {
			continue
		}
		if _, dup := drop[id]; dup {
			continue
		}
		drop[id] = struct{}{}
		removed++
	}
	if removed == 0 {
		return 0
	}

	dim := f.dimension
	st := &indexState{
		ids:     make([]int64, 0, len(old.ids)-removed),
		vectors: make([]float32, 0, (len(old.ids)-removed)*dim),
		rows:    make(map[int64]int, len(old.ids)-removed),
	}
	for row, id := range old.ids {
		if _, gone := drop[id]; gone {
			continue
		}
		st.rows[id] = len(st.ids)
		st.ids = append(st.ids, id)
		st.vectors = append(st.vectors, old.vectors[row*dim:(row+1)*dim]...)
	}

	f.state.Store(st)
	return removed
}

// Search scans the current snapshot and returns up to k candidates
// ordered best-first, ties broken by ascending ID.
func (f *Flat) Search(query []float32, k int, opts *index.SearchOptions) ([]index.Candidate, error) {
	if len(query) != f.dimension {
		return nil, &index.ErrDimensionMismatch{Expected: f.dimension, Actual: len(query)}
	}
	if k <= 0 {
		return nil, fmt.Errorf("flat: k must be positive, got %d", k)
	}

	q := query
	if f.normalize {
		if n, ok := distance.NormalizeL2Copy(query); ok {
			q = n
		}
	}

	st := f.state.Load()
	dim := f.dimension
	ascending := f.opts.Metric.Ascending()

	topK := queue.NewTopK(k, ascending)
	for row, id := range st.ids {
		if opts != nil && opts.Filter != nil && !opts.Filter(id) {
			continue
		}
		if f.opts.Prefetch {
			// Touch the row after next to pull it into cache.
			if ahead := (row + 2) * dim; ahead < len(st.vectors) {
				_ = st.vectors[ahead]
			}
		}
		score := f.distFunc(q, st.vectors[row*dim:(row+1)*dim])
		if opts != nil && opts.HasThreshold && !f.opts.Metric.Meets(score, opts.Threshold) {
			continue
		}
		topK.Offer(id, score)
	}

	drained := topK.Drain()
	out := make([]index.Candidate, len(drained))
	for i, c := range drained {
		out[i] = index.Candidate{ID: c.ID, Score: c.Score}
	}
	return out, nil
}

// Stats implements index.Index.
func (f *Flat) Stats() index.Stats {
	st := f.state.Load()
	return index.Stats{
		Count:       len(st.ids),
		Dimension:   f.dimension,
		Kind:        Kind,
		MemoryBytes: int64(len(st.vectors))*4 + int64(len(st.ids))*8*2,
	}
}

func (f *Flat) cloneState(old *indexState, extra int) *indexState {
	st := &indexState{
		ids:     make([]int64, len(old.ids), len(old.ids)+extra),
		vectors: make([]float32, len(old.vectors), len(old.vectors)+extra*f.dimension),
		rows:    make(map[int64]int, len(old.rows)+extra),
	}
	copy(st.ids, old.ids)
	copy(st.vectors, old.vectors)
	for id, row := range old.rows {
		st.rows[id] = row
	}
	return st
}

// Package vexa is an embedded low-latency vector similarity search engine.
//
// The Engine orchestrates a vector index, a metadata store, a TTL result
// cache and a fixed worker pool behind a small API:
//
//	cfg := config.Default()
//	cfg.Dimension = 128
//
//	engine, err := vexa.New(cfg)
//	if err != nil {
//	    panic(err)
//	}
//	if err := engine.Initialize(ctx); err != nil {
//	    panic(err)
//	}
//	defer engine.Shutdown(ctx)
//
//	ids, _ := engine.AddVectors(ctx, vectors, entries)
//	res, _ := engine.Search(ctx, &vexa.SearchRequest{Query: query, K: 10})
//
// Concurrency model: searches run on a bounded worker pool and read a
// copy-on-write index snapshot taken at dispatch time; mutations are
// serialized by a single writer lock and never block readers. When the
// pool queue stays full past the submit timeout, Search fails fast with
// ErrOverloaded instead of queueing unbounded work.
package vexa

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/cache"
	"github.com/vexasearch/vexa/config"
	"github.com/vexasearch/vexa/distance"
	"github.com/vexasearch/vexa/index"
	"github.com/vexasearch/vexa/metadata"
	"github.com/vexasearch/vexa/persistence"
	"github.com/vexasearch/vexa/pool"
	"github.com/vexasearch/vexa/resource"
)

// State is the engine lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateInitializing
	StateReady
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// SearchRequest is one similarity query.
type SearchRequest struct {
	// Query is the query embedding. Its length must equal the configured
	// dimension.
	Query []float32

	// K is the requested result count, 1 <= K <= Config.MaxResults.
	K int

	// Threshold excludes results that do not meet the bound in the
	// metric's orientation. Nil falls back to the configured default.
	Threshold *float32

	// Filters restricts results to ids whose metadata attributes equal
	// every given value (logical AND).
	Filters map[string]string

	// RequestID is used for tracing only; it never affects cache keys.
	// Blank ids are assigned a UUID before logging.
	RequestID string
}

// SearchResult is the outcome of one query.
//
// Indices, Scores and Metadata always have equal length. For batch
// searches a failed position carries Err and empty slices.
type SearchResult struct {
	Indices   []int64   `json:"indices"`
	Scores    []float32 `json:"scores"`
	Metadata  []string  `json:"metadata"`
	LatencyMS float64   `json:"latency_ms"`
	FromCache bool      `json:"from_cache"`
	Err       error     `json:"-"`
}

// indexRef wraps the index interface so the current index can be swapped
// atomically under LoadIndex while searches hold their own snapshot.
type indexRef struct {
	idx index.Index
}

// Engine is the search orchestrator. Create with New, bring up with
// Initialize, release with Shutdown. All methods are safe for concurrent
// use.
type Engine struct {
	cfg       config.Config
	metric    distance.Metric
	threshold *float32

	state atomic.Int32

	// writeMu serializes mutations and snapshot operations. Searches
	// never take it.
	writeMu sync.Mutex

	idx   atomic.Pointer[indexRef]
	meta  *metadata.Store
	cache *cache.Cache[SearchResult]
	pool  *pool.Pool
	pm    *persistence.Manager
	store blobstore.Store
	rc    *resource.Controller

	logger  *Logger
	metrics MetricsCollector
	clock   func() time.Time

	searches       atomic.Int64
	cacheHits      atomic.Int64
	cacheMisses    atomic.Int64
	latencyNanos   atomic.Int64
	failureStreak  atomic.Int64
	lastErrorNanos atomic.Int64
}

// New creates an engine in the Created state. The configuration is
// validated here and immutable afterwards.
func New(cfg config.Config, optFns ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	metric, err := distance.Parse(cfg.Metric)
	if err != nil {
		return nil, err
	}

	opts := applyOptions(optFns)

	e := &Engine{
		cfg:       cfg,
		metric:    metric,
		threshold: cfg.SimilarityThreshold,
		meta:      metadata.NewStore(),
		store:     opts.store,
		rc:        opts.controller,
		logger:    opts.logger,
		metrics:   opts.metrics,
		clock:     opts.clock,
	}
	e.state.Store(int32(StateCreated))
	return e, nil
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// index returns the current index snapshot, or nil before Initialize.
func (e *Engine) index() index.Index {
	ref := e.idx.Load()
	if ref == nil {
		return nil
	}
	return ref.idx
}

func (e *Engine) setIndex(idx index.Index) {
	e.idx.Store(&indexRef{idx: idx})
}

// transition moves the state machine and logs the edge.
func (e *Engine) transition(from, to State) bool {
	if !e.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	e.logger.LogState(from, to)
	return true
}

// requireReady gates operations on the Ready state.
func (e *Engine) requireReady() error {
	switch e.State() {
	case StateReady:
		return nil
	case StateShuttingDown, StateStopped:
		return ErrEngineClosed
	default:
		return ErrEngineNotReady
	}
}

// invalidateCache applies the mutation invalidation policy. Both paths
// advance the cache generation, so a result computed before the mutation
// is never cached after it.
func (e *Engine) invalidateCache() {
	if e.cache == nil {
		return
	}
	if e.cfg.CacheTTLOnly {
		e.cache.Invalidate()
	} else {
		e.cache.Purge()
	}
}

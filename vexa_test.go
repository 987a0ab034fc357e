package vexa

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/config"
	"github.com/vexasearch/vexa/metadata"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Dimension = 4
	cfg.NumWorkers = 2
	cfg.QueueCapacity = 8
	cfg.SubmitTimeoutMS = 200
	cfg.CacheTTLSeconds = 60
	return cfg
}

func newTestEngine(t *testing.T, cfg config.Config, optFns ...Option) *Engine {
	t.Helper()

	opts := append([]Option{WithBlobStore(blobstore.NewMemoryStore())}, optFns...)
	e, err := New(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, e.Initialize(context.Background()))
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

// insertBasis adds the two unit vectors used across scenarios.
func insertBasis(t *testing.T, e *Engine) []int64 {
	t.Helper()

	ids, err := e.AddVectors(context.Background(), [][]float32{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
	}, []metadata.Entry{
		{Payload: "doc-0", Attributes: map[string]string{"lang": "en"}},
		{Payload: "doc-1", Attributes: map[string]string{"lang": "de"}},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{0, 1}, ids)
	return ids
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default() // dimension left at 0
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig()
	e, err := New(cfg, WithBlobStore(blobstore.NewMemoryStore()))
	require.NoError(t, err)
	assert.Equal(t, StateCreated, e.State())

	// Operations before Initialize fail.
	_, err = e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
	assert.ErrorIs(t, err, ErrEngineNotReady)

	require.NoError(t, e.Initialize(ctx))
	assert.Equal(t, StateReady, e.State())

	// Initialize again is a no-op.
	require.NoError(t, e.Initialize(ctx))

	require.NoError(t, e.Shutdown(ctx))
	assert.Equal(t, StateStopped, e.State())

	// Shutdown is idempotent.
	require.NoError(t, e.Shutdown(ctx))

	// Operations after shutdown fail closed.
	_, err = e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
	assert.ErrorIs(t, err, ErrEngineClosed)

	err = e.Initialize(ctx)
	assert.ErrorIs(t, err, ErrEngineClosed)
}

func TestShutdownBeforeInitialize(t *testing.T) {
	e, err := New(testConfig(), WithBlobStore(blobstore.NewMemoryStore()))
	require.NoError(t, err)

	require.NoError(t, e.Shutdown(context.Background()))
	assert.Equal(t, StateStopped, e.State())
}

func TestShutdownDuringInitializeIsTerminal(t *testing.T) {
	ctx := context.Background()
	e, err := New(testConfig(), WithBlobStore(blobstore.NewMemoryStore()))
	require.NoError(t, err)

	// Hold the engine mid-initialization, then let it reach Ready while
	// a Shutdown is pending. The shutdown must win.
	require.True(t, e.transition(StateCreated, StateInitializing))

	done := make(chan error, 1)
	go func() { done <- e.Shutdown(ctx) }()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateInitializing, e.State(), "shutdown must wait out initialization")

	require.True(t, e.transition(StateInitializing, StateReady))

	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, e.State())

	_, err = e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
	assert.ErrorIs(t, err, ErrEngineClosed)

	// An initialize that fails back to Created is also claimed.
	e2, err := New(testConfig(), WithBlobStore(blobstore.NewMemoryStore()))
	require.NoError(t, err)
	require.True(t, e2.transition(StateCreated, StateInitializing))
	go func() { done <- e2.Shutdown(ctx) }()
	time.Sleep(20 * time.Millisecond)
	require.True(t, e2.transition(StateInitializing, StateCreated))
	require.NoError(t, <-done)
	assert.Equal(t, StateStopped, e2.State())
}

func TestInitializeRejectsCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	require.NoError(t, store.Put(ctx, "index.bin", []byte("not a snapshot")))

	e, err := New(testConfig(), WithBlobStore(store))
	require.NoError(t, err)

	err = e.Initialize(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInitialization)

	var formatErr *ErrIndexFormat
	assert.ErrorAs(t, err, &formatErr)

	// The engine returns to Created so a corrected setup can retry.
	assert.Equal(t, StateCreated, e.State())

	require.NoError(t, store.Delete(ctx, "index.bin"))
	require.NoError(t, e.Initialize(ctx))
	assert.Equal(t, StateReady, e.State())
	require.NoError(t, e.Shutdown(ctx))
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cfg := testConfig()

	first := newTestEngine(t, cfg, WithBlobStore(store))
	insertBasis(t, first)

	query := &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 2}
	want, err := first.Search(ctx, query)
	require.NoError(t, err)

	require.NoError(t, first.Save(ctx))
	require.NoError(t, first.Shutdown(ctx))

	// A fresh engine over the same store reproduces the results.
	second := newTestEngine(t, cfg, WithBlobStore(store))
	got, err := second.Search(ctx, query)
	require.NoError(t, err)

	assert.Equal(t, want.Indices, got.Indices)
	assert.Equal(t, want.Scores, got.Scores)
	assert.Equal(t, want.Metadata, got.Metadata)
}

func TestLoadIndexReplacesLiveState(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()
	cfg := testConfig()

	e := newTestEngine(t, cfg, WithBlobStore(store))
	insertBasis(t, e)
	require.NoError(t, e.Save(ctx))

	// Diverge the live state, then restore the snapshot.
	_, err := e.AddVectors(ctx, [][]float32{{0, 0, 1, 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, e.GetStatistics().VectorCount)

	require.NoError(t, e.LoadIndex(ctx))
	assert.Equal(t, 2, e.GetStatistics().VectorCount)

	res, err := e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-0"}, res.Metadata)
}

func TestAddVectorsCountMismatch(t *testing.T) {
	e := newTestEngine(t, testConfig())

	_, err := e.AddVectors(context.Background(),
		[][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}},
		[]metadata.Entry{{Payload: "only-one"}},
	)
	assert.ErrorIs(t, err, ErrCountMismatch)

	// Nothing became visible.
	assert.Equal(t, 0, e.GetStatistics().VectorCount)
}

func TestRemoveVectorsIdempotent(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig())
	ids := insertBasis(t, e)

	require.NoError(t, e.RemoveVectors(ctx, ids[:1]))
	assert.Equal(t, 1, e.GetStatistics().VectorCount)

	// Removing again is a no-op, not an error.
	require.NoError(t, e.RemoveVectors(ctx, ids[:1]))
	assert.Equal(t, 1, e.GetStatistics().VectorCount)
}

func TestIDsNeverReused(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig())
	insertBasis(t, e)

	require.NoError(t, e.RemoveVectors(ctx, []int64{1}))

	ids, err := e.AddVectors(ctx, [][]float32{{0, 0, 1, 0}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestIsHealthy(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.NumWorkers = 1
	cfg.QueueCapacity = 1
	cfg.SubmitTimeoutMS = 10
	e := newTestEngine(t, cfg)
	insertBasis(t, e)
	assert.True(t, e.IsHealthy())

	// Malformed requests are the client's fault; any number of them says
	// nothing about engine health.
	for i := 0; i < failureStreakLimit; i++ {
		_, err := e.Search(ctx, &SearchRequest{Query: []float32{1}, K: 1})
		require.Error(t, err)
	}
	assert.True(t, e.IsHealthy())

	// A streak of engine-side failures flips health. Occupy the single
	// worker and the single queue slot so every search overloads.
	release := make(chan struct{})
	require.NoError(t, e.pool.Submit(ctx, func() { <-release }))
	require.Eventually(t, func() bool {
		return e.pool.Stats().QueueDepth == 0
	}, time.Second, time.Millisecond)
	require.NoError(t, e.pool.Submit(ctx, func() { <-release }))

	for i := 0; i < failureStreakLimit; i++ {
		_, err := e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
		require.ErrorIs(t, err, ErrOverloaded)
	}
	assert.False(t, e.IsHealthy())

	// One success resets the streak.
	close(release)
	require.Eventually(t, func() bool {
		_, err := e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
		return err == nil
	}, time.Second, 5*time.Millisecond)
	assert.True(t, e.IsHealthy())
}

func TestIsHealthyFalseWhenStopped(t *testing.T) {
	e := newTestEngine(t, testConfig())
	require.NoError(t, e.Shutdown(context.Background()))
	assert.False(t, e.IsHealthy())
}

func TestGetStatistics(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, testConfig())
	insertBasis(t, e)

	req := &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1}
	_, err := e.Search(ctx, req)
	require.NoError(t, err)
	_, err = e.Search(ctx, req) // cache hit
	require.NoError(t, err)

	stats := e.GetStatistics()
	assert.Equal(t, "ready", stats.State)
	assert.Equal(t, 2, stats.VectorCount)
	assert.Equal(t, 4, stats.Dimension)
	assert.Equal(t, "flat", stats.IndexKind)
	assert.Equal(t, int64(2), stats.TotalSearches)
	assert.True(t, stats.CacheEnabled)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(1), stats.CacheMisses)
	assert.InDelta(t, 0.5, stats.CacheHitRate, 1e-9)
	assert.Equal(t, 1, stats.CacheEntries)
	assert.Positive(t, stats.MemoryBytes)
	assert.Equal(t, 2, stats.Pool.Workers)
}

func TestMetricsCollectorReceivesEvents(t *testing.T) {
	ctx := context.Background()
	collector := &BasicMetricsCollector{}
	e := newTestEngine(t, testConfig(), WithMetricsCollector(collector))
	insertBasis(t, e)

	_, err := e.Search(ctx, &SearchRequest{Query: []float32{1, 0, 0, 0}, K: 1})
	require.NoError(t, err)
	require.NoError(t, e.RemoveVectors(ctx, []int64{0}))

	stats := collector.GetStats()
	assert.Equal(t, int64(1), stats.SearchCount)
	assert.Equal(t, int64(1), stats.AddCount)
	assert.Equal(t, int64(2), stats.AddVectors)
	assert.Equal(t, int64(1), stats.RemoveCount)
	assert.Equal(t, int64(1), stats.RemovedVectors)
}

func TestTranslateErrorPassthrough(t *testing.T) {
	assert.NoError(t, translateError(nil))

	sentinel := errors.New("untranslated")
	assert.Equal(t, sentinel, translateError(sentinel))
}

package vexa

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems.
type MetricsCollector interface {
	// RecordSearch is called after each search operation. k is the
	// requested result count, fromCache reports a cache hit, err is nil
	// on success.
	RecordSearch(k int, duration time.Duration, fromCache bool, err error)

	// RecordBatchSearch is called after each batch search. failed is the
	// number of positions that carry an error.
	RecordBatchSearch(count, failed int, duration time.Duration)

	// RecordAdd is called after each add operation with the vector count.
	RecordAdd(count int, duration time.Duration, err error)

	// RecordRemove is called after each remove operation with the number
	// of ids actually removed.
	RecordRemove(removed int, duration time.Duration)

	// RecordSnapshot is called after each snapshot save or load.
	RecordSnapshot(op string, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordSearch(int, time.Duration, bool, error) {}
func (NoopMetricsCollector) RecordBatchSearch(int, int, time.Duration)    {}
func (NoopMetricsCollector) RecordAdd(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordRemove(int, time.Duration)              {}
func (NoopMetricsCollector) RecordSnapshot(string, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	SearchCount      atomic.Int64
	SearchErrors     atomic.Int64
	SearchTotalNanos atomic.Int64
	CacheHits        atomic.Int64
	BatchCount       atomic.Int64
	BatchItems       atomic.Int64
	BatchFailed      atomic.Int64
	AddCount         atomic.Int64
	AddVectors       atomic.Int64
	AddErrors        atomic.Int64
	RemoveCount      atomic.Int64
	RemovedVectors   atomic.Int64
	SnapshotCount    atomic.Int64
	SnapshotErrors   atomic.Int64
}

// RecordSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSearch(k int, duration time.Duration, fromCache bool, err error) {
	b.SearchCount.Add(1)
	b.SearchTotalNanos.Add(duration.Nanoseconds())
	if fromCache {
		b.CacheHits.Add(1)
	}
	if err != nil {
		b.SearchErrors.Add(1)
	}
}

// RecordBatchSearch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchSearch(count, failed int, duration time.Duration) {
	b.BatchCount.Add(1)
	b.BatchItems.Add(int64(count))
	b.BatchFailed.Add(int64(failed))
}

// RecordAdd implements MetricsCollector.
func (b *BasicMetricsCollector) RecordAdd(count int, duration time.Duration, err error) {
	b.AddCount.Add(1)
	b.AddVectors.Add(int64(count))
	if err != nil {
		b.AddErrors.Add(1)
	}
}

// RecordRemove implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRemove(removed int, duration time.Duration) {
	b.RemoveCount.Add(1)
	b.RemovedVectors.Add(int64(removed))
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(op string, duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	stats := BasicMetricsStats{
		SearchCount:    b.SearchCount.Load(),
		SearchErrors:   b.SearchErrors.Load(),
		CacheHits:      b.CacheHits.Load(),
		BatchCount:     b.BatchCount.Load(),
		BatchItems:     b.BatchItems.Load(),
		BatchFailed:    b.BatchFailed.Load(),
		AddCount:       b.AddCount.Load(),
		AddVectors:     b.AddVectors.Load(),
		AddErrors:      b.AddErrors.Load(),
		RemoveCount:    b.RemoveCount.Load(),
		RemovedVectors: b.RemovedVectors.Load(),
		SnapshotCount:  b.SnapshotCount.Load(),
		SnapshotErrors: b.SnapshotErrors.Load(),
	}
	if stats.SearchCount > 0 {
		stats.SearchAvgNanos = b.SearchTotalNanos.Load() / stats.SearchCount
	}
	return stats
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	SearchCount    int64
	SearchErrors   int64
	SearchAvgNanos int64
	CacheHits      int64
	BatchCount     int64
	BatchItems     int64
	BatchFailed    int64
	AddCount       int64
	AddVectors     int64
	AddErrors      int64
	RemoveCount    int64
	RemovedVectors int64
	SnapshotCount  int64
	SnapshotErrors int64
}

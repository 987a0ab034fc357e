package vexa

import (
	"github.com/vexasearch/vexa/pool"
)

// Statistics is a point-in-time aggregate of engine, index, cache and
// pool counters. Collecting it never blocks in-flight searches.
type Statistics struct {
	State string `json:"state"`

	VectorCount int    `json:"vector_count"`
	Dimension   int    `json:"dimension"`
	Metric      string `json:"metric"`
	IndexKind   string `json:"index_kind"`
	MemoryBytes int64  `json:"memory_bytes"`

	TotalSearches int64   `json:"total_searches"`
	CacheEnabled  bool    `json:"cache_enabled"`
	CacheEntries  int     `json:"cache_entries"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	CacheHitRate  float64 `json:"cache_hit_rate"`
	AvgLatencyMS  float64 `json:"avg_latency_ms"`

	Pool pool.Stats `json:"pool"`
}

// GetStatistics aggregates current counters.
func (e *Engine) GetStatistics() Statistics {
	stats := Statistics{
		State:     e.State().String(),
		Dimension: e.cfg.Dimension,
		Metric:    e.metric.String(),
	}

	if idx := e.index(); idx != nil {
		is := idx.Stats()
		stats.VectorCount = is.Count
		stats.IndexKind = is.Kind
		stats.MemoryBytes = is.MemoryBytes
	}

	stats.TotalSearches = e.searches.Load()
	hits := e.cacheHits.Load()
	misses := e.cacheMisses.Load()
	stats.CacheHits = hits
	stats.CacheMisses = misses
	if total := hits + misses; total > 0 {
		stats.CacheHitRate = float64(hits) / float64(total)
	}
	if e.cache != nil {
		stats.CacheEnabled = true
		stats.CacheEntries = e.cache.Len()
	}
	if stats.TotalSearches > 0 {
		stats.AvgLatencyMS = float64(e.latencyNanos.Load()) / float64(stats.TotalSearches) / 1e6
	}

	if e.pool != nil {
		stats.Pool = e.pool.Stats()
	}

	return stats
}

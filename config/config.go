// Package config holds the engine configuration, loaded once at startup
// and immutable afterwards. Changing any setting requires a restart.
package config

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"github.com/vexasearch/vexa/distance"
	"github.com/vexasearch/vexa/persistence"
)

// Config is the full engine configuration.
type Config struct {
	// IndexPath is the blob name of the index snapshot.
	IndexPath string `yaml:"index_path"`
	// MetadataPath is the blob name of the metadata snapshot.
	MetadataPath string `yaml:"metadata_path"`

	// Dimension is the fixed vector dimensionality. Must be > 0.
	Dimension int `yaml:"dimension"`
	// Metric is "l2", "cosine" or "dot".
	Metric string `yaml:"metric"`

	// NumWorkers is the search pool size. 0 means GOMAXPROCS.
	NumWorkers int `yaml:"num_workers"`
	// QueueCapacity bounds the pool's task queue. 0 means 2x workers.
	QueueCapacity int `yaml:"queue_capacity"`
	// SubmitTimeoutMS is how long a submission waits for queue space
	// before failing as overloaded.
	SubmitTimeoutMS int `yaml:"submit_timeout_ms"`
	// ShutdownGraceMS bounds the drain of in-flight tasks on shutdown.
	ShutdownGraceMS int `yaml:"shutdown_grace_ms"`

	// EnableCache turns the result cache on.
	EnableCache bool `yaml:"enable_cache"`
	// CacheTTLSeconds is the result cache time-to-live.
	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
	// CacheCapacity bounds the number of cached results.
	CacheCapacity int `yaml:"cache_capacity"`
	// CacheTTLOnly skips the full cache flush on mutation and relies on
	// TTL expiry alone. Stale hits within the TTL are then possible.
	CacheTTLOnly bool `yaml:"cache_ttl_only"`

	// SimilarityThreshold applies when a request carries no threshold.
	// Nil means no default threshold.
	SimilarityThreshold *float32 `yaml:"similarity_threshold,omitempty"`
	// MaxResults caps k. Requests asking for more are invalid.
	MaxResults int `yaml:"max_results"`

	// EnableAffinity pins workers to CPUs where the platform allows it.
	EnableAffinity bool `yaml:"enable_affinity"`
	// EnablePrefetch turns on memory prefetch during index scans.
	EnablePrefetch bool `yaml:"enable_prefetch"`

	// Compression is the snapshot compression: "none", "s2" or "lz4".
	Compression string `yaml:"compression"`

	// MemoryLimitBytes caps tracked memory use. 0 disables the cap.
	MemoryLimitBytes int64 `yaml:"memory_limit_bytes"`
	// IOLimitBytesPerSec rate-limits snapshot I/O. 0 disables the limit.
	IOLimitBytesPerSec int `yaml:"io_limit_bytes_per_sec"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		IndexPath:       "index.bin",
		MetadataPath:    "metadata.bin",
		Dimension:       0,
		Metric:          "l2",
		NumWorkers:      runtime.GOMAXPROCS(0),
		QueueCapacity:   0,
		SubmitTimeoutMS: 100,
		ShutdownGraceMS: 5000,
		EnableCache:     true,
		CacheTTLSeconds: 300,
		CacheCapacity:   4096,
		MaxResults:      100,
		Compression:     "s2",
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c Config) Validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("config: dimension must be > 0, got %d", c.Dimension)
	}
	if _, err := distance.Parse(c.Metric); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.NumWorkers < 0 {
		return fmt.Errorf("config: num_workers must be >= 0, got %d", c.NumWorkers)
	}
	if c.QueueCapacity < 0 {
		return fmt.Errorf("config: queue_capacity must be >= 0, got %d", c.QueueCapacity)
	}
	if c.SubmitTimeoutMS < 0 {
		return fmt.Errorf("config: submit_timeout_ms must be >= 0, got %d", c.SubmitTimeoutMS)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("config: max_results must be > 0, got %d", c.MaxResults)
	}
	if c.EnableCache {
		if c.CacheTTLSeconds <= 0 {
			return fmt.Errorf("config: cache_ttl_seconds must be > 0 when the cache is enabled, got %d", c.CacheTTLSeconds)
		}
		if c.CacheCapacity <= 0 {
			return fmt.Errorf("config: cache_capacity must be > 0 when the cache is enabled, got %d", c.CacheCapacity)
		}
	}
	if _, err := persistence.ParseCompression(c.Compression); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.MemoryLimitBytes < 0 {
		return fmt.Errorf("config: memory_limit_bytes must be >= 0, got %d", c.MemoryLimitBytes)
	}
	if c.IOLimitBytesPerSec < 0 {
		return fmt.Errorf("config: io_limit_bytes_per_sec must be >= 0, got %d", c.IOLimitBytesPerSec)
	}
	return nil
}

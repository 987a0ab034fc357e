package vexa

import (
	"log/slog"
	"time"

	"github.com/vexasearch/vexa/blobstore"
	"github.com/vexasearch/vexa/resource"
)

type options struct {
	store      blobstore.Store
	controller *resource.Controller
	metrics    MetricsCollector
	logger     *Logger
	clock      func() time.Time
}

// Option configures Engine construction.
type Option func(*options)

// WithBlobStore sets where snapshots are read and written. Defaults to a
// local filesystem store rooted at the working directory; pass a
// blobstore.MemoryStore in tests or a MinIO store for object storage.
func WithBlobStore(store blobstore.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithResourceController shares a resource controller across engines so
// cache memory and snapshot I/O draw from one budget. If unset, the
// engine builds its own from the configured limits.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.controller = rc
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metrics = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metrics: NoopMetricsCollector{},
		logger:  NoopLogger(),
		clock:   time.Now,
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

package strata

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/strata-db/strata/compaction"
	"github.com/strata-db/strata/config"
	"github.com/strata-db/strata/event"
)

type options struct {
	logger           *slog.Logger
	metricsCollector MetricsCollector

	lockRetries       int
	lockRetryInterval time.Duration
	workers           int

	compactionPolicy compaction.Policy
	compactFn        compaction.CompactFunc

	mutationListeners []event.MutationListener
	statusListeners   []event.StatusUpdateListener

	cleanupLimiter *rate.Limiter
}

// Option configures Open behavior.
type Option func(*options)

// WithLogger configures structured logging. Pass nil to keep logging
// disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations.
//
// Example with BasicMetricsCollector:
//
//	metrics := &strata.BasicMetricsCollector{}
//	tbl, _ := strata.Open(id, blobs, strata.WithMetricsCollector(metrics))
//	// ... use tbl ...
//	stats := metrics.GetStats()
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc != nil {
			o.metricsCollector = mc
		}
	}
}

// WithLockRetry bounds lock acquisition: retries attempts with a fixed
// interval wait between them.
func WithLockRetry(retries int, interval time.Duration) Option {
	return func(o *options) {
		o.lockRetries = retries
		o.lockRetryInterval = interval
	}
}

// WithWorkers bounds the mutation executor's per-block fan-out.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithCompactionPolicy overrides the horizontal-compaction trigger
// policy.
func WithCompactionPolicy(p compaction.Policy) Option {
	return func(o *options) {
		if p != nil {
			o.compactionPolicy = p
		}
	}
}

// WithCompactFunc registers the function the background scheduler
// invokes with compaction candidates. Without it candidates are only
// logged; the physical merge lives outside this module.
func WithCompactFunc(fn compaction.CompactFunc) Option {
	return func(o *options) {
		o.compactFn = fn
	}
}

// WithMutationListener registers a listener for PreMutate/PostMutate
// notifications, typically index or view maintenance.
func WithMutationListener(l event.MutationListener) Option {
	return func(o *options) {
		if l != nil {
			o.mutationListeners = append(o.mutationListeners, l)
		}
	}
}

// WithStatusUpdateListener registers a listener for
// PreStatusUpdate/PostStatusUpdate notifications around load commits.
func WithStatusUpdateListener(l event.StatusUpdateListener) Option {
	return func(o *options) {
		if l != nil {
			o.statusListeners = append(o.statusListeners, l)
		}
	}
}

// WithCleanupRate throttles orphan-delta deletions to perSecond blob
// removals.
func WithCleanupRate(perSecond float64) Option {
	return func(o *options) {
		if perSecond > 0 {
			o.cleanupLimiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithConfig applies a loaded configuration file. Options appearing
// after it override its values.
func WithConfig(c config.Config) Option {
	return func(o *options) {
		if c.Lock.Retries > 0 {
			o.lockRetries = c.Lock.Retries
		}
		if c.Lock.RetryInterval > 0 {
			o.lockRetryInterval = c.Lock.RetryInterval
		}
		if c.Workers > 0 {
			o.workers = c.Workers
		}
		o.compactionPolicy = compaction.HorizontalPolicy{
			MaxDeltaFiles: c.Compaction.MaxDeltaFiles,
			MaxDeltaBytes: c.Compaction.MaxDeltaBytes,
		}
		if c.Cleanup.RatePerSecond > 0 {
			o.cleanupLimiter = rate.NewLimiter(rate.Limit(c.Cleanup.RatePerSecond), 1)
		}
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		logger:           slog.New(slog.DiscardHandler),
		metricsCollector: NoopMetricsCollector{},
		compactionPolicy: compaction.HorizontalPolicy{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

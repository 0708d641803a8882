package strata

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational
// metrics. Implement it to integrate with monitoring systems like
// Prometheus.
type MetricsCollector interface {
	// RecordDelete is called after each delete mutation. affected is
	// the number of rows tombstoned, err is nil on success.
	RecordDelete(affected int64, duration time.Duration, err error)

	// RecordUpdate is called after each update mutation.
	RecordUpdate(affected int64, duration time.Duration, err error)

	// RecordLoadCommit is called after each load commit or abort.
	RecordLoadCommit(duration time.Duration, err error)

	// RecordCleanup is called after each orphan-cleanup run. removed is
	// the number of reclaimed transactions.
	RecordCleanup(removed int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Used when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordDelete(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordUpdate(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordLoadCommit(time.Duration, error)    {}
func (NoopMetricsCollector) RecordCleanup(int, time.Duration, error)  {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external
// dependencies.
type BasicMetricsCollector struct {
	DeleteCount      atomic.Int64
	DeleteErrors     atomic.Int64
	DeletedRows      atomic.Int64
	DeleteTotalNanos atomic.Int64
	UpdateCount      atomic.Int64
	UpdateErrors     atomic.Int64
	UpdatedRows      atomic.Int64
	LoadCommitCount  atomic.Int64
	LoadCommitErrors atomic.Int64
	CleanupCount     atomic.Int64
	CleanupReclaimed atomic.Int64
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(affected int64, duration time.Duration, err error) {
	b.DeleteCount.Add(1)
	b.DeletedRows.Add(affected)
	b.DeleteTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordUpdate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordUpdate(affected int64, duration time.Duration, err error) {
	b.UpdateCount.Add(1)
	b.UpdatedRows.Add(affected)
	if err != nil {
		b.UpdateErrors.Add(1)
	}
}

// RecordLoadCommit implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLoadCommit(duration time.Duration, err error) {
	b.LoadCommitCount.Add(1)
	if err != nil {
		b.LoadCommitErrors.Add(1)
	}
}

// RecordCleanup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCleanup(removed int, duration time.Duration, err error) {
	b.CleanupCount.Add(1)
	b.CleanupReclaimed.Add(int64(removed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		DeleteCount:      b.DeleteCount.Load(),
		DeleteErrors:     b.DeleteErrors.Load(),
		DeletedRows:      b.DeletedRows.Load(),
		DeleteAvgNanos:   b.getAvgDeleteNanos(),
		UpdateCount:      b.UpdateCount.Load(),
		UpdateErrors:     b.UpdateErrors.Load(),
		UpdatedRows:      b.UpdatedRows.Load(),
		LoadCommitCount:  b.LoadCommitCount.Load(),
		LoadCommitErrors: b.LoadCommitErrors.Load(),
		CleanupCount:     b.CleanupCount.Load(),
		CleanupReclaimed: b.CleanupReclaimed.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgDeleteNanos() int64 {
	count := b.DeleteCount.Load()
	if count == 0 {
		return 0
	}
	return b.DeleteTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	DeleteCount      int64
	DeleteErrors     int64
	DeletedRows      int64
	DeleteAvgNanos   int64
	UpdateCount      int64
	UpdateErrors     int64
	UpdatedRows      int64
	LoadCommitCount  int64
	LoadCommitErrors int64
	CleanupCount     int64
	CleanupReclaimed int64
}

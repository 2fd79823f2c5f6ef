package segstore

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
type MetricsCollector interface {
	// RecordFile is called once per recording seen by Populate.
	// outcome is "processed" or a SkipReason.
	RecordFile(outcome string, rows int, duration time.Duration)

	// RecordPopulate is called when a population run ends.
	RecordPopulate(rows int64, duration time.Duration, err error)

	// RecordGet is called after each row retrieval by the loader.
	RecordGet(duration time.Duration, err error)

	// RecordBatch is called after each batch is assembled.
	RecordBatch(size int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordFile(string, int, time.Duration)      {}
func (NoopMetricsCollector) RecordPopulate(int64, time.Duration, error) {}
func (NoopMetricsCollector) RecordGet(time.Duration, error)             {}
func (NoopMetricsCollector) RecordBatch(int, time.Duration, error)      {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	FilesProcessed  atomic.Int64
	FilesSkipped    atomic.Int64
	RowsWritten     atomic.Int64
	PopulateRuns    atomic.Int64
	PopulateErrors  atomic.Int64
	GetCount        atomic.Int64
	GetErrors       atomic.Int64
	GetTotalNanos   atomic.Int64
	BatchCount      atomic.Int64
	BatchErrors     atomic.Int64
	BatchSamples    atomic.Int64
	BatchTotalNanos atomic.Int64
}

// RecordFile implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFile(outcome string, rows int, _ time.Duration) {
	if outcome == OutcomeProcessed {
		b.FilesProcessed.Add(1)
		b.RowsWritten.Add(int64(rows))
		return
	}
	b.FilesSkipped.Add(1)
}

// RecordPopulate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPopulate(_ int64, _ time.Duration, err error) {
	b.PopulateRuns.Add(1)
	if err != nil {
		b.PopulateErrors.Add(1)
	}
}

// RecordGet implements MetricsCollector.
func (b *BasicMetricsCollector) RecordGet(duration time.Duration, err error) {
	b.GetCount.Add(1)
	b.GetTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.GetErrors.Add(1)
	}
}

// RecordBatch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatch(size int, duration time.Duration, err error) {
	b.BatchCount.Add(1)
	b.BatchTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BatchErrors.Add(1)
		return
	}
	b.BatchSamples.Add(int64(size))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		FilesProcessed: b.FilesProcessed.Load(),
		FilesSkipped:   b.FilesSkipped.Load(),
		RowsWritten:    b.RowsWritten.Load(),
		PopulateRuns:   b.PopulateRuns.Load(),
		PopulateErrors: b.PopulateErrors.Load(),
		GetCount:       b.GetCount.Load(),
		GetErrors:      b.GetErrors.Load(),
		GetAvgNanos:    avg(b.GetTotalNanos.Load(), b.GetCount.Load()),
		BatchCount:     b.BatchCount.Load(),
		BatchErrors:    b.BatchErrors.Load(),
		BatchSamples:   b.BatchSamples.Load(),
		BatchAvgNanos:  avg(b.BatchTotalNanos.Load(), b.BatchCount.Load()),
	}
}

func avg(total, count int64) int64 {
	if count == 0 {
		return 0
	}
	return total / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	FilesProcessed int64
	FilesSkipped   int64
	RowsWritten    int64
	PopulateRuns   int64
	PopulateErrors int64
	GetCount       int64
	GetErrors      int64
	GetAvgNanos    int64
	BatchCount     int64
	BatchErrors    int64
	BatchSamples   int64
	BatchAvgNanos  int64
}

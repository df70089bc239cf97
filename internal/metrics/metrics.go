// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a load run.
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete systems live in subpackages (prompush, datadog) so the loader
//     depends only on this package.
package metrics

import (
	"sync"
	"time"
)

// Metric names emitted by the loader.
const (
	StepTotal           = "csvtopg_step_total"
	StepDurationSeconds = "csvtopg_step_duration_seconds"
	RowsTotal           = "csvtopg_rows_total"
	BatchesTotal        = "csvtopg_batches_total"
)

// Row kinds used with RecordRow.
const (
	KindRead    = "read"
	KindWritten = "written"
	KindSkipped = "skipped"
)

// Steps of a load run used with RecordStep.
const (
	StepConnect     = "connect"
	StepCreateTable = "create_table"
	StepCopy        = "copy"
	StepRun         = "run"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

var (
	// Steps lists every step a run records, in execution order.
	Steps = []string{StepConnect, StepCreateTable, StepCopy, StepRun}
	// Kinds lists every row kind a run records.
	Kinds = []string{KindRead, KindWritten, KindSkipped}
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b and returns the backend it replaced. Passing nil
// keeps the existing backend.
func SetBackend(b Backend) (prev Backend) {
	mu.Lock()
	defer mu.Unlock()
	prev = backend
	if b != nil {
		backend = b
	}
	return prev
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep counts one execution of step and observes its duration.
func RecordStep(job, step string, err error, d time.Duration) {
	status := StatusSuccess
	if err != nil {
		status = StatusFailure
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments the row counter for the given job and kind
// (KindRead, KindWritten, KindSkipped).
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the batch counter for the given job.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}

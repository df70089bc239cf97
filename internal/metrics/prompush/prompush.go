// Package prompush pushes load-run metrics to a Prometheus Pushgateway.
//
// A run is a short-lived batch job, so nothing is scraped: the backend
// collects into its own registry and Flush pushes the whole registry once at
// the end of the run. Every step and row-kind series is created up front, so
// a clean run still reports csvtopg_rows_total{kind="skipped"} 0 and a run
// that never reached the sink still reports its copy step at zero.
package prompush

import (
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"csvtopg/internal/metrics"
)

// StepBuckets spans one millisecond to a few minutes, which covers a single
// COPY batch as well as a whole multi-gigabyte load.
var StepBuckets = prometheus.ExponentialBuckets(0.001, 4, 10)

// Backend is a Pushgateway implementation of metrics.Backend.
type Backend struct {
	reg    *prometheus.Registry
	pusher *push.Pusher

	steps       *prometheus.CounterVec   // step, status
	stepSeconds *prometheus.HistogramVec // step, status
	rows        *prometheus.CounterVec   // kind
	batches     prometheus.Counter
}

// Option customizes a Backend.
type Option func(*push.Pusher)

// WithGrouping adds a grouping label to the push URL, for example the target
// table, so loads into different tables do not replace each other's group.
func WithGrouping(name, value string) Option {
	return func(p *push.Pusher) { p.Grouping(name, value) }
}

// WithClient sets the HTTP client used for pushes.
func WithClient(c push.HTTPDoer) Option {
	return func(p *push.Pusher) { p.Client(c) }
}

// NewBackend builds a backend that pushes under job to gatewayURL. The job
// label of recorded metrics is not used: the Pushgateway job group carries it.
func NewBackend(job, gatewayURL string, opts ...Option) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if job == "" {
		job = "csvtopg"
	}

	b := &Backend{
		reg: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Load steps executed (connect, create_table, copy, run) by status.",
		}, []string{"step", "status"}),
		stepSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Duration of load steps in seconds.",
			Buckets: StepBuckets,
		}, []string{"step", "status"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "CSV rows by outcome (read, written, skipped).",
		}, []string{"kind"}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Bulk-load batches acknowledged by the sink.",
		}),
	}
	for _, c := range []prometheus.Collector{b.steps, b.stepSeconds, b.rows, b.batches} {
		if err := b.reg.Register(c); err != nil {
			return nil, errors.Wrap(err, "prompush: register collector")
		}
	}
	for _, step := range metrics.Steps {
		for _, status := range []string{metrics.StatusSuccess, metrics.StatusFailure} {
			b.steps.WithLabelValues(step, status)
		}
	}
	for _, kind := range metrics.Kinds {
		b.rows.WithLabelValues(kind)
	}

	b.pusher = push.New(gatewayURL, job).Gatherer(b.reg)
	for _, opt := range opts {
		opt(b.pusher)
	}
	return b, nil
}

// Gatherer exposes the backend's registry.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta < 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rows.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.BatchesTotal:
		b.batches.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds {
		return
	}
	b.stepSeconds.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush replaces the job's group on the Pushgateway with the current registry.
func (b *Backend) Flush() error {
	if err := b.pusher.Push(); err != nil {
		return errors.Wrap(err, "prompush: push")
	}
	return nil
}

// Package datadog sends load-run metrics to a DogStatsD agent.
//
// Metric names are translated to dotted Datadog names under the "csvtopg."
// namespace (csvtopg_rows_total becomes csvtopg.rows), step durations are
// sent as distributions so percentiles aggregate across hosts, and the job
// becomes a global tag instead of a per-metric one.
package datadog

import (
	"sort"
	"sync"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/cockroachdb/errors"

	"csvtopg/internal/metrics"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "csvtopg."

var names = map[string]string{
	metrics.StepTotal:           "step.count",
	metrics.StepDurationSeconds: "step.duration",
	metrics.RowsTotal:           "rows",
	metrics.BatchesTotal:        "batches",
}

// Config holds the agent address and tagging.
type Config struct {
	// Addr is the DogStatsD address, e.g. "127.0.0.1:8125" or "unix:///var/run/datadog/dsd.socket".
	Addr string
	// Namespace defaults to DefaultNamespace.
	Namespace string
	// Job is sent as the "job" tag on every metric.
	Job string
	// Tags are extra global tags such as "env:prod".
	Tags []string
}

// Backend is a DogStatsD implementation of metrics.Backend.
type Backend struct {
	client statsd.ClientInterface

	mu  sync.Mutex
	err error // first send error, reported by Flush
}

// NewBackend connects a statsd client for cfg.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.Addr == "" {
		return nil, errors.New("datadog: Addr is required")
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = DefaultNamespace
	}
	tags := append([]string(nil), cfg.Tags...)
	if cfg.Job != "" {
		tags = append(tags, "job:"+cfg.Job)
	}
	c, err := statsd.New(cfg.Addr, statsd.WithNamespace(ns), statsd.WithTags(tags))
	if err != nil {
		return nil, errors.Wrap(err, "datadog: create client")
	}
	return newBackend(c), nil
}

func newBackend(c statsd.ClientInterface) *Backend { return &Backend{client: c} }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	dd, ok := names[name]
	if !ok || delta < 0 {
		return
	}
	b.keep(b.client.Count(dd, int64(delta), tags(labels), 1))
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	dd, ok := names[name]
	if !ok {
		return
	}
	b.keep(b.client.Distribution(dd, value, tags(labels), 1))
}

// Flush sends buffered metrics and reports the first error seen since the
// previous Flush.
func (b *Backend) Flush() error {
	ferr := b.client.Flush()
	b.mu.Lock()
	err := b.err
	b.err = nil
	b.mu.Unlock()
	if err == nil {
		err = ferr
	}
	if err != nil {
		return errors.Wrap(err, "datadog: flush")
	}
	return nil
}

// Close flushes and releases the client.
func (b *Backend) Close() error { return b.client.Close() }

func (b *Backend) keep(err error) {
	if err == nil {
		return
	}
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
}

// tags renders labels as sorted "key:value" tags. The job label is dropped
// since it is a global tag.
func tags(lbls metrics.Labels) []string {
	if len(lbls) == 0 {
		return nil
	}
	out := make([]string, 0, len(lbls))
	for k, v := range lbls {
		if k == "job" {
			continue
		}
		out = append(out, k+":"+v)
	}
	sort.Strings(out)
	return out
}

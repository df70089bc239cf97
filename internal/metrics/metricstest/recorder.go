// Package metricstest provides an in-memory metrics backend for tests.
package metricstest

import (
	"sort"
	"strings"
	"sync"
	"testing"

	"csvtopg/internal/metrics"
)

// Recorder is a metrics.Backend that keeps counter totals and histogram
// observations in memory, keyed by metric name and label set.
type Recorder struct {
	mu           sync.Mutex
	counters     map[string]float64
	observations map[string][]float64
	flushes      int
}

var _ metrics.Backend = (*Recorder)(nil)

// New returns an empty Recorder.
func New() *Recorder {
	return &Recorder{
		counters:     make(map[string]float64),
		observations: make(map[string][]float64),
	}
}

// Install makes a new Recorder the global backend until the test ends.
// Tests that call it must not run in parallel with each other.
func Install(t testing.TB) *Recorder {
	t.Helper()
	r := New()
	prev := metrics.SetBackend(r)
	t.Cleanup(func() { metrics.SetBackend(prev) })
	return r
}

func (r *Recorder) IncCounter(name string, delta float64, labels metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[Key(name, labels)] += delta
}

func (r *Recorder) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key(name, labels)
	r.observations[k] = append(r.observations[k], value)
}

func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushes++
	return nil
}

// Counter returns the total recorded for name with exactly labels.
func (r *Recorder) Counter(name string, labels metrics.Labels) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters[Key(name, labels)]
}

// Observations returns a copy of the values observed for name with exactly labels.
func (r *Recorder) Observations(name string, labels metrics.Labels) []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]float64(nil), r.observations[Key(name, labels)]...)
}

// Flushes reports how many times Flush was called.
func (r *Recorder) Flushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushes
}

// Key renders name and labels as name{k=v,...} with keys sorted.
func Key(name string, labels metrics.Labels) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(labels[k])
	}
	sb.WriteByte('}')
	return sb.String()
}

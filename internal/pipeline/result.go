// Package pipeline streams rows from a delimited text file into a relational
// sink.
//
// A Producer reads rows through a policy-aware csv.Reader and pushes them
// into a bounded Channel; a single Writer drains the channel in
// micro-batches, bulk-loads every batch and checks the sink's
// acknowledgment. Run wires the two together and always returns a Result.
package pipeline

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"csvtopg/internal/parser/csv"
)

var (
	// ErrConnection marks failures to reach or set up the sink.
	ErrConnection = errors.New("sink connection failure")

	// ErrAckMismatch marks a bulk-load acknowledgment that does not match
	// the expected "COPY <n>" form.
	ErrAckMismatch = errors.New("acknowledgment mismatch")
)

// Metrics are the counters of one run.
type Metrics struct {
	// RowsRead counts data rows the producer saw after the header: rows
	// queued for the sink plus rows dropped for a wrong field count.
	RowsRead int64
	// RowsWritten counts rows acknowledged by the sink.
	RowsWritten int64
	// RowsSkipped counts dropped rows, empty lines and undecodable records.
	RowsSkipped int64
	// Batches counts acknowledged bulk loads.
	Batches int64
	Elapsed time.Duration

	// ReadDigest and WrittenDigest are order-sensitive hashes of the rows
	// queued and the rows acknowledged. They are equal on a clean run.
	ReadDigest    uint64
	WrittenDigest uint64
}

// Result is the outcome of a run. An empty Errors list means success.
type Result struct {
	RunID   string
	Header  []string
	Metrics Metrics

	// Errors holds human-readable descriptions of fatal errors, with detail.
	Errors []string
	// Err is the first fatal error, for errors.Is checks.
	Err error

	// Diagnostics are the warnings emitted by skip-and-warn policies.
	Diagnostics []csv.Diagnostic
}

// OK reports whether the run finished without a fatal error.
func (r Result) OK() bool { return len(r.Errors) == 0 }

// fail records err as the run's fatal error unless one was already recorded.
// Later errors are discarded.
func (r *Result) fail(err error) {
	if err == nil {
		return
	}
	if r.Err == nil {
		r.Err = err
		r.Errors = append(r.Errors, fmt.Sprintf("%+v", err))
	}
}

package pipeline

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"csvtopg/internal/storage"
)

// fakeConn is an in-process sink. It records every batch and acknowledges
// with "COPY <n>" unless ack says otherwise.
type fakeConn struct {
	mu      sync.Mutex
	ensured int
	batches [][][]string
	closed  bool

	// delay is slept inside every CopyRows call.
	delay time.Duration
	// ack, when set, produces the acknowledgment of call i (0-based).
	ack func(i int, rows [][]string) (string, error)
	// onCopy, when set, is called before the acknowledgment is produced.
	onCopy func(rows [][]string)
}

var _ storage.Conn = (*fakeConn)(nil)

func (f *fakeConn) EnsureTable(context.Context, string, []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured++
	return nil
}

func (f *fakeConn) CopyRows(ctx context.Context, _ string, _ []string, rows [][]string) (string, error) {
	if f.onCopy != nil {
		f.onCopy(rows)
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	i := len(f.batches)
	f.batches = append(f.batches, rows)
	f.mu.Unlock()
	if f.ack != nil {
		return f.ack(i, rows)
	}
	return storage.FormatAck(int64(len(rows))), nil
}

func (f *fakeConn) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// rows returns every row the sink received, in order.
func (f *fakeConn) rows() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func (f *fakeConn) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeConn) connector() Connector {
	return func(context.Context) (storage.Conn, error) { return f, nil }
}

// stringSource serves a fixed input.
type stringSource string

func (s stringSource) Open(context.Context) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

// wellFormed builds a header with cols columns followed by n data rows.
func wellFormed(cols, n int) (string, [][]string) {
	var sb strings.Builder
	header := make([]string, cols)
	for c := range header {
		header[c] = fmt.Sprintf("c%d", c)
	}
	sb.WriteString(strings.Join(header, ",") + "\n")
	rows := make([][]string, n)
	for i := range rows {
		row := make([]string, cols)
		for c := range row {
			row[c] = fmt.Sprintf("r%dc%d", i, c)
		}
		rows[i] = row
		sb.WriteString(strings.Join(row, ",") + "\n")
	}
	return sb.String(), rows
}

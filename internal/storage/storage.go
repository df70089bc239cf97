// Package storage contains the sink contract the loader writes through and a
// registry of backends.
//
// A backend package (postgres, sqlite, mssql) registers an Opener for its kind
// at init time. Callers stay backend-agnostic: they call Open with a kind and
// a DSN and talk to the returned Conn. Import internal/storage/all to enable
// every built-in backend.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Conn is an open connection to a relational sink.
//
// CopyRows bulk-loads rows into table in the given order and returns the
// sink's textual acknowledgment, for example "COPY 42". The caller parses
// the acknowledgment; a Conn must not pretend success with a made-up count.
type Conn interface {
	// EnsureTable creates table with one unstructured text column per name
	// unless it already exists.
	EnsureTable(ctx context.Context, table string, columns []string) error

	CopyRows(ctx context.Context, table string, columns []string, rows [][]string) (ack string, err error)

	Close(ctx context.Context) error
}

// Opener connects to a sink identified by dsn.
type Opener func(ctx context.Context, dsn string) (Conn, error)

var (
	mu      sync.RWMutex
	openers = map[string]Opener{}
)

// Register registers (or replaces) the Opener for kind. It is typically
// called from backend packages' init() functions.
func Register(kind string, fn Opener) {
	if fn == nil {
		panic("storage: Register with nil Opener for kind " + kind)
	}
	mu.Lock()
	defer mu.Unlock()
	openers[kind] = fn
}

// Lookup returns the Opener registered for kind.
func Lookup(kind string) (Opener, error) {
	mu.RLock()
	fn, ok := openers[kind]
	mu.RUnlock()
	if !ok {
		return nil, errors.Newf("storage: unsupported kind %q (registered: %v)", kind, Kinds())
	}
	return fn, nil
}

// Open connects using the Opener registered for kind.
func Open(ctx context.Context, kind, dsn string) (Conn, error) {
	fn, err := Lookup(kind)
	if err != nil {
		return nil, err
	}
	return fn(ctx, dsn)
}

// Kinds lists the registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(openers))
	for k := range openers {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FormatAck renders the acknowledgment for n loaded rows in the form a
// Postgres COPY returns it. Backends without a native textual acknowledgment
// use it to report the count their driver returned.
func FormatAck(n int64) string { return fmt.Sprintf("COPY %d", n) }

// Package datasource defines where input bytes come from.
package datasource

import (
	"context"
	"io"
)

// Source opens the input stream of a run. Each call to Open yields a fresh
// reader that the caller must close.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

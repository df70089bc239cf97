// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// Local is a filesystem data source that opens one file from the local disk.
type Local struct {
	path   string
	offset int64
}

// Option configures a Local source.
type Option func(*Local)

// WithOffset starts reading at the given byte offset.
func WithOffset(off int64) Option {
	return func(l *Local) { l.offset = off }
}

// NewLocal returns a Local source bound to path. The value is safe for
// concurrent use; every Open returns an independent file handle.
func NewLocal(path string, opts ...Option) *Local {
	l := &Local{path: path}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Path returns the configured path.
func (l *Local) Path() string { return l.path }

// Open opens the configured path, seeks to the offset and hints the kernel
// that the file will be read sequentially.
//
// A canceled context short-circuits before touching the filesystem.
// Filesystem errors keep their identity for errors.Is (e.g. os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.offset < 0 {
		return nil, errors.Newf("open %s: negative offset %d", l.path, l.offset)
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", l.path)
	}
	if l.offset > 0 {
		if _, err := f.Seek(l.offset, io.SeekStart); err != nil {
			_ = f.Close()
			return nil, errors.Wrapf(err, "seek %s to %d", l.path, l.offset)
		}
	}
	adviseSequential(f, l.offset)
	return f, nil
}

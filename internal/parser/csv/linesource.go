package csv

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
)

// DefaultChunkSize is the read size used when none is configured.
const DefaultChunkSize = 4096

// LineSource splits a byte stream into separator-terminated lines. It reads
// the underlying stream in fixed-size chunks and keeps at most one partial
// line plus one chunk in memory. A separator split across two chunks is
// found because the search always covers the whole unconsumed buffer.
type LineSource struct {
	r         io.Reader
	sep       []byte
	chunkSize int

	buf     []byte // unconsumed bytes are buf[start:]
	start   int
	scanned int // bytes of buf[start:] already searched without a match
	eof     bool
}

// NewLineSource returns a LineSource over r. An empty sep defaults to "\n"
// and a non-positive chunkSize to DefaultChunkSize.
func NewLineSource(r io.Reader, sep []byte, chunkSize int) *LineSource {
	if len(sep) == 0 {
		sep = []byte{'\n'}
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &LineSource{
		r:         r,
		sep:       append([]byte(nil), sep...),
		chunkSize: chunkSize,
		buf:       make([]byte, 0, chunkSize),
	}
}

// Separator returns the configured line separator.
func (s *LineSource) Separator() []byte { return s.sep }

// NextLine returns the next line including its separator. The final line of
// a stream that does not end with a separator is returned without one. At
// end of stream it returns (nil, io.EOF). Read errors are returned as-is.
//
// The returned slice is only valid until the next call.
func (s *LineSource) NextLine() ([]byte, error) {
	for {
		pending := s.buf[s.start:]

		from := s.scanned - len(s.sep) + 1
		if from < 0 {
			from = 0
		}
		if i := bytes.Index(pending[from:], s.sep); i >= 0 {
			end := from + i + len(s.sep)
			line := pending[:end]
			s.start += end
			s.scanned = 0
			return line, nil
		}
		s.scanned = len(pending)

		if s.eof {
			if len(pending) == 0 {
				return nil, io.EOF
			}
			s.start += len(pending)
			s.scanned = 0
			return pending, nil
		}

		if err := s.fill(); err != nil {
			return nil, err
		}
	}
}

// fill appends one chunk from the underlying reader, compacting first so the
// buffer does not grow past the longest line plus one chunk.
func (s *LineSource) fill() error {
	if s.start > 0 {
		n := copy(s.buf, s.buf[s.start:])
		s.buf = s.buf[:n]
		s.start = 0
	}
	if cap(s.buf)-len(s.buf) < s.chunkSize {
		grown := make([]byte, len(s.buf), 2*cap(s.buf)+s.chunkSize)
		copy(grown, s.buf)
		s.buf = grown
	}

	n, err := s.r.Read(s.buf[len(s.buf) : len(s.buf)+s.chunkSize])
	s.buf = s.buf[:len(s.buf)+n]
	switch {
	case err == io.EOF:
		s.eof = true
		return nil
	case err != nil:
		return errors.Wrap(err, "read input chunk")
	}
	return nil
}

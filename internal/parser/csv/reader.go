// Package csv reads delimited text line by line and turns it into rows while
// applying configurable policies to malformed input.
//
// The pieces stack as follows:
//
//	LineSource  bytes -> separator-terminated lines (fixed-size chunk reads)
//	Charset     line bytes -> text (encoding + malformed-byte mode)
//	Decoder     text -> fields (quoting/escaping grammar, multi-line records)
//	Reader      policies for empty lines, wrong field counts and decode errors
//
// Nothing here buffers the whole input; memory is bounded by the longest
// record plus one read chunk.
package csv

import (
	"bytes"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

// Options configures a Reader.
type Options struct {
	Dialect Dialect

	// Charset decodes line bytes. Nil means UTF-8 with replacement.
	Charset *Charset

	// OnEmptyLine applies to lines consisting only of the separator.
	OnEmptyLine Policy

	// OnWrongLength applies to rows whose field count differs from the
	// expected count, and to lines that fail to decode.
	OnWrongLength Policy

	// ExpectedFields pre-establishes the arity. Zero means the first row
	// read establishes it.
	ExpectedFields int

	// Warn, when set, is called for every SkipWithWarning diagnostic in
	// addition to recording it.
	Warn func(Diagnostic)
}

// Reader yields rows from a LineSource. It is a lazy, finite sequence: Next
// returns io.EOF once the source is exhausted and keeps returning it.
// A Reader is not safe for concurrent use.
type Reader struct {
	src *LineSource
	dec *Decoder
	cs  *Charset

	checkEmpty bool
	checkArity bool
	onEmpty    handler
	onArity    handler
	onDecode   handler

	line     int
	expected int

	warnHook    func(Diagnostic)
	diags       []Diagnostic
	droppedRows int
	skipped     int
	done        bool
}

// NewReader builds a Reader over src. Policies are resolved to their handlers
// here, once.
func NewReader(src *LineSource, opts Options) (*Reader, error) {
	if src == nil {
		return nil, errors.New("csv: nil line source")
	}
	cs := opts.Charset
	if cs == nil {
		var err error
		if cs, err = NewCharset("utf-8", ErrorsReplace); err != nil {
			return nil, err
		}
	}
	expected := -1
	if opts.ExpectedFields > 0 {
		expected = opts.ExpectedFields
	}
	return &Reader{
		src:        src,
		dec:        NewDecoder(opts.Dialect),
		cs:         cs,
		checkEmpty: opts.OnEmptyLine != Ignore,
		checkArity: opts.OnWrongLength != Ignore,
		onEmpty:    handlerFor(opts.OnEmptyLine),
		onArity:    handlerFor(opts.OnWrongLength),
		onDecode:   handlerFor(opts.OnWrongLength),
		expected:   expected,
		warnHook:   opts.Warn,
	}, nil
}

// Line returns the number of the last physical line read (1-based).
func (r *Reader) Line() int { return r.line }

// Expected returns the established arity, or -1 before the first row.
func (r *Reader) Expected() int { return r.expected }

// Diagnostics returns the warnings recorded so far.
func (r *Reader) Diagnostics() []Diagnostic { return r.diags }

// DroppedRows counts decoded rows discarded for a wrong field count.
func (r *Reader) DroppedRows() int { return r.droppedRows }

// SkippedLines counts empty lines and undecodable records discarded.
func (r *Reader) SkippedLines() int { return r.skipped }

// Next returns the next row that passes the checks.
func (r *Reader) Next() ([]string, error) {
	if r.done {
		return nil, io.EOF
	}
	for {
		row, err := r.nextUnverified()
		if err != nil {
			var fe *FormatError
			if errors.As(err, &fe) && fe.Kind == KindDecode {
				if herr := r.onDecode(fe, r.warn); herr != nil {
					return nil, herr
				}
				r.skipped++
				continue
			}
			if err == io.EOF {
				r.done = true
			}
			return nil, err
		}

		if !r.checkArity {
			return row, nil
		}
		if r.expected < 0 {
			r.expected = len(row)
			return row, nil
		}
		if len(row) == r.expected {
			return row, nil
		}
		if herr := r.onArity(wrongLengthError(r.line, r.expected, len(row)), r.warn); herr != nil {
			return nil, herr
		}
		r.droppedRows++
	}
}

// nextUnverified decodes the next record, pulling continuation lines while a
// quoted field spans a separator.
func (r *Reader) nextUnverified() ([]string, error) {
	raw, err := r.readLine()
	if err != nil {
		return nil, err
	}
	start := r.line
	for {
		text, err := r.cs.Decode(raw)
		if err != nil {
			r.dec.Reset()
			return nil, decodeError(start, err)
		}
		body, term := r.splitTerminator(text)
		fields, more, err := r.dec.Decode(body, term)
		if err != nil {
			return nil, decodeError(start, err)
		}
		if !more {
			return fields, nil
		}

		raw, err = r.src.NextLine()
		if err == io.EOF {
			return nil, decodeError(start, r.dec.Finish())
		}
		if err != nil {
			return nil, err
		}
		r.line++
	}
}

// readLine returns the next line that starts a record, applying the
// empty-line policy.
func (r *Reader) readLine() ([]byte, error) {
	for {
		line, err := r.src.NextLine()
		if err != nil {
			return nil, err
		}
		r.line++
		if !r.checkEmpty || !r.isEmpty(line) {
			return line, nil
		}
		if herr := r.onEmpty(emptyLineError(r.line), r.warn); herr != nil {
			return nil, herr
		}
		r.skipped++
	}
}

func (r *Reader) isEmpty(line []byte) bool {
	sep := r.src.Separator()
	if bytes.Equal(line, sep) {
		return true
	}
	return isLF(sep) && bytes.Equal(line, []byte("\r\n"))
}

// splitTerminator separates the line terminator from the content. With a
// "\n" separator a preceding "\r" belongs to the terminator.
func (r *Reader) splitTerminator(text string) (body, term string) {
	sep := string(r.src.Separator())
	if !strings.HasSuffix(text, sep) {
		return text, ""
	}
	body = text[:len(text)-len(sep)]
	term = sep
	if isLF([]byte(sep)) && strings.HasSuffix(body, "\r") {
		body = body[:len(body)-1]
		term = "\r\n"
	}
	return body, term
}

func (r *Reader) warn(d Diagnostic) {
	r.diags = append(r.diags, d)
	if r.warnHook != nil {
		r.warnHook(d)
	}
}

func isLF(sep []byte) bool { return len(sep) == 1 && sep[0] == '\n' }

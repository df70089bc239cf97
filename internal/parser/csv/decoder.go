package csv

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Dialect describes the delimited-text grammar.
type Dialect struct {
	// Delimiter separates fields. Zero means ','.
	Delimiter rune
	// Quote encloses fields that embed the delimiter, quotes or line
	// separators. A doubled quote inside a quoted field is one literal quote.
	// Zero means '"'.
	Quote rune
	// Escape, when non-zero, makes the next character literal.
	Escape rune
	// LazyQuotes tolerates a quote in an unquoted field and characters after
	// a closing quote instead of reporting a decode error.
	LazyQuotes bool
}

var (
	errBareQuote      = errors.New(`bare " in non-quoted field`)
	errExtraneousQuot = errors.New(`extraneous or missing " in quoted field`)
	errUnterminated   = errors.New("unexpected end of data inside quoted field")
)

type decodeState int

const (
	stFieldStart decodeState = iota
	stUnquoted
	stQuoted
	stQuoteInQuoted
	stEscaped
)

// Decoder turns lines into fields. A record whose quoted field spans a line
// separator is decoded over several Decode calls; Decode reports more=true
// until the record is complete.
type Decoder struct {
	d Dialect

	state     decodeState
	resume    decodeState // state to return to after an escaped character
	field     strings.Builder
	fields    []string
	midRecord bool
}

// NewDecoder returns a Decoder for d, filling zero fields with defaults.
func NewDecoder(d Dialect) *Decoder {
	if d.Delimiter == 0 {
		d.Delimiter = ','
	}
	if d.Quote == 0 {
		d.Quote = '"'
	}
	return &Decoder{d: d}
}

// Dialect returns the effective dialect.
func (dec *Decoder) Dialect() Dialect { return dec.d }

// Decode consumes text, the content of one line without its terminator, and
// term, the terminator that was removed. It returns the record's fields once
// the record is complete. An empty text outside a record yields zero fields.
func (dec *Decoder) Decode(text, term string) (fields []string, more bool, err error) {
	dec.midRecord = true
	for _, c := range text {
		if err := dec.step(c); err != nil {
			dec.Reset()
			return nil, false, err
		}
	}

	switch dec.state {
	case stQuoted:
		dec.field.WriteString(term)
		return nil, true, nil
	case stEscaped:
		dec.field.WriteString(term)
		dec.state = dec.resume
		return nil, true, nil
	case stFieldStart:
		if len(dec.fields) > 0 {
			dec.emit()
		}
	default:
		dec.emit()
	}

	out := dec.fields
	dec.fields = nil
	dec.state = stFieldStart
	dec.midRecord = false
	if out == nil {
		out = []string{}
	}
	return out, false, nil
}

// Finish reports whether the stream ended inside a record.
func (dec *Decoder) Finish() error {
	if dec.midRecord {
		dec.Reset()
		return errUnterminated
	}
	return nil
}

// Reset discards any partial record.
func (dec *Decoder) Reset() {
	dec.state = stFieldStart
	dec.field.Reset()
	dec.fields = nil
	dec.midRecord = false
}

func (dec *Decoder) emit() {
	dec.fields = append(dec.fields, dec.field.String())
	dec.field.Reset()
	dec.state = stFieldStart
}

func (dec *Decoder) step(c rune) error {
	d := dec.d
	switch dec.state {
	case stFieldStart:
		switch {
		case c == d.Delimiter:
			dec.emit()
		case c == d.Quote:
			dec.state = stQuoted
		case d.Escape != 0 && c == d.Escape:
			dec.resume, dec.state = stUnquoted, stEscaped
		default:
			dec.field.WriteRune(c)
			dec.state = stUnquoted
		}

	case stUnquoted:
		switch {
		case c == d.Delimiter:
			dec.emit()
		case c == d.Quote:
			if !d.LazyQuotes {
				return errBareQuote
			}
			dec.field.WriteRune(c)
		case d.Escape != 0 && c == d.Escape:
			dec.resume, dec.state = stUnquoted, stEscaped
		default:
			dec.field.WriteRune(c)
		}

	case stQuoted:
		switch {
		case c == d.Quote:
			dec.state = stQuoteInQuoted
		case d.Escape != 0 && c == d.Escape:
			dec.resume, dec.state = stQuoted, stEscaped
		default:
			dec.field.WriteRune(c)
		}

	case stQuoteInQuoted:
		switch {
		case c == d.Quote:
			dec.field.WriteRune(c)
			dec.state = stQuoted
		case c == d.Delimiter:
			dec.emit()
		default:
			if !d.LazyQuotes {
				return errExtraneousQuot
			}
			dec.field.WriteRune(c)
			dec.state = stUnquoted
		}

	case stEscaped:
		dec.field.WriteRune(c)
		dec.state = dec.resume
	}
	return nil
}

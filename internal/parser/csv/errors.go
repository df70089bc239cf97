package csv

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRowFormat marks empty-line and wrong-field-count failures.
	ErrRowFormat = errors.New("row format error")

	// ErrDecode marks malformed field syntax or malformed byte sequences.
	ErrDecode = errors.New("decode error")

	// ErrEmptyInput is returned when the source has no header line.
	ErrEmptyInput = errors.New("empty input: no header line")
)

// Kind classifies a FormatError.
type Kind string

const (
	KindEmptyLine   Kind = "empty_line"
	KindWrongLength Kind = "wrong_length"
	KindDecode      Kind = "decode"
)

// FormatError describes a line that could not be turned into a valid row.
type FormatError struct {
	Line int
	Kind Kind
	Msg  string
}

// Error returns Msg, which already names the line.
func (e *FormatError) Error() string { return e.Msg }

// Is lets errors.Is match the error class: decode failures match ErrDecode,
// everything else matches ErrRowFormat.
func (e *FormatError) Is(target error) bool {
	if e.Kind == KindDecode {
		return target == ErrDecode
	}
	return target == ErrRowFormat
}

func emptyLineError(line int) *FormatError {
	return &FormatError{Line: line, Kind: KindEmptyLine, Msg: fmt.Sprintf("Empty line at line %d", line)}
}

func wrongLengthError(line, expected, found int) *FormatError {
	return &FormatError{
		Line: line,
		Kind: KindWrongLength,
		Msg: fmt.Sprintf("Incorrect record length at line %d (expected %d, found %d)",
			line, expected, found),
	}
}

func decodeError(line int, cause error) *FormatError {
	return &FormatError{Line: line, Kind: KindDecode, Msg: fmt.Sprintf("Malformed record at line %d: %v", line, cause)}
}

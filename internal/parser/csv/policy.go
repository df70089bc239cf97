package csv

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Policy selects what the Reader does when a line fails a check.
type Policy int

const (
	// Abort fails the read with a FormatError.
	Abort Policy = iota
	// SkipSilently drops the offending line.
	SkipSilently
	// SkipWithWarning drops the offending line and records a Diagnostic.
	SkipWithWarning
	// Ignore disables the check; the line is parsed as data.
	Ignore
)

var policyNames = map[Policy]string{
	Abort:           "exception",
	SkipSilently:    "skip_silently",
	SkipWithWarning: "skip_and_warn",
	Ignore:          "go_for_it_anyway",
}

func (p Policy) String() string {
	if s, ok := policyNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Policy(%d)", int(p))
}

// ParsePolicy accepts the configuration spelling of a policy. Both the
// historical names and the short aliases are recognized.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "exception", "abort", "error":
		return Abort, nil
	case "skip_silently", "skip":
		return SkipSilently, nil
	case "skip_and_warn", "warn", "":
		return SkipWithWarning, nil
	case "go_for_it_anyway", "ignore":
		return Ignore, nil
	}
	return Abort, errors.Newf("unknown error policy %q", s)
}

// MarshalText renders the canonical policy name.
func (p Policy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText parses a policy name.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Diagnostic is a warning about a dropped line.
type Diagnostic struct {
	Line    int
	Kind    Kind
	Message string
}

func (d Diagnostic) String() string { return d.Message }

// handler resolves one failed check. A nil return means the line is dropped;
// a non-nil return is fatal for the read.
type handler func(fe *FormatError, warn func(Diagnostic)) error

func abortHandler(fe *FormatError, _ func(Diagnostic)) error {
	return errors.WithStack(fe)
}

func skipHandler(*FormatError, func(Diagnostic)) error { return nil }

func warnHandler(fe *FormatError, warn func(Diagnostic)) error {
	warn(Diagnostic{Line: fe.Line, Kind: fe.Kind, Message: fe.Msg})
	return nil
}

// handlerFor maps a policy to its handler. Ignore never reaches a handler for
// the empty-line and arity checks (they are disabled); it only applies to
// decode failures, which cannot be passed through, so they are dropped with
// a warning.
func handlerFor(p Policy) handler {
	switch p {
	case Abort:
		return abortHandler
	case SkipSilently:
		return skipHandler
	default:
		return warnHandler
	}
}

package csv

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// Malformed byte handling modes.
const (
	ErrorsReplace = "replace" // substitute U+FFFD
	ErrorsStrict  = "strict"  // report a decode error
	ErrorsIgnore  = "ignore"  // drop the malformed bytes
)

var errMalformedBytes = errors.New("malformed byte sequence for input encoding")

// Charset decodes raw line bytes into UTF-8 text.
type Charset struct {
	name string
	enc  encoding.Encoding
	utf8 bool
	mode string
}

// NewCharset resolves name (a WHATWG/IANA label such as "utf-8", "latin1" or
// "windows-1250") and the malformed-byte mode.
func NewCharset(name, mode string) (*Charset, error) {
	if strings.TrimSpace(name) == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.Wrapf(err, "unknown encoding %q", name)
	}
	canonical, err := htmlindex.Name(enc)
	if err != nil {
		canonical = strings.ToLower(name)
	}

	switch mode {
	case "":
		mode = ErrorsReplace
	case ErrorsReplace, ErrorsStrict, ErrorsIgnore:
	default:
		return nil, errors.Newf("unknown encoding error mode %q", mode)
	}

	return &Charset{name: canonical, enc: enc, utf8: canonical == "utf-8", mode: mode}, nil
}

// Name returns the canonical encoding name.
func (c *Charset) Name() string { return c.name }

// Decode converts raw to a string according to the malformed-byte mode.
func (c *Charset) Decode(raw []byte) (string, error) {
	if c.utf8 {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		if c.mode == ErrorsStrict {
			return "", errMalformedBytes
		}
	}

	var t transform.Transformer = c.enc.NewDecoder()
	if c.mode == ErrorsIgnore {
		t = transform.Chain(t, runes.Remove(runes.Predicate(func(r rune) bool { return r == utf8.RuneError })))
	}
	out, _, err := transform.Bytes(t, raw)
	if err != nil {
		return "", errors.Wrap(errMalformedBytes, err.Error())
	}
	if c.mode == ErrorsStrict && !c.utf8 && strings.ContainsRune(string(out), utf8.RuneError) {
		return "", errMalformedBytes
	}
	return string(out), nil
}

package csv

import (
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/text/unicode/norm"
)

const utf8BOM = "\uFEFF"

// StripHeaderBOM removes a UTF-8 BOM from the first header cell if present.
func StripHeaderBOM(headers []string) []string {
	if len(headers) == 0 {
		return headers
	}
	if strings.HasPrefix(headers[0], utf8BOM) {
		headers[0] = strings.TrimPrefix(headers[0], utf8BOM)
	}
	return headers
}

// NormalizeHeader returns the column names a header row defines: BOM
// stripped, surrounding space trimmed, NFC-normalized. Empty and duplicate
// names are rejected because a table cannot be created from them.
func NormalizeHeader(cells []string) ([]string, error) {
	if len(cells) == 0 {
		return nil, errors.New("header row has no columns")
	}
	out := StripHeaderBOM(append([]string(nil), cells...))
	seen := make(map[string]int, len(out))
	for i, c := range out {
		c = norm.NFC.String(strings.TrimSpace(c))
		if c == "" {
			return nil, errors.Newf("header column %d has an empty name", i+1)
		}
		if j, dup := seen[c]; dup {
			return nil, errors.Newf("header columns %d and %d are both named %q", j+1, i+1, c)
		}
		seen[c] = i
		out[i] = c
	}
	return out, nil
}

package pipeline

import (
	"regexp"
	"strconv"

	"github.com/cockroachdb/errors"
)

// ackPattern is the acknowledgment a bulk load must return, e.g. "COPY 42".
var ackPattern = regexp.MustCompile(`^COPY\s+(\d+)\s*$`)

// ParseCopyAck extracts the row count from a bulk-load acknowledgment. Any
// other text is an ErrAckMismatch.
func ParseCopyAck(ack string) (int64, error) {
	m := ackPattern.FindStringSubmatch(ack)
	if m == nil {
		return 0, errors.Mark(errors.Newf("unexpected bulk-load acknowledgment %q", ack), ErrAckMismatch)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, errors.Mark(errors.Wrapf(err, "bulk-load acknowledgment %q", ack), ErrAckMismatch)
	}
	return n, nil
}

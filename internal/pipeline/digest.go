package pipeline

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// digest is an order-sensitive xxh3 hash over a sequence of rows. Fields are
// length-prefixed so that ["ab","c"] and ["a","bc"] hash differently.
type digest struct {
	h   *xxh3.Hasher
	buf []byte
}

func newDigest() *digest { return &digest{h: xxh3.New()} }

func (d *digest) add(row []string) {
	d.buf = binary.AppendUvarint(d.buf[:0], uint64(len(row)))
	for _, f := range row {
		d.buf = binary.AppendUvarint(d.buf, uint64(len(f)))
		d.buf = append(d.buf, f...)
	}
	_, _ = d.h.Write(d.buf)
}

func (d *digest) sum() uint64 { return d.h.Sum64() }

package pipeline

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"csvtopg/internal/parser/csv"
)

// ProducerResult is what a producer reports when it stops.
type ProducerResult struct {
	RowsRead    int64
	RowsSkipped int64
	Digest      uint64
	// Err is the fatal error that stopped reading. Cancellation is not an
	// error.
	Err error
}

// Producer reads the header, then pushes every following row into a Channel.
type Producer struct {
	r   *csv.Reader
	log *zap.Logger

	headerOnce sync.Once
	header     []string
	headerErr  error

	// dropped rows and skipped lines seen while reading the header
	baseDropped int
	baseSkipped int
}

// NewProducer returns a Producer reading from r.
func NewProducer(r *csv.Reader, log *zap.Logger) *Producer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Producer{r: r, log: log}
}

// Header reads and normalizes the first row. It is read once; later calls
// return the same values. An input without any row yields csv.ErrEmptyInput.
func (p *Producer) Header() ([]string, error) {
	p.headerOnce.Do(func() {
		row, err := p.r.Next()
		switch {
		case err == io.EOF:
			p.headerErr = errors.WithStack(csv.ErrEmptyInput)
		case err != nil:
			p.headerErr = errors.Wrap(err, "read header")
		default:
			p.header, p.headerErr = csv.NormalizeHeader(row)
		}
		p.baseDropped = p.r.DroppedRows()
		p.baseSkipped = p.r.SkippedLines()
	})
	return p.header, p.headerErr
}

// Run reads rows until the input ends, a fatal error occurs or ctx is done,
// and sends them to ch. It always leaves exactly one end marker in ch and
// closes it: End after a clean finish, Abort (drain then marker) otherwise.
func (p *Producer) Run(ctx context.Context, ch *Channel) (res ProducerResult) {
	d := newDigest()
	var sent int64
	clean := false
	defer func() {
		if clean {
			ch.End(ctx)
		} else {
			ch.Abort()
		}
		ch.Close()

		dropped := int64(p.r.DroppedRows() - p.baseDropped)
		res.RowsRead = sent + dropped
		res.RowsSkipped = dropped + int64(p.r.SkippedLines()-p.baseSkipped)
		res.Digest = d.sum()
	}()

	if _, err := p.Header(); err != nil {
		res.Err = err
		return res
	}

	for {
		if ctx.Err() != nil {
			p.log.Debug("reader: canceled", zap.Int64("rows", sent))
			return res
		}
		row, err := p.r.Next()
		if err == io.EOF {
			clean = true
			return res
		}
		if err != nil {
			res.Err = err
			p.log.Error("reader: fatal", zap.Int("line", p.r.Line()), zap.Error(err))
			return res
		}
		if err := ch.Send(ctx, row); err != nil {
			// Only cancellation or a previous end can stop a send.
			p.log.Debug("reader: send stopped", zap.Int64("rows", sent), zap.Error(err))
			return res
		}
		sent++
		d.add(row)
	}
}

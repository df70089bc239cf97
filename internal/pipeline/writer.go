package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"csvtopg/internal/metrics"
	"csvtopg/internal/storage"
)

// Connector opens a connection to the sink.
type Connector func(ctx context.Context) (storage.Conn, error)

// WriterResult is what a writer reports when it stops.
type WriterResult struct {
	RowsWritten int64
	Batches     int64
	Digest      uint64
	// Err is the fatal error that stopped writing. Cancellation is not an
	// error.
	Err error
}

// Writer drains a Channel in micro-batches and bulk-loads each batch.
type Writer struct {
	connect        Connector
	table          string
	columns        []string
	connectTimeout time.Duration
	job            string
	log            *zap.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithConnectTimeout bounds the connect call. Zero means no bound beyond
// the run's context.
func WithConnectTimeout(d time.Duration) WriterOption {
	return func(w *Writer) { w.connectTimeout = d }
}

// WithWriterLogger sets the logger.
func WithWriterLogger(l *zap.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.log = l
		}
	}
}

// WithJob sets the job label used for metrics.
func WithJob(job string) WriterOption {
	return func(w *Writer) { w.job = job }
}

// NewWriter returns a Writer that loads into table with the given columns.
func NewWriter(connect Connector, table string, columns []string, opts ...WriterOption) *Writer {
	w := &Writer{
		connect: connect,
		table:   table,
		columns: columns,
		job:     "csvtopg",
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run connects, creates the table if absent and loads batches from ch until
// the end marker. On a fatal error it calls cancelProducer so the producer
// stops and drains instead of blocking on a full channel. Cancellation of
// ctx ends the run cleanly with the rows acknowledged so far.
func (w *Writer) Run(ctx context.Context, ch *Channel, cancelProducer context.CancelFunc) (res WriterResult) {
	d := newDigest()
	defer func() {
		res.Digest = d.sum()
		if res.Err != nil {
			cancelProducer()
		}
	}()

	conn, err := w.open(ctx)
	if err != nil {
		if ctx.Err() == nil {
			res.Err = err
		}
		return res
	}
	defer func() {
		if cerr := conn.Close(context.Background()); cerr != nil {
			w.log.Warn("writer: close connection", zap.Error(cerr))
		}
	}()

	start := time.Now()
	err = conn.EnsureTable(ctx, w.table, w.columns)
	metrics.RecordStep(w.job, metrics.StepCreateTable, err, time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			res.Err = errors.Mark(errors.Wrap(err, "create table"), ErrConnection)
		}
		return res
	}

	for {
		first, ok, err := ch.Receive(ctx)
		if err != nil || !ok {
			return res
		}

		// Everything queued right now joins this batch; rows arriving while
		// draining wait for the next one, which bounds the batch size.
		batch := [][]string{first}
		last := false
		for n := ch.Len(); n > 0; n-- {
			row, got, more := ch.TryReceive()
			if !more {
				last = true
				break
			}
			if !got {
				break
			}
			batch = append(batch, row)
		}

		n, err := w.flush(ctx, conn, batch)
		if err != nil {
			if ctx.Err() == nil {
				res.Err = err
			}
			return res
		}
		res.RowsWritten += n
		res.Batches++
		for _, row := range batch {
			d.add(row)
		}
		if last {
			return res
		}
	}
}

func (w *Writer) open(ctx context.Context) (storage.Conn, error) {
	cctx := ctx
	if w.connectTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, w.connectTimeout)
		defer cancel()
	}
	start := time.Now()
	conn, err := w.connect(cctx)
	metrics.RecordStep(w.job, metrics.StepConnect, err, time.Since(start))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "connect to sink"), ErrConnection)
	}
	w.log.Info("writer: connected", zap.String("table", w.table), zap.Int("columns", len(w.columns)))
	return conn, nil
}

// flush bulk-loads one batch and returns the acknowledged row count.
func (w *Writer) flush(ctx context.Context, conn storage.Conn, batch [][]string) (int64, error) {
	start := time.Now()
	ack, err := conn.CopyRows(ctx, w.table, w.columns, batch)
	if err == nil {
		var n int64
		n, err = ParseCopyAck(ack)
		if err == nil {
			elapsed := time.Since(start)
			metrics.RecordStep(w.job, metrics.StepCopy, nil, elapsed)
			if n != int64(len(batch)) {
				w.log.Warn("writer: acknowledged count differs from batch size",
					zap.Int("batch", len(batch)), zap.Int64("acknowledged", n))
			}
			w.log.Debug("writer: batch flushed",
				zap.Int("rows", len(batch)), zap.Int64("acknowledged", n), zap.Duration("took", elapsed))
			return n, nil
		}
	} else {
		err = errors.Wrapf(err, "bulk load of %d rows", len(batch))
	}
	metrics.RecordStep(w.job, metrics.StepCopy, err, time.Since(start))
	return 0, err
}

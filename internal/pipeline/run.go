package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"csvtopg/internal/config"
	"csvtopg/internal/datasource"
	"csvtopg/internal/datasource/file"
	"csvtopg/internal/metrics"
	"csvtopg/internal/parser/csv"
	"csvtopg/internal/storage"
)

// Option customizes Run.
type Option func(*runOptions)

type runOptions struct {
	connect Connector
	source  datasource.Source
	log     *zap.Logger
}

// WithConnector replaces the sink connector derived from the configured
// storage kind and DSN.
func WithConnector(c Connector) Option {
	return func(o *runOptions) { o.connect = c }
}

// WithSource replaces the local file named by the configuration.
func WithSource(s datasource.Source) Option {
	return func(o *runOptions) { o.source = s }
}

// WithLogger sets the logger. Run derives a child carrying the run id.
func WithLogger(l *zap.Logger) Option {
	return func(o *runOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// Run loads the configured file into the configured table and reports the
// outcome. It never panics and always returns a complete Result: metrics
// gathered up to a failure, the elapsed time and the first fatal error.
//
// The header is read before anything else; the producer and the writer then
// run concurrently over a bounded channel. A writer failure cancels the
// producer, a producer failure aborts the channel: rows still queued are
// discarded and the writer stops at the end marker. When both fail, the producer's error wins.
func Run(ctx context.Context, cfg config.Config, opts ...Option) (res Result) {
	o := runOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.connect == nil {
		kind, dsn := cfg.Storage.Kind, cfg.Storage.DSN
		o.connect = func(ctx context.Context) (storage.Conn, error) {
			return storage.Open(ctx, kind, dsn)
		}
	}
	if o.source == nil {
		o.source = file.NewLocal(cfg.Input.Path, file.WithOffset(cfg.Input.Offset))
	}

	job := cfg.Metrics.Job
	if job == "" {
		job = "csvtopg"
	}
	res.RunID = uuid.NewString()
	log := o.log.With(zap.String("run_id", res.RunID))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res.fail(errors.Newf("panic: %v", p))
			log.Error("run: panic", zap.Any("panic", p), zap.Stack("stack"))
		}
		res.Metrics.Elapsed = time.Since(start)
		record(job, res)
		if err := metrics.Flush(); err != nil {
			log.Warn("run: metrics flush failed", zap.Error(err))
		}
		fields := []zap.Field{
			zap.Int64("rows_read", res.Metrics.RowsRead),
			zap.Int64("rows_written", res.Metrics.RowsWritten),
			zap.Int64("rows_skipped", res.Metrics.RowsSkipped),
			zap.Int64("batches", res.Metrics.Batches),
			zap.Duration("elapsed", res.Metrics.Elapsed),
		}
		if res.OK() {
			log.Info("run: completed", fields...)
		} else {
			log.Error("run: failed", append(fields, zap.Error(res.Err))...)
		}
	}()

	ropts, err := cfg.ReaderOptions()
	if err != nil {
		res.fail(errors.Wrap(err, "configure reader"))
		return res
	}
	ropts.Warn = func(d csv.Diagnostic) {
		log.Warn("reader: "+d.Message, zap.Int("line", d.Line), zap.String("kind", string(d.Kind)))
	}

	in, err := o.source.Open(ctx)
	if err != nil {
		res.fail(errors.Wrap(err, "open input"))
		return res
	}
	defer in.Close()

	reader, err := csv.NewReader(csv.NewLineSource(in, []byte(cfg.Input.LineSep), cfg.Input.ChunkSize), ropts)
	if err != nil {
		res.fail(err)
		return res
	}
	defer func() { res.Diagnostics = reader.Diagnostics() }()

	producer := NewProducer(reader, log)
	header, err := producer.Header()
	if err != nil {
		res.fail(err)
		return res
	}
	res.Header = header
	log.Info("run: header read", zap.Strings("columns", header), zap.String("table", cfg.Storage.Table))

	ch, err := NewChannel(cfg.Runtime.ChannelCapacity)
	if err != nil {
		res.fail(err)
		return res
	}

	writer := NewWriter(o.connect, cfg.Storage.Table, header,
		WithConnectTimeout(cfg.Storage.ConnectTimeout),
		WithWriterLogger(log),
		WithJob(job),
	)

	pctx, cancelProducer := context.WithCancel(ctx)
	defer cancelProducer()

	var (
		pres ProducerResult
		wres WriterResult
		g    errgroup.Group
	)
	g.Go(func() (err error) {
		defer recoverTask("reader", &err, func() {})
		pres = producer.Run(pctx, ch)
		return nil
	})
	g.Go(func() (err error) {
		defer recoverTask("writer", &err, cancelProducer)
		wres = writer.Run(ctx, ch, cancelProducer)
		return nil
	})
	panicErr := g.Wait()

	// Join order decides which error is kept.
	res.fail(pres.Err)
	res.fail(wres.Err)
	res.fail(panicErr)

	res.Metrics.RowsRead = pres.RowsRead
	res.Metrics.RowsSkipped = pres.RowsSkipped
	res.Metrics.ReadDigest = pres.Digest
	res.Metrics.RowsWritten = wres.RowsWritten
	res.Metrics.Batches = wres.Batches
	res.Metrics.WrittenDigest = wres.Digest

	if ctx.Err() != nil {
		log.Info("run: canceled", zap.Int64("rows_written", wres.RowsWritten))
	}
	return res
}

// recoverTask turns a panic of a pipeline task into an error and runs
// onPanic so the other task is not left waiting.
func recoverTask(task string, err *error, onPanic func()) {
	if p := recover(); p != nil {
		onPanic()
		*err = errors.Newf("%s: panic: %v", task, p)
	}
}

func record(job string, res Result) {
	metrics.RecordRow(job, metrics.KindRead, res.Metrics.RowsRead)
	metrics.RecordRow(job, metrics.KindWritten, res.Metrics.RowsWritten)
	metrics.RecordRow(job, metrics.KindSkipped, res.Metrics.RowsSkipped)
	metrics.RecordBatches(job, res.Metrics.Batches)
	metrics.RecordStep(job, metrics.StepRun, res.Err, res.Metrics.Elapsed)
}

package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvtopg/internal/parser/csv"
	"csvtopg/internal/storage"
)

func newProducer(t *testing.T, in string, opts csv.Options) (*Producer, []string) {
	t.Helper()
	r, err := csv.NewReader(csv.NewLineSource(strings.NewReader(in), nil, 16), opts)
	require.NoError(t, err)
	p := NewProducer(r, nil)
	header, err := p.Header()
	require.NoError(t, err)
	return p, header
}

// runPair runs a producer and a writer over a channel of the given capacity
// the way Run does.
func runPair(t *testing.T, p *Producer, w *Writer, ch *Channel) (ProducerResult, WriterResult) {
	t.Helper()
	ctx := context.Background()
	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		pres ProducerResult
		wg   sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		pres = p.Run(pctx, ch)
	}()
	wres := w.Run(ctx, ch, cancel)
	wg.Wait()
	return pres, wres
}

func TestProducer_HeaderReadOnce(t *testing.T) {
	t.Parallel()

	p, header := newProducer(t, "\uFEFFa, b\n1,2\n", csv.Options{})
	assert.Equal(t, []string{"a", "b"}, header)
	again, err := p.Header()
	require.NoError(t, err)
	assert.Equal(t, header, again)
}

func TestProducer_EmptyInput(t *testing.T) {
	t.Parallel()

	r, err := csv.NewReader(csv.NewLineSource(strings.NewReader(""), nil, 16), csv.Options{})
	require.NoError(t, err)
	_, err = NewProducer(r, nil).Header()
	assert.True(t, errors.Is(err, csv.ErrEmptyInput))
}

func TestWriter_BackpressureBound(t *testing.T) {
	t.Parallel()

	in, want := wellFormed(2, 40)
	p, header := newProducer(t, in, csv.Options{})
	ch, err := NewChannel(1)
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		maxBatch int
		maxQueue int
	)
	sink := &fakeConn{delay: time.Millisecond}
	sink.onCopy = func(rows [][]string) {
		mu.Lock()
		defer mu.Unlock()
		maxBatch = max(maxBatch, len(rows))
		maxQueue = max(maxQueue, ch.Len())
	}

	w := NewWriter(sink.connector(), "t", header)
	pres, wres := runPair(t, p, w, ch)
	require.NoError(t, pres.Err)
	require.NoError(t, wres.Err)

	assert.Equal(t, want, sink.rows())
	assert.LessOrEqual(t, maxQueue, ch.Cap(), "queued rows never exceed capacity")
	assert.LessOrEqual(t, maxBatch, ch.Cap()+1, "a batch holds at most one received row plus a snapshot of the queue")
	assert.Equal(t, int64(40), wres.RowsWritten)
	assert.Equal(t, pres.Digest, wres.Digest)
	assert.Equal(t, 1, sink.ensured)
	assert.True(t, sink.closed)
}

func TestWriter_ConnectFailureCancelsProducer(t *testing.T) {
	t.Parallel()

	in, _ := wellFormed(2, 500)
	p, header := newProducer(t, in, csv.Options{})
	ch, err := NewChannel(1)
	require.NoError(t, err)

	boom := errors.New("connection refused")
	w := NewWriter(func(context.Context) (storage.Conn, error) { return nil, boom }, "t", header)

	pres, wres := runPair(t, p, w, ch)
	require.Error(t, wres.Err)
	assert.True(t, errors.Is(wres.Err, ErrConnection))
	assert.True(t, errors.Is(wres.Err, boom))
	assert.Zero(t, wres.RowsWritten)
	assert.NoError(t, pres.Err, "cancellation is not a producer error")
	assert.Less(t, pres.RowsRead, int64(500))
}

func TestWriter_AckMismatchStopsImmediately(t *testing.T) {
	t.Parallel()

	in, _ := wellFormed(2, 200)
	p, header := newProducer(t, in, csv.Options{})
	ch, err := NewChannel(5)
	require.NoError(t, err)

	var first int
	sink := &fakeConn{ack: func(i int, rows [][]string) (string, error) {
		if i == 0 {
			first = len(rows)
			return storage.FormatAck(int64(len(rows))), nil
		}
		return "INSERT 0 1", nil
	}}

	w := NewWriter(sink.connector(), "t", header)
	_, wres := runPair(t, p, w, ch)
	require.Error(t, wres.Err)
	assert.True(t, errors.Is(wres.Err, ErrAckMismatch))
	assert.Equal(t, int64(first), wres.RowsWritten)
	assert.Equal(t, int64(1), wres.Batches)
	assert.Equal(t, 2, sink.batchCount(), "no batch after the mismatch")
}

func TestWriter_AckCountIsTrusted(t *testing.T) {
	t.Parallel()

	p, header := newProducer(t, "a\n1\n2\n3\n", csv.Options{})
	ch, err := NewChannel(10)
	require.NoError(t, err)

	sink := &fakeConn{ack: func(int, [][]string) (string, error) { return "COPY 1", nil }}
	_, wres := runPair(t, p, NewWriter(sink.connector(), "t", header), ch)
	require.NoError(t, wres.Err)
	assert.Equal(t, int64(sink.batchCount()), wres.RowsWritten)
}

func TestWriter_CopyErrorIsFatal(t *testing.T) {
	t.Parallel()

	p, header := newProducer(t, "a\n1\n2\n", csv.Options{})
	ch, err := NewChannel(10)
	require.NoError(t, err)

	sink := &fakeConn{ack: func(int, [][]string) (string, error) { return "", errors.New("disk full") }}
	_, wres := runPair(t, p, NewWriter(sink.connector(), "t", header), ch)
	require.Error(t, wres.Err)
	assert.Contains(t, wres.Err.Error(), "disk full")
	assert.Zero(t, wres.RowsWritten)
	assert.True(t, sink.closed)
}

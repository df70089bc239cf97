package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
)

// ErrChannelEnded is returned by Send after the end marker was published.
var ErrChannelEnded = errors.New("pipeline: send on ended channel")

// item is either a row or the end marker.
type item struct {
	row []string
	end bool
}

// Channel is a bounded FIFO of rows followed by exactly one end marker.
//
// One producer calls Send, then End or Abort, then Close. One consumer calls
// Receive and TryReceive. Ending and closing are distinct: the marker is an
// item in the queue, closing releases the underlying channel. The consumer
// treats a closed and empty channel exactly like the marker, so a producer
// that stops abruptly cannot leave it blocked.
type Channel struct {
	items chan item

	ended     atomic.Bool
	endOnce   sync.Once
	closeOnce sync.Once
}

// NewChannel returns a Channel holding at most capacity rows. Capacity must
// be at least 1.
func NewChannel(capacity int) (*Channel, error) {
	if capacity < 1 {
		return nil, errors.Newf("pipeline: channel capacity must be >= 1, got %d", capacity)
	}
	return &Channel{items: make(chan item, capacity)}, nil
}

// Cap returns the capacity.
func (c *Channel) Cap() int { return cap(c.items) }

// Len returns the number of items currently queued.
func (c *Channel) Len() int { return len(c.items) }

// Send enqueues row, blocking while the channel is full. It returns
// ctx.Err() if ctx is done first.
func (c *Channel) Send(ctx context.Context, row []string) error {
	if c.ended.Load() {
		return ErrChannelEnded
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case c.items <- item{row: row}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End publishes the end marker after every queued row. If ctx is done while
// waiting for room, End falls back to Abort.
func (c *Channel) End(ctx context.Context) {
	c.endOnce.Do(func() {
		c.ended.Store(true)
		select {
		case c.items <- item{end: true}:
		case <-ctx.Done():
			c.drain()
			c.items <- item{end: true}
		}
	})
}

// Abort discards whatever is still queued and publishes the end marker.
// Only the producer adds items, so after the drain the marker always fits
// and Abort never blocks. Calling it after End has no effect.
func (c *Channel) Abort() {
	c.endOnce.Do(func() {
		c.ended.Store(true)
		c.drain()
		c.items <- item{end: true}
	})
}

// Close releases the channel. It publishes the end marker first if neither
// End nor Abort did. Close is idempotent.
func (c *Channel) Close() {
	c.Abort()
	c.closeOnce.Do(func() { close(c.items) })
}

// Receive blocks for the next row. ok is false once the end marker was
// received or the channel is closed and empty. A done ctx returns ctx.Err().
func (c *Channel) Receive(ctx context.Context) (row []string, ok bool, err error) {
	select {
	case it, open := <-c.items:
		if !open || it.end {
			return nil, false, nil
		}
		return it.row, true, nil
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}

// TryReceive returns the next row without blocking. more is false when the
// end marker was taken or the channel is closed; ok is false when no row was
// returned.
func (c *Channel) TryReceive() (row []string, ok, more bool) {
	select {
	case it, open := <-c.items:
		if !open || it.end {
			return nil, false, false
		}
		return it.row, true, true
	default:
		return nil, false, true
	}
}

func (c *Channel) drain() {
	for {
		select {
		case <-c.items:
		default:
			return
		}
	}
}

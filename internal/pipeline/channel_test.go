package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChannel_RejectsZeroCapacity(t *testing.T) {
	t.Parallel()

	_, err := NewChannel(0)
	assert.Error(t, err)

	ch, err := NewChannel(3)
	require.NoError(t, err)
	assert.Equal(t, 3, ch.Cap())
}

func TestChannel_FIFOThenEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ch, err := NewChannel(4)
	require.NoError(t, err)

	require.NoError(t, ch.Send(ctx, []string{"1"}))
	require.NoError(t, ch.Send(ctx, []string{"2"}))
	ch.End(ctx)
	assert.ErrorIs(t, ch.Send(ctx, []string{"3"}), ErrChannelEnded)

	row, ok, err := ch.Receive(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"1"}, row)

	row, ok, more := ch.TryReceive()
	assert.True(t, ok)
	assert.True(t, more)
	assert.Equal(t, []string{"2"}, row)

	_, ok, more = ch.TryReceive()
	assert.False(t, ok)
	assert.False(t, more, "end marker reached")
}

func TestChannel_TryReceiveOnEmpty(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(1)
	require.NoError(t, err)
	_, ok, more := ch.TryReceive()
	assert.False(t, ok)
	assert.True(t, more)
}

func TestChannel_SendBlocksWhenFullUntilCanceled(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(1)
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), []string{"a"}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = ch.Send(ctx, []string{"b"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, ch.Len())
}

func TestChannel_AbortDrainsAndNeverBlocks(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(2)
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), []string{"a"}))
	require.NoError(t, ch.Send(context.Background(), []string{"b"}))

	done := make(chan struct{})
	go func() {
		ch.Abort()
		ch.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Abort blocked on a full channel")
	}

	_, ok, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "queued rows were discarded, marker comes first")

	_, ok, err = ch.Receive(context.Background())
	require.NoError(t, err)
	assert.False(t, ok, "closed and empty reads as the end")
}

func TestChannel_EndWithCanceledContextFallsBackToDrain(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(1)
	require.NoError(t, err)
	require.NoError(t, ch.Send(context.Background(), []string{"a"}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch.End(ctx)

	_, ok, more := ch.TryReceive()
	assert.False(t, ok)
	assert.False(t, more)
}

func TestChannel_CloseWithoutEndPublishesMarker(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(1)
	require.NoError(t, err)
	ch.Close()
	ch.Close()

	_, ok, err := ch.Receive(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannel_ReceiveHonorsContext(t *testing.T) {
	t.Parallel()

	ch, err := NewChannel(1)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, ok, err := ch.Receive(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}

package event_test

import (
	"testing"

	"github.com/JRF63/monitor-brightness-controller/internal/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailbox_SendRecv(t *testing.T) {
	mb := event.NewMailbox(8)

	ok := mb.Send(event.Change(0, 75))
	require.True(t, ok)

	in, ok := mb.Recv()
	require.True(t, ok)
	assert.Equal(t, event.KindChange, in.Kind)
	assert.Equal(t, 0, in.Target)
	assert.Equal(t, uint32(75), in.Level)
}

func TestMailbox_FIFOOrder(t *testing.T) {
	mb := event.NewMailbox(8)

	require.True(t, mb.Send(event.Change(0, 10)))
	require.True(t, mb.Send(event.Change(0, 20)))
	require.True(t, mb.Send(event.Change(1, 30)))

	levels := make([]uint32, 0, 3)
	for i := 0; i < 3; i++ {
		in, ok := mb.Recv()
		require.True(t, ok)
		levels = append(levels, in.Level)
	}
	assert.Equal(t, []uint32{10, 20, 30}, levels)
}

func TestMailbox_TryRecvEmpty(t *testing.T) {
	mb := event.NewMailbox(8)

	_, st := mb.TryRecv()
	assert.Equal(t, event.RecvEmpty, st)
}

func TestMailbox_SendNeverBlocksWhenFull(t *testing.T) {
	mb := event.NewMailbox(2)

	assert.True(t, mb.Send(event.Change(0, 1)))
	assert.True(t, mb.Send(event.Change(0, 2)))

	// Third send must return immediately without blocking.
	assert.False(t, mb.Send(event.Change(0, 3)))

	// The queued intents survive the drop.
	in, ok := mb.Recv()
	require.True(t, ok)
	assert.Equal(t, uint32(1), in.Level)
}

func TestMailbox_SendAfterClose(t *testing.T) {
	mb := event.NewMailbox(8)
	mb.Close()

	assert.False(t, mb.Send(event.Reset()))
}

func TestMailbox_RecvAfterClose(t *testing.T) {
	mb := event.NewMailbox(8)
	mb.Close()

	_, ok := mb.Recv()
	assert.False(t, ok)
}

func TestMailbox_CloseDrainsPendingIntents(t *testing.T) {
	mb := event.NewMailbox(8)
	require.True(t, mb.Send(event.Change(0, 42)))
	mb.Close()

	// Intent queued before Close must still be delivered.
	in, ok := mb.Recv()
	require.True(t, ok)
	assert.Equal(t, uint32(42), in.Level)

	_, ok = mb.Recv()
	assert.False(t, ok)
}

func TestMailbox_TryRecvClosed(t *testing.T) {
	mb := event.NewMailbox(8)
	require.True(t, mb.Send(event.Change(0, 7)))
	mb.Close()

	in, st := mb.TryRecv()
	require.Equal(t, event.RecvOK, st)
	assert.Equal(t, uint32(7), in.Level)

	_, st = mb.TryRecv()
	assert.Equal(t, event.RecvClosed, st)
}

func TestMailbox_CloseIdempotent(t *testing.T) {
	mb := event.NewMailbox(8)
	mb.Close()
	mb.Close()

	_, st := mb.TryRecv()
	assert.Equal(t, event.RecvClosed, st)
}

func TestMailbox_ZeroCapacityClampedToOne(t *testing.T) {
	mb := event.NewMailbox(0)
	assert.True(t, mb.Send(event.Quit()))
}

package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
)

func TestChannel_AttachAndSend(t *testing.T) {
	ch := NewChannel("s1")
	assert.False(t, ch.Attached())

	recv, err := ch.Attach()
	require.NoError(t, err)
	assert.True(t, ch.Attached())

	e := eventlog.Event{ID: "s1_x", StreamID: "s1", Payload: []byte("hello")}
	require.NoError(t, ch.Send(e))

	select {
	case got := <-recv:
		assert.Equal(t, e.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected delivery to attached receiver")
	}
}

func TestChannel_SendWithoutAttachment(t *testing.T) {
	ch := NewChannel("s1")
	// No receiver: the live copy is simply skipped, not an error.
	assert.NoError(t, ch.Send(eventlog.Event{ID: "s1_x"}))
}

func TestChannel_SendNeverBlocksWhenFull(t *testing.T) {
	ch := NewChannel("s1")
	_, err := ch.Attach()
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < receiverBuffer*2; i++ {
			ch.Send(eventlog.Event{ID: "s1_x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full receiver")
	}
}

func TestChannel_ReattachDisplacesPrevious(t *testing.T) {
	ch := NewChannel("s1")

	old, err := ch.Attach()
	require.NoError(t, err)
	fresh, err := ch.Attach()
	require.NoError(t, err)

	// The displaced receiver is closed so its handler unwinds.
	_, open := <-old
	assert.False(t, open)

	require.NoError(t, ch.Send(eventlog.Event{ID: "s1_y"}))
	select {
	case got := <-fresh:
		assert.Equal(t, "s1_y", got.ID)
	case <-time.After(time.Second):
		t.Fatal("expected delivery to the new receiver")
	}
}

func TestChannel_DetachOnlyCurrentReceiver(t *testing.T) {
	ch := NewChannel("s1")

	old, err := ch.Attach()
	require.NoError(t, err)
	fresh, err := ch.Attach()
	require.NoError(t, err)

	// Detaching the displaced receiver must not disturb the current one.
	ch.Detach(old)
	assert.True(t, ch.Attached())

	ch.Detach(fresh)
	assert.False(t, ch.Attached())
	_, open := <-fresh
	assert.False(t, open)
}

func TestChannel_Close(t *testing.T) {
	ch := NewChannel("s1")
	recv, err := ch.Attach()
	require.NoError(t, err)

	closed := make(chan struct{})
	ch.OnClose(func() { close(closed) })

	ch.Close()
	ch.Close() // idempotent

	assert.True(t, ch.Closed())
	_, open := <-recv
	assert.False(t, open)

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close observer did not fire")
	}

	assert.ErrorIs(t, ch.Send(eventlog.Event{}), ErrChannelClosed)
	_, err = ch.Attach()
	assert.ErrorIs(t, err, ErrChannelClosed)
}

func TestChannel_OnCloseDeregister(t *testing.T) {
	ch := NewChannel("s1")

	fired := false
	unsub := ch.OnClose(func() { fired = true })
	unsub()

	ch.Close()
	assert.False(t, fired, "deregistered observer must not fire")
}

func TestChannel_OnCloseAfterClosed(t *testing.T) {
	ch := NewChannel("s1")
	ch.Close()

	fired := make(chan struct{})
	ch.OnClose(func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("observer registered after close must still fire")
	}
}

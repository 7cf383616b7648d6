package session

import (
	"errors"
	"sync"

	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
)

// receiverBuffer is the live delivery queue size per attachment.
// A full queue drops the live copy; the event is still in the event log
// and will be recovered by the client's next resume.
const receiverBuffer = 32

// ErrChannelClosed is returned when sending on a closed channel.
var ErrChannelClosed = errors.New("session channel closed")

// Channel is the live bidirectional delivery handle bound to a session.
//
// At most one streaming connection is attached at a time; a new Attach
// replaces the previous one (the usual reconnect shape: the client's old
// connection is dead but the server has not noticed yet). Events sent while
// nothing is attached are not lost: they live in the event log and reach
// the client through replay.
type Channel struct {
	mu        sync.Mutex
	sessionID string
	receiver  chan eventlog.Event
	closed    bool
	observers map[uint64]func()
	nextObsID uint64
}

// NewChannel creates a channel for the given session.
func NewChannel(sessionID string) *Channel {
	return &Channel{
		sessionID: sessionID,
		observers: make(map[uint64]func()),
	}
}

// SessionID returns the owning session id.
func (c *Channel) SessionID() string {
	return c.sessionID
}

// Attach binds a streaming connection to the channel and returns the
// receiver for live events. Any previous attachment is displaced: its
// receiver is closed so the old connection handler unwinds.
func (c *Channel) Attach() (<-chan eventlog.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrChannelClosed
	}

	if c.receiver != nil {
		close(c.receiver)
	}
	c.receiver = make(chan eventlog.Event, receiverBuffer)
	return c.receiver, nil
}

// Detach releases a previously attached receiver. A receiver that has
// already been displaced by a newer Attach is left alone.
func (c *Channel) Detach(receiver <-chan eventlog.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.receiver != nil && c.receiver == receiver {
		close(c.receiver)
		c.receiver = nil
	}
}

// Send forwards an event to the attached connection, if any.
// The send never blocks: a full receiver drops the live copy.
func (c *Channel) Send(e eventlog.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrChannelClosed
	}
	if c.receiver == nil {
		return nil
	}

	select {
	case c.receiver <- e:
	default:
		// Queue full. The event remains replayable from the log.
	}
	return nil
}

// Attached reports whether a streaming connection is currently bound.
func (c *Channel) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receiver != nil
}

// OnClose registers an observer invoked exactly once when the channel
// closes. It returns a deregistration function.
func (c *Channel) OnClose(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		go fn()
		return func() {}
	}

	c.nextObsID++
	id := c.nextObsID
	c.observers[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.observers, id)
	}
}

// Close shuts the channel down: the attached receiver (if any) is closed,
// further sends fail, and close observers fire. Idempotent.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true

	if c.receiver != nil {
		close(c.receiver)
		c.receiver = nil
	}

	observers := make([]func(), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.observers = nil
	c.mu.Unlock()

	// Observers run outside the lock; they may call back into the
	// registry, which in turn may call Close again (idempotent).
	for _, fn := range observers {
		fn()
	}
}

// Closed reports whether Close has been called.
func (c *Channel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

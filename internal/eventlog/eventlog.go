// Package eventlog provides a per-stream, bounded, replayable event history.
//
// Every server-pushed message is appended here before delivery so that a
// client reconnecting with a resume token can receive exactly the events it
// missed. Retention is bounded per stream: one chatty session cannot grow
// memory without limit, and pruning never disturbs the relative order of the
// surviving events.
package eventlog

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultRetention is the per-stream event cap used when no limit is configured.
const DefaultRetention = 100

// Event is a single stored stream event.
//
// The ID alone identifies the owning stream and the event's position in it:
// it is "<streamID>_<ULID>", and ULIDs generated by a monotonic source sort
// lexicographically in creation order. No side index is needed for replay.
type Event struct {
	ID       string
	StreamID string
	Payload  []byte
}

// Log stores bounded event histories keyed by stream id.
type Log struct {
	mu        sync.Mutex
	retention int
	streams   map[string][]Event
	entropy   *ulid.MonotonicEntropy
}

// New creates a Log with the given per-stream retention cap.
// A non-positive retention falls back to DefaultRetention.
func New(retention int) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{
		retention: retention,
		streams:   make(map[string][]Event),
		entropy:   ulid.Monotonic(rand.Reader, 0),
	}
}

// Append stores a new event for the stream and returns it.
// If the stream exceeds the retention cap the oldest surplus events of that
// stream (and only that stream) are pruned.
func (l *Log) Append(streamID string, payload []byte) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	// entropy is not safe for concurrent use; l.mu guards it.
	id := ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy)

	e := Event{
		ID:       streamID + "_" + id.String(),
		StreamID: streamID,
		Payload:  payload,
	}

	events := append(l.streams[streamID], e)
	if surplus := len(events) - l.retention; surplus > 0 {
		events = events[surplus:]
	}
	l.streams[streamID] = events

	return e
}

// ReplayAfter resolves the stream owning lastEventID and invokes deliver for
// every retained event created strictly after it, in creation order.
//
// It returns the resolved stream id and true on success. If lastEventID does
// not parse or does not belong to a known stream, no events are delivered and
// ok is false ("no stream resumed"). A token that has already been pruned
// resumes from the oldest retained event.
func (l *Log) ReplayAfter(lastEventID string, deliver func(Event)) (streamID string, ok bool) {
	streamID, valid := ParseStreamID(lastEventID)
	if !valid {
		return "", false
	}

	l.mu.Lock()
	stored, known := l.streams[streamID]
	var pending []Event
	if known {
		for _, e := range stored {
			if e.ID > lastEventID {
				pending = append(pending, e)
			}
		}
	}
	l.mu.Unlock()

	if !known {
		return "", false
	}

	for _, e := range pending {
		deliver(e)
	}
	return streamID, true
}

// Clear removes all events and bookkeeping for the stream.
func (l *Log) Clear(streamID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.streams, streamID)
}

// Register makes a stream known to the log before its first append, so a
// subscriber holding a resume token from an empty stream still resolves it.
func (l *Log) Register(streamID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.streams[streamID]; !ok {
		l.streams[streamID] = nil
	}
}

// Events returns a copy of the retained events for a stream, in order.
func (l *Log) Events(streamID string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	stored := l.streams[streamID]
	out := make([]Event, len(stored))
	copy(out, stored)
	return out
}

// CountEvents returns the total number of retained events across all streams.
func (l *Log) CountEvents() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, events := range l.streams {
		n += len(events)
	}
	return n
}

// CountStreams returns the number of streams with bookkeeping in the log.
func (l *Log) CountStreams() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.streams)
}

// ParseStreamID extracts the owning stream id from an event id.
// Event ids have the form "<streamID>_<ULID>"; stream ids never contain
// an underscore, so the first separator is authoritative.
func ParseStreamID(eventID string) (string, bool) {
	streamID, rest, found := strings.Cut(eventID, "_")
	if !found || streamID == "" || len(rest) != ulid.EncodedSize {
		return "", false
	}
	if _, err := ulid.ParseStrict(rest); err != nil {
		return "", false
	}
	return streamID, true
}

// Package session owns the mapping from session identifiers to live
// channels: capacity-gated allocation, activity tracking, idempotent
// termination, and TTL-based background eviction.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
	"github.com/voicedesk-ai/voicedesk/internal/logging"
)

// Defaults for the registry knobs.
const (
	DefaultMaxSessions   = 100
	DefaultTTL           = 15 * time.Minute
	DefaultSweepInterval = 60 * time.Second
)

// allocateAttempts bounds id regeneration on the (practically impossible)
// ULID collision. Exhausting it is reported, never silently reused.
const allocateAttempts = 5

var (
	// ErrCapacityExceeded is returned by Allocate at the session cap.
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	// ErrNotFound is returned by Lookup for unknown or expired sessions.
	ErrNotFound = errors.New("session not found")
)

// Config holds registry tuning.
type Config struct {
	MaxSessions   int
	TTL           time.Duration
	SweepInterval time.Duration
}

// DefaultConfig returns the default registry configuration.
func DefaultConfig() Config {
	return Config{
		MaxSessions:   DefaultMaxSessions,
		TTL:           DefaultTTL,
		SweepInterval: DefaultSweepInterval,
	}
}

// Session is one live entry in the registry.
type Session struct {
	ID        string
	CreatedAt time.Time
	Channel   *Channel

	// Guarded by the owning registry's mutex.
	lastActivity time.Time
	active       bool
	unsubClose   func()
}

// Registry maps session ids to live channels and enforces the concurrent
// session cap and TTL eviction. All mutation paths (Allocate, Touch,
// Terminate, the sweep) are serialized by one mutex.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	sessions map[string]*Session
	entropy  *ulid.MonotonicEntropy

	log *eventlog.Log
	bus *event.Bus
	lg  zerolog.Logger
}

// New creates a registry backed by the given event log and bus.
func New(cfg Config, log *eventlog.Log, bus *event.Bus) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
		entropy:  ulid.Monotonic(rand.Reader, 0),
		log:      log,
		bus:      bus,
		lg:       logging.Component("session"),
	}
}

// Allocate reserves a new session and returns it.
//
// The session counts against capacity immediately but stays invisible to
// Lookup until Activate is called once the initialization handshake has
// finished, so other requests never see a half-initialized session.
func (r *Registry) Allocate() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.cfg.MaxSessions {
		return nil, ErrCapacityExceeded
	}

	var id string
	for attempt := 0; ; attempt++ {
		if attempt >= allocateAttempts {
			return nil, fmt.Errorf("allocate: could not generate a unique session id")
		}
		// entropy is not safe for concurrent use; r.mu guards it.
		id = ulid.MustNew(ulid.Timestamp(time.Now()), r.entropy).String()
		if _, exists := r.sessions[id]; !exists {
			break
		}
	}

	now := time.Now()
	s := &Session{
		ID:           id,
		CreatedAt:    now,
		Channel:      NewChannel(id),
		lastActivity: now,
	}
	s.unsubClose = s.Channel.OnClose(func() {
		r.lg.Debug().Str("sessionId", id).Msg("channel closed, terminating session")
		r.Terminate(id)
	})
	r.sessions[id] = s
	r.log.Register(id)

	return s, nil
}

// Activate makes an allocated session visible to Lookup.
func (r *Registry) Activate(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.active = true
		s.lastActivity = time.Now()
	}
}

// Lookup returns the channel bound to a live, activated session.
func (r *Registry) Lookup(id string) (*Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || !s.active {
		return nil, ErrNotFound
	}
	return s.Channel, nil
}

// Touch refreshes the session's activity timestamp. Unknown ids are a no-op.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		s.lastActivity = time.Now()
	}
}

// LastActivity returns the session's last activity time.
func (r *Registry) LastActivity(id string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return time.Time{}, false
	}
	return s.lastActivity, true
}

// Count returns the number of entries holding capacity (including
// allocated-but-not-yet-activated ones).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// MaxSessions returns the configured cap.
func (r *Registry) MaxSessions() int {
	return r.cfg.MaxSessions
}

// Terminate removes a session, closes its channel, and clears its stream
// from the event log. Idempotent: terminating an unknown id is not an error,
// so retried and duplicate termination calls are safe.
func (r *Registry) Terminate(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	// The registry's own close observer is deregistered first so closing
	// the channel does not re-enter Terminate.
	s.unsubClose()
	s.Channel.Close()
	r.log.Clear(id)
	r.bus.Publish(event.Event{
		Type: event.SessionDeleted,
		Data: event.SessionDeletedData{SessionID: id},
	})
}

// TerminateAll ends every session. Used during shutdown.
func (r *Registry) TerminateAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.Terminate(id)
	}
}

// RunSweeper evicts idle sessions on a fixed interval until ctx is
// cancelled. It blocks; run it in a goroutine and wait on its return
// during shutdown so in-flight terminations complete.
func (r *Registry) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	r.lg.Info().
		Dur("interval", r.cfg.SweepInterval).
		Dur("ttl", r.cfg.TTL).
		Msg("session sweeper started")

	for {
		select {
		case <-ctx.Done():
			r.lg.Info().Msg("session sweeper stopped")
			return
		case <-ticker.C:
			if removed := r.Sweep(); removed > 0 {
				r.lg.Info().Int("removed", removed).Msg("expired idle sessions")
			}
		}
	}
}

// Sweep terminates every session idle longer than the TTL and returns the
// number removed. A failure on one entry is logged and the sweep continues
// with the rest.
func (r *Registry) Sweep() int {
	now := time.Now()

	r.mu.Lock()
	var expired []*Session
	for _, s := range r.sessions {
		if now.Sub(s.lastActivity) > r.cfg.TTL {
			expired = append(expired, s)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, s := range expired {
		ok, err := r.expire(s, now)
		if err != nil {
			r.lg.Error().Err(err).Str("sessionId", s.ID).Msg("failed to expire session")
			continue
		}
		if ok {
			removed++
		}
	}
	return removed
}

// expire terminates one idle session. Idleness is re-checked under the lock
// so a session touched between the scan and the eviction survives. Panics
// from close observers become errors so the caller can move on to the
// remaining entries.
func (r *Registry) expire(s *Session, now time.Time) (removed bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("expire %s: %v", s.ID, rec)
		}
	}()

	r.mu.Lock()
	cur, ok := r.sessions[s.ID]
	if !ok || cur != s || now.Sub(cur.lastActivity) <= r.cfg.TTL {
		r.mu.Unlock()
		return false, nil
	}
	idle := now.Sub(cur.lastActivity)
	delete(r.sessions, s.ID)
	r.mu.Unlock()

	s.unsubClose()
	s.Channel.Close()
	r.log.Clear(s.ID)
	r.bus.Publish(event.Event{
		Type: event.SessionDeleted,
		Data: event.SessionDeletedData{SessionID: s.ID},
	})
	r.bus.Publish(event.Event{
		Type: event.SessionExpired,
		Data: event.SessionExpiredData{SessionID: s.ID, IdleSecs: int64(idle.Seconds())},
	})
	return true, nil
}

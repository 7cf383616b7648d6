package gateway

import (
	"fmt"
	"net/http"
	"time"

	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
)

// heartbeatInterval is how often an SSE comment keeps the connection warm.
const heartbeatInterval = 30 * time.Second

// sseWriter wraps http.ResponseWriter for SSE framing.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	rc      *http.ResponseController
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	rc := http.NewResponseController(w)

	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	return &sseWriter{w: w, flusher: flusher, rc: rc}, nil
}

// writeEvent writes one SSE frame. The id line carries the resume token
// for this event, so a client that reconnects after this frame resumes
// exactly behind it.
func (s *sseWriter) writeEvent(e eventlog.Event) error {
	_, err := fmt.Fprintf(s.w, "id: %s\nevent: message\ndata: %s\n\n", e.ID, e.Payload)
	if err != nil {
		return err
	}

	// ResponseController flushes through middleware wrappers; fall back
	// to the plain flusher if it cannot.
	if flushErr := s.rc.Flush(); flushErr != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeHeartbeat writes an SSE comment frame.
func (s *sseWriter) writeHeartbeat() {
	fmt.Fprintf(s.w, ": heartbeat\n\n")
	s.flusher.Flush()
}

// handleSubscribe terminates GET /rpc: the server-push stream. The channel
// is attached before replay so no event falls between replayed history and
// live delivery; the seam is deduplicated on event id.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(HeaderSessionID)
	if sid == "" {
		writeRPCError(w, http.StatusBadRequest, codeInvalidSession, "missing "+HeaderSessionID+" header", nil)
		return
	}
	ch, err := s.sessions.Lookup(sid)
	if err != nil {
		writeRPCError(w, http.StatusNotFound, codeInvalidSession, "unknown or expired session", nil)
		return
	}
	s.sessions.Touch(sid)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sse, err := newSSEWriter(w)
	if err != nil {
		writeRPCError(w, http.StatusInternalServerError, codeInternalError, err.Error(), nil)
		return
	}

	// Attach first: events appended during replay land in the live queue
	// and are skipped below if the replay already delivered them.
	recv, err := ch.Attach()
	if err != nil {
		writeRPCError(w, http.StatusNotFound, codeInvalidSession, "session is closing", nil)
		return
	}
	defer ch.Detach(recv)

	w.WriteHeader(http.StatusOK)
	sse.flusher.Flush()

	// A resume token replays the retained history after it. The owning
	// stream is resolved from the token before anything is replayed; a
	// token this session does not own is ignored rather than rejected, so
	// no other stream's events can reach this connection and the client
	// simply continues live.
	lastSent := ""
	if token := r.Header.Get(HeaderLastEventID); token != "" {
		if owner, valid := eventlog.ParseStreamID(token); !valid || owner != sid {
			s.lg.Debug().Str("sessionId", sid).Str("token", token).Msg("resume token not owned by session, streaming live only")
		} else if _, ok := s.log.ReplayAfter(token, func(e eventlog.Event) {
			if sse.writeEvent(e) == nil {
				lastSent = e.ID
			}
		}); !ok {
			s.lg.Debug().Str("sessionId", sid).Str("token", token).Msg("resume token not resolved, streaming live only")
		}
	}

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case e, open := <-recv:
			if !open {
				// Displaced by a newer subscriber or the session ended.
				return
			}
			if lastSent != "" && e.ID <= lastSent {
				continue
			}
			if err := sse.writeEvent(e); err != nil {
				return
			}
			lastSent = e.ID
		case <-ticker.C:
			sse.writeHeartbeat()
		}
	}
}

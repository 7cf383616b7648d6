package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/session"
	"github.com/voicedesk-ai/voicedesk/internal/tools"
)

// maxBodyBytes bounds RPC request bodies.
const maxBodyBytes = 1 << 20

// envelope is the JSON-RPC request frame, validated at the boundary
// before anything is dispatched.
type envelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	ID      json.RawMessage `json:"id,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// methodInitialize opens a session; the other methods require one.
const methodInitialize = "initialize"

// allowedMethods is the closed set of accepted method names.
var allowedMethods = map[string]bool{
	methodInitialize:            true,
	"ping":                      true,
	"tools/list":                true,
	"tools/call":                true,
	"notifications/initialized": true,
	"notifications/cancelled":   true,
}

func isNotification(method string) bool {
	return strings.HasPrefix(method, "notifications/")
}

// protocolError is a boundary rejection: the HTTP status plus the JSON-RPC
// error to report.
type protocolError struct {
	status  int
	code    int
	message string
}

// parseEnvelope reads and validates the request frame. It returns the
// envelope and the raw body (which is what gets dispatched).
func parseEnvelope(r *http.Request) (*envelope, []byte, *protocolError) {
	fail := func(code int, message string) (*envelope, []byte, *protocolError) {
		return nil, nil, &protocolError{status: http.StatusBadRequest, code: code, message: message}
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fail(codeParseError, "could not read request body")
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fail(codeParseError, "request body is not valid JSON")
	}
	if env.JSONRPC != "2.0" {
		return fail(codeInvalidRequest, `jsonrpc must be "2.0"`)
	}
	if env.Method == "" {
		return fail(codeInvalidRequest, "method is required")
	}
	if !allowedMethods[env.Method] {
		return fail(codeMethodNotFound, "unknown method: "+env.Method)
	}
	if isNotification(env.Method) {
		if len(env.ID) != 0 {
			return fail(codeInvalidRequest, "notifications must not carry an id")
		}
	} else if len(env.ID) == 0 {
		return fail(codeInvalidRequest, "requests must carry an id")
	}

	return &env, body, nil
}

// handleSubmit terminates POST /rpc: session initialization and
// session-bound method dispatch.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	env, body, perr := parseEnvelope(r)
	if perr != nil {
		writeRPCError(w, perr.status, perr.code, perr.message, nil)
		return
	}

	if env.Method == methodInitialize {
		s.handleInitialize(w, r, env, body)
		return
	}

	// Every non-init method needs a live session. A missing or unknown
	// id is terminal: it never creates a session as a side effect.
	sid := r.Header.Get(HeaderSessionID)
	if sid == "" {
		writeRPCError(w, http.StatusBadRequest, codeInvalidSession, "missing "+HeaderSessionID+" header", env.ID)
		return
	}
	if _, err := s.sessions.Lookup(sid); err != nil {
		writeRPCError(w, http.StatusNotFound, codeInvalidSession, "unknown or expired session", env.ID)
		return
	}

	ctx := tools.WithSessionID(r.Context(), sid)
	resp := s.mcp.HandleMessage(ctx, body)
	s.sessions.Touch(sid)

	if isNotification(env.Method) {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleInitialize allocates a session, runs the handshake, and activates
// the entry only once the handshake response is ready, so lookups never
// see a half-initialized session.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, env *envelope, body []byte) {
	sess, err := s.sessions.Allocate()
	if err != nil {
		if errors.Is(err, session.ErrCapacityExceeded) {
			writeRPCError(w, http.StatusServiceUnavailable, codeCapacityExceeded, "session capacity exceeded", env.ID)
			return
		}
		s.lg.Error().Err(err).Msg("session allocation failed")
		writeRPCError(w, http.StatusInternalServerError, codeInternalError, "could not allocate a session", env.ID)
		return
	}

	ctx := tools.WithSessionID(r.Context(), sess.ID)
	resp := s.mcp.HandleMessage(ctx, body)

	// A rejected handshake leaves nothing behind: the reserved entry is
	// released and no session id is handed to the client.
	if errResp, failed := resp.(mcp.JSONRPCError); failed {
		s.sessions.Terminate(sess.ID)
		s.lg.Warn().Int("code", errResp.Error.Code).Msg("initialization handshake rejected")
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	s.sessions.Activate(sess.ID)
	// Synchronous so the created event is the stream's first entry before
	// any tool call on the fresh session can append behind it.
	s.bus.PublishSync(event.Event{
		Type: event.SessionCreated,
		Data: event.SessionCreatedData{SessionID: sess.ID},
	})

	s.lg.Info().Str("sessionId", sess.ID).Msg("session initialized")
	w.Header().Set(HeaderSessionID, sess.ID)
	writeJSON(w, http.StatusOK, resp)
}

// handleTerminate terminates DELETE /rpc. Termination is idempotent:
// deleting an unknown or already-terminated session still succeeds, so
// retried and duplicate calls are safe.
func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	sid := r.Header.Get(HeaderSessionID)
	if sid == "" {
		writeRPCError(w, http.StatusBadRequest, codeInvalidRequest, "missing "+HeaderSessionID+" header", nil)
		return
	}

	s.sessions.Terminate(sid)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

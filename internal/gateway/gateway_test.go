package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
	"github.com/voicedesk-ai/voicedesk/internal/session"
)

// testGateway wires a Server against fresh in-memory state.
type testGateway struct {
	srv      *Server
	sessions *session.Registry
	log      *eventlog.Log
	bus      *event.Bus
}

func setupGateway(t *testing.T, mutate func(cfg *Config, sc *session.Config)) *testGateway {
	t.Helper()

	cfg := DefaultConfig()
	sc := session.DefaultConfig()
	if mutate != nil {
		mutate(cfg, &sc)
	}

	log := eventlog.New(0)
	bus := event.NewBus()
	t.Cleanup(func() { bus.Close() })

	sessions := session.New(sc, log, bus)
	t.Cleanup(sessions.TerminateAll)

	mcp := mcpserver.NewMCPServer("voicedesk-test", "0.0.0")
	srv := New(cfg, sessions, log, bus, mcp)
	t.Cleanup(srv.unsubBus)

	return &testGateway{srv: srv, sessions: sessions, log: log, bus: bus}
}

func rpcBody(method string, id any) []byte {
	env := map[string]any{"jsonrpc": "2.0", "method": method}
	if id != nil {
		env["id"] = id
	}
	b, _ := json.Marshal(env)
	return b
}

func (g *testGateway) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	g.srv.Router().ServeHTTP(w, req)
	return w
}

// initBody is a complete initialize request frame.
func initBody(id any) []byte {
	b, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "initialize",
		"id":      id,
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "gateway-test", "version": "0.0.0"},
		},
	})
	return b
}

// initSession runs the initialize handshake and returns the session id.
func (g *testGateway) initSession(t *testing.T) string {
	t.Helper()

	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(initBody(1)))
	if secret := g.srv.config.SharedSecret; secret != "" {
		req.Header.Set("Authorization", "Bearer "+secret)
	}
	w := g.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	sid := w.Header().Get(HeaderSessionID)
	require.NotEmpty(t, sid)
	return sid
}

func decodeRPCError(t *testing.T, w *httptest.ResponseRecorder) rpcErrorResponse {
	t.Helper()
	var resp rpcErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestInitialize(t *testing.T) {
	g := setupGateway(t, nil)

	sid := g.initSession(t)

	assert.Equal(t, 1, g.sessions.Count())
	_, err := g.sessions.Lookup(sid)
	assert.NoError(t, err, "initialized session must be visible to lookup")

	// The created event is forwarded synchronously, so it heads the
	// stream before anything else can land.
	events := g.log.Events(sid)
	require.Len(t, events, 1)
	assert.Contains(t, string(events[0].Payload), "session.created")
}

func TestInitialize_RejectedHandshakeLeavesNoSession(t *testing.T) {
	g := setupGateway(t, nil)

	// params is not an object, so the handshake itself is rejected.
	body := []byte(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":42}`)
	w := g.do(httptest.NewRequest("POST", "/rpc", bytes.NewReader(body)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, w.Header().Get(HeaderSessionID), "rejected handshake must not hand out a session id")
	assert.Zero(t, g.sessions.Count(), "rejected handshake must not hold capacity")
	assert.Zero(t, g.log.CountStreams(), "rejected handshake must not leave a stream behind")

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	require.Contains(t, resp, "error")
}

func TestSubmit_RecognizedMethod(t *testing.T) {
	g := setupGateway(t, nil)
	sid := g.initSession(t)

	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(rpcBody("ping", 2)))
	req.Header.Set(HeaderSessionID, sid)
	w := g.do(req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "2.0", resp["jsonrpc"])
	assert.Equal(t, float64(2), resp["id"])
}

func TestSubmit_UnknownSession(t *testing.T) {
	g := setupGateway(t, nil)

	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(rpcBody("tools/list", 1)))
	req.Header.Set(HeaderSessionID, "never-allocated")
	w := g.do(req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeInvalidSession, decodeRPCError(t, w).Error.Code)
	assert.Equal(t, 0, g.sessions.Count(), "a rejected call must not create a session")
}

func TestSubmit_MissingSessionHeader(t *testing.T) {
	g := setupGateway(t, nil)

	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(rpcBody("tools/list", 1)))
	w := g.do(req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeInvalidSession, decodeRPCError(t, w).Error.Code)
}

func TestSubmit_EnvelopeValidation(t *testing.T) {
	g := setupGateway(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{"not json", "{nope", codeParseError},
		{"wrong version", `{"jsonrpc":"1.0","method":"ping","id":1}`, codeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, codeInvalidRequest},
		{"unknown method", `{"jsonrpc":"2.0","method":"resources/list","id":1}`, codeMethodNotFound},
		{"request without id", `{"jsonrpc":"2.0","method":"ping"}`, codeInvalidRequest},
		{"notification with id", `{"jsonrpc":"2.0","method":"notifications/initialized","id":1}`, codeInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/rpc", bytes.NewReader([]byte(tt.body)))
			w := g.do(req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decodeRPCError(t, w).Error.Code)
		})
	}
}

func TestSubmit_NotificationAccepted(t *testing.T) {
	g := setupGateway(t, nil)
	sid := g.initSession(t)

	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(rpcBody("notifications/initialized", nil)))
	req.Header.Set(HeaderSessionID, sid)
	w := g.do(req)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Zero(t, w.Body.Len(), "notifications have no response body")
}

func TestTerminate_Idempotent(t *testing.T) {
	g := setupGateway(t, nil)
	sid := g.initSession(t)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("DELETE", "/rpc", nil)
		req.Header.Set(HeaderSessionID, sid)
		w := g.do(req)

		assert.Equal(t, http.StatusOK, w.Code, "terminate #%d", i+1)
		assert.JSONEq(t, `{"ok":true}`, w.Body.String())
	}
	assert.Equal(t, 0, g.sessions.Count())

	// A session that never existed terminates just as successfully.
	req := httptest.NewRequest("DELETE", "/rpc", nil)
	req.Header.Set(HeaderSessionID, "never-existed")
	assert.Equal(t, http.StatusOK, g.do(req).Code)
}

func TestTerminate_MissingHeader(t *testing.T) {
	g := setupGateway(t, nil)

	w := g.do(httptest.NewRequest("DELETE", "/rpc", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTerminatedSessionBecomesInvalid(t *testing.T) {
	g := setupGateway(t, nil)
	sid := g.initSession(t)

	del := httptest.NewRequest("DELETE", "/rpc", nil)
	del.Header.Set(HeaderSessionID, sid)
	require.Equal(t, http.StatusOK, g.do(del).Code)

	req := httptest.NewRequest("POST", "/rpc", bytes.NewReader(rpcBody("ping", 3)))
	req.Header.Set(HeaderSessionID, sid)
	w := g.do(req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, codeInvalidSession, decodeRPCError(t, w).Error.Code)
}

func TestInitialize_CapacityExceeded(t *testing.T) {
	g := setupGateway(t, func(cfg *Config, sc *session.Config) {
		sc.MaxSessions = 2
	})

	first := g.initSession(t)
	g.initSession(t)

	w := g.do(httptest.NewRequest("POST", "/rpc", bytes.NewReader(initBody(3))))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, codeCapacityExceeded, decodeRPCError(t, w).Error.Code)
	assert.Equal(t, 2, g.sessions.Count(), "a failed allocation must leave no entry behind")

	// Terminating one frees capacity for the next initialize.
	del := httptest.NewRequest("DELETE", "/rpc", nil)
	del.Header.Set(HeaderSessionID, first)
	require.Equal(t, http.StatusOK, g.do(del).Code)

	g.initSession(t)
}

func TestHealth(t *testing.T) {
	g := setupGateway(t, func(cfg *Config, sc *session.Config) {
		cfg.SharedSecret = "topsecret"
		cfg.Version = "1.2.3"
	})
	g.initSession(t)

	// No credential: the health endpoint sits outside the access gate.
	w := g.do(httptest.NewRequest("GET", "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var st healthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, session.DefaultMaxSessions, st.MaxSessions)
	assert.Equal(t, 1, st.EventStreams)
	assert.Equal(t, "1.2.3", st.Version)
	assert.NotZero(t, st.HeapAllocBytes)
}

func TestRecoverer(t *testing.T) {
	g := setupGateway(t, nil)

	panicky := g.srv.recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	panicky.ServeHTTP(w, httptest.NewRequest("POST", "/rpc", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, codeInternalError, decodeRPCError(t, w).Error.Code)
}

func TestInitialize_SessionsGetDistinctIDs(t *testing.T) {
	g := setupGateway(t, nil)

	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		sid := g.initSession(t)
		require.False(t, seen[sid], "session id %s reused", sid)
		seen[sid] = true
	}
}

func TestSubmit_BodyTooLargeStillFailsCleanly(t *testing.T) {
	g := setupGateway(t, nil)

	big := fmt.Sprintf(`{"jsonrpc":"2.0","method":"ping","id":1,"params":{"pad":%q}}`,
		bytes.Repeat([]byte("x"), maxBodyBytes))
	w := g.do(httptest.NewRequest("POST", "/rpc", bytes.NewReader([]byte(big))))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeParseError, decodeRPCError(t, w).Error.Code)
}

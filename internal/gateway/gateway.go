// Package gateway provides the HTTP surface of the voicedesk server: the
// access gate, the session-scoped RPC dispatcher, the SSE subscription
// stream with resume, and the health endpoint.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/voicedesk-ai/voicedesk/internal/event"
	"github.com/voicedesk-ai/voicedesk/internal/eventlog"
	"github.com/voicedesk-ai/voicedesk/internal/logging"
	"github.com/voicedesk-ai/voicedesk/internal/session"
)

// Header names used by the RPC protocol.
const (
	HeaderSessionID   = "Mcp-Session-Id"
	HeaderLastEventID = "Last-Event-ID"
)

// Config holds gateway configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	SharedSecret   string
	ReadTimeout    time.Duration
	HealthInterval time.Duration
	Version        string
}

// DefaultConfig returns default gateway configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:           8090,
		ReadTimeout:    30 * time.Second,
		HealthInterval: 5 * time.Minute,
		Version:        "dev",
	}
}

// Server terminates the RPC protocol and owns the HTTP listener.
type Server struct {
	config   *Config
	router   *chi.Mux
	httpSrv  *http.Server
	sessions *session.Registry
	log      *eventlog.Log
	bus      *event.Bus
	mcp      *mcpserver.MCPServer
	lg       zerolog.Logger
	started  time.Time
	unsubBus func()
}

// New creates a Server wired to the given registry, event log, bus, and
// tool server. Bus events that carry a session id are forwarded into that
// session's stream for SSE delivery.
func New(cfg *Config, sessions *session.Registry, log *eventlog.Log, bus *event.Bus, mcp *mcpserver.MCPServer) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		sessions: sessions,
		log:      log,
		bus:      bus,
		mcp:      mcp,
		lg:       logging.Component("gateway"),
		started:  time.Now(),
	}

	if cfg.SharedSecret == "" {
		s.lg.Warn().Msg("no shared secret configured, credential check disabled")
	}

	s.unsubBus = bus.SubscribeAll(s.forwardEvent)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(s.recoverer)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderSessionID, HeaderLastEventID},
		ExposedHeaders:   []string{HeaderSessionID},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes. The health endpoint sits outside the
// access gate so monitoring works without credentials.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.health)

	s.router.Group(func(r chi.Router) {
		r.Use(s.accessGate)
		r.Post("/rpc", s.handleSubmit)
		r.Get("/rpc", s.handleSubscribe)
		r.Delete("/rpc", s.handleTerminate)
	})
}

// requestLogger logs one line per completed request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.lg.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// recoverer converts handler panics into a JSON-RPC internal error. Once
// streaming has begun the response cannot be rewritten, so the connection
// is simply dropped.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww, ok := w.(middleware.WrapResponseWriter)
		if !ok {
			ww = middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		}
		defer func() {
			if rec := recover(); rec != nil {
				s.lg.Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("handler panicked")
				if ww.BytesWritten() == 0 {
					writeRPCError(ww, http.StatusInternalServerError, codeInternalError, "internal error", nil)
				}
			}
		}()
		next.ServeHTTP(ww, r)
	})
}

// forwardEvent pushes a session-scoped bus event into that session's
// stream. Events without a live session are skipped; in particular a
// deleted session's stream is already cleared and must not be recreated.
func (s *Server) forwardEvent(e event.Event) {
	sid := e.SessionID()
	if sid == "" {
		return
	}
	ch, err := s.sessions.Lookup(sid)
	if err != nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"type": string(e.Type),
		"data": e.Data,
	})
	if err != nil {
		s.lg.Error().Err(err).Str("eventType", string(e.Type)).Msg("could not encode stream event")
		return
	}

	stored := s.log.Append(sid, payload)
	if err := ch.Send(stored); err != nil {
		s.lg.Debug().Str("sessionId", sid).Msg("stream event not delivered, channel closed")
	}
}

// Start starts the HTTP server. It blocks until the listener fails or is
// shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.config.Port),
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
		// No write timeout: SSE connections stay open indefinitely.
	}

	s.lg.Info().Int("port", s.config.Port).Msg("gateway listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown stops accepting connections, drains in-flight requests, and
// terminates every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubBus()

	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.sessions.TerminateAll()
	return err
}

// Router returns the chi router, used by tests to drive handlers directly.
func (s *Server) Router() *chi.Mux {
	return s.router
}

package gateway

import (
	"crypto/subtle"
	"net"
	"net/http"
	"net/url"
	"strings"
)

// loopbackHost is the canonical form every loopback address normalizes to,
// so an allowlist entry of "localhost" also admits 127.0.0.1 and ::1.
const loopbackHost = "loopback"

// accessGate rejects disallowed origins and bad credentials before any
// request reaches the dispatcher.
func (s *Server) accessGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.originAllowed(r) {
			writeRPCError(w, http.StatusForbidden, codeForbidden, "origin not allowed", nil)
			return
		}
		if !s.credentialValid(r) {
			writeRPCError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// originAllowed checks the caller's network origin against the configured
// allowlist. An empty allowlist admits everyone.
func (s *Server) originAllowed(r *http.Request) bool {
	if len(s.config.AllowedOrigins) == 0 {
		return true
	}

	caller := normalizeHost(callerHost(r))
	for _, allowed := range s.config.AllowedOrigins {
		if normalizeHost(allowed) == caller {
			return true
		}
	}
	return false
}

// callerHost resolves the caller's host: the Origin header when the client
// sends one, the remote address otherwise.
func callerHost(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		if u, err := url.Parse(origin); err == nil && u.Host != "" {
			return u.Hostname()
		}
		return origin
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// normalizeHost folds the loopback address forms into one value and
// strips scheme/port noise from allowlist entries.
func normalizeHost(host string) string {
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	host = strings.ToLower(host)

	if host == "localhost" || host == "::1" {
		return loopbackHost
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return loopbackHost
	}
	return host
}

// credentialValid checks the bearer credential against the shared secret
// in constant time. No configured secret means the check is disabled.
func (s *Server) credentialValid(r *http.Request) bool {
	if s.config.SharedSecret == "" {
		return true
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.config.SharedSecret)) == 1
}

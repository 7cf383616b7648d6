package gateway

import (
	"context"
	"net/http"
	"runtime"
	"time"
)

// healthStatus is the payload of GET /healthz.
type healthStatus struct {
	ActiveSessions int    `json:"activeSessions"`
	MaxSessions    int    `json:"maxSessions"`
	UptimeSecs     int64  `json:"uptimeSecs"`
	EventStreams   int    `json:"eventStreams"`
	EventCount     int    `json:"eventCount"`
	HeapAllocBytes uint64 `json:"heapAllocBytes"`
	Version        string `json:"version"`
}

func (s *Server) healthStatus() healthStatus {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return healthStatus{
		ActiveSessions: s.sessions.Count(),
		MaxSessions:    s.sessions.MaxSessions(),
		UptimeSecs:     int64(time.Since(s.started).Seconds()),
		EventStreams:   s.log.CountStreams(),
		EventCount:     s.log.CountEvents(),
		HeapAllocBytes: mem.HeapAlloc,
		Version:        s.config.Version,
	}
}

// health serves the unauthenticated status endpoint.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.healthStatus())
}

// RunHealthReporter logs the health stats on a fixed interval until ctx is
// cancelled. Reporting failures are logged only, never fatal.
func (s *Server) RunHealthReporter(ctx context.Context) {
	interval := s.config.HealthInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := s.healthStatus()
			s.lg.Info().
				Int("activeSessions", st.ActiveSessions).
				Int("maxSessions", st.MaxSessions).
				Int64("uptimeSecs", st.UptimeSecs).
				Int("eventStreams", st.EventStreams).
				Int("eventCount", st.EventCount).
				Uint64("heapAllocBytes", st.HeapAllocBytes).
				Msg("health")
		}
	}
}

package server

import (
	"net/http"
	"runtime"
	"time"
)

type healthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	// LastTick is when the loop last published its state; empty before the
	// first iteration.
	LastTick string `json:"last_tick,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	}
	if at := s.status.Snapshot().UpdatedAt; !at.IsZero() {
		resp.LastTick = at.Format(time.RFC3339)
	}
	respondOK(w, RequestIDFromContext(r.Context()), resp)
}

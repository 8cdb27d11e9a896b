package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/me/gatehouse/pkg/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	status := "healthy"
	active, err := s.sessions.Count(r.Context())
	if err != nil {
		s.logger.Error("count sessions", "error", err)
		status = "degraded"
	}

	respondOK(w, reqID, model.Health{
		Status:         status,
		Version:        Version,
		GoVersion:      runtime.Version(),
		Uptime:         humanize.RelTime(s.startTime, time.Now(), "", ""),
		ActiveSessions: active,
	})
}

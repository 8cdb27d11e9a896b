package server

import "net/http"

// handleListUsers returns all registered users.
// GET /api/v1/users
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	users, err := s.users.ListUsers(r.Context())
	if err != nil {
		s.logger.Error("list users", "error", err)
		respondInternal(w, reqID, "user table unavailable")
		return
	}

	respondOK(w, reqID, users)
}

type sessionStats struct {
	Active        int    `json:"active"`
	TTL           string `json:"ttl"`
	SweepInterval string `json:"sweep_interval"`
	Backend       string `json:"backend"`
}

// handleSessionStats reports the size of the session table.
// GET /api/v1/sessions
func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	n, err := s.sessions.Count(r.Context())
	if err != nil {
		s.logger.Error("count sessions", "error", err)
		respondInternal(w, reqID, "session table unavailable")
		return
	}

	sweep := "off"
	if s.config.Session.SweepInterval > 0 {
		sweep = s.config.Session.SweepInterval.String()
	}
	respondOK(w, reqID, sessionStats{
		Active:        n,
		TTL:           s.sessions.TTL().String(),
		SweepInterval: sweep,
		Backend:       s.config.Session.Backend,
	})
}

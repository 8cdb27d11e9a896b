package server

import (
	"net/http"
	"time"

	"github.com/me/gatehouse/internal/ui"
	"github.com/me/gatehouse/pkg/model"
)

// sessionInfo is the JSON view of a session. The token is never exposed.
type sessionInfo struct {
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	Home      string     `json:"home"`
	ExpiresIn string     `json:"expires_in"`
}

// requireAdminJSON rejects non-admin sessions with a JSON 403. The session
// gate has already run, so a session is normally present.
func requireAdminJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := RequestIDFromContext(r.Context())
		sess := ui.SessionFromContext(r.Context())
		if sess == nil {
			respondUnauthorized(w, reqID)
			return
		}
		if !sess.IsAdmin() {
			respondForbidden(w, reqID, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleMe describes the caller's session.
// GET /api/v1/me
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	sess := ui.SessionFromContext(r.Context())
	if sess == nil {
		respondUnauthorized(w, reqID)
		return
	}

	respondOK(w, reqID, sessionInfo{
		Username:  sess.Username,
		Role:      sess.Role,
		Home:      sess.HomePath(),
		ExpiresIn: s.sessions.Remaining(sess).Round(time.Second).String(),
	})
}

package ui

import (
	"context"
	"net/http"
	"strings"

	"github.com/me/gatehouse/pkg/model"
)

// Context keys for session data.
type contextKey string

const (
	sessionContextKey contextKey = "session"
)

// publicPaths are served without a session.
var publicPaths = map[string]bool{
	"/":        true,
	"/login":   true,
	"/logout":  true,
	"/403":     true,
	"/api/v1":  true,
	"/api/v1/": true,
}

// publicPrefixes are path prefixes served without a session.
var publicPrefixes = []string{
	"/static/",
	"/uploads/",
	"/api/v1/health",
}

// IsPublic reports whether path bypasses the session gate.
func IsPublic(path string) bool {
	if publicPaths[path] {
		return true
	}
	for _, p := range publicPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// SessionFromContext retrieves the session from the request context.
func SessionFromContext(ctx context.Context) *model.Session {
	sess, _ := ctx.Value(sessionContextKey).(*model.Session)
	return sess
}

// ContextWithSession returns ctx carrying sess.
func ContextWithSession(ctx context.Context, sess *model.Session) context.Context {
	return context.WithValue(ctx, sessionContextKey, sess)
}

// apiPrefix marks the JSON API. It gets the session attached like any other
// path, but a request without one is passed on so the API can answer 401
// instead of redirecting.
const apiPrefix = "/api/v1/"

// SessionMiddleware guards every non-public path. Requests without a live
// session are sent to "/"; a live session has its window refreshed and is
// added to the request context.
func (ui *UI) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if IsPublic(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sess, err := ui.liveSession(r)
		if err != nil {
			ui.logger.Error("session lookup failed", "error", err)
		}
		if sess == nil {
			if strings.HasPrefix(r.URL.Path, apiPrefix) {
				next.ServeHTTP(w, r)
				return
			}
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithSession(r.Context(), sess)))
	})
}

// liveSession looks up the request's session and slides its window. A
// session deleted between the lookup and the refresh, by a concurrent
// logout for instance, counts as no session.
func (ui *UI) liveSession(r *http.Request) (*model.Session, error) {
	sess, err := ui.sessionFromRequest(r)
	if err != nil || sess == nil {
		return nil, err
	}
	live, err := ui.sessions.Touch(r.Context(), sess)
	if err != nil {
		return nil, err
	}
	if !live {
		ui.logger.Info("session ended during request", "username", sess.Username)
		return nil, nil
	}
	return sess, nil
}

// AdminMiddleware ensures the user has admin role.
// Must be used after SessionMiddleware.
func (ui *UI) AdminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := SessionFromContext(r.Context())
		if sess == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}

		if !sess.IsAdmin() {
			ui.logger.Warn("attempted admin access", "username", sess.Username, "path", r.URL.Path)
			http.Redirect(w, r, "/403", http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

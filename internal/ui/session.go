package ui

import (
	"net/http"

	"github.com/me/gatehouse/pkg/model"
)

// Cookie names set on a successful login.
const (
	SessionCookieName  = "session_id"
	UsernameCookieName = "username"
	RoleCookieName     = "role"
)

// sessionFromRequest looks up the live session named by the session cookie.
// It returns nil if there is no cookie or the session is gone.
func (ui *UI) sessionFromRequest(r *http.Request) (*model.Session, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return nil, nil // No cookie, no session
	}
	return ui.sessions.Lookup(r.Context(), cookie.Value)
}

// SetSessionCookies sets the session, username, and role cookies. They
// carry no expiry; the server enforces the TTL.
func SetSessionCookies(w http.ResponseWriter, sess *model.Session, secure bool) {
	for _, c := range []struct{ name, value string }{
		{SessionCookieName, sess.Token},
		{UsernameCookieName, sess.Username},
		{RoleCookieName, string(sess.Role)},
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     c.name,
			Value:    c.value,
			Path:     "/",
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// ClearSessionCookies expires all three login cookies.
func ClearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{SessionCookieName, UsernameCookieName, RoleCookieName} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			HttpOnly: true,
			MaxAge:   -1,
		})
	}
}

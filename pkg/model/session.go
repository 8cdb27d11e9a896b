package model

import "time"

// Session is a server-held record tying an opaque token to a user's
// identity and role for a bounded time window.
type Session struct {
	Token    string    `json:"-"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Created  time.Time `json:"created"`
}

// Expired reports whether more than ttl has passed since the session was
// created or last touched.
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.Created) > ttl
}

// Touch resets the session's timestamp, sliding its expiry window forward.
func (s *Session) Touch(now time.Time) {
	s.Created = now
}

// IsAdmin reports whether the session has admin role.
func (s *Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// HomePath returns the page a freshly authenticated user lands on.
func (s *Session) HomePath() string {
	if s.IsAdmin() {
		return "/home/admin"
	}
	return "/home/" + s.Username
}

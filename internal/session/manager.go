// Package session implements the server-side session table: token issue,
// lazy expiry on access, and the sliding refresh applied to every
// authenticated request.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/me/gatehouse/pkg/model"
)

// DefaultTTL is the session lifetime without activity.
const DefaultTTL = 3 * time.Minute

// Manager handles session creation, validation, and cleanup.
type Manager struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a session manager. A non-positive ttl selects DefaultTTL.
func NewManager(st Store, ttl time.Duration, logger *slog.Logger, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		store:  st,
		ttl:    ttl,
		now:    time.Now,
		logger: logger.With("component", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Remaining returns how long sess has left without further activity.
func (m *Manager) Remaining(sess *model.Session) time.Duration {
	return sess.Created.Add(m.ttl).Sub(m.now())
}

// Create issues a new session for an authenticated user.
func (m *Manager) Create(ctx context.Context, username string, role model.Role) (*model.Session, error) {
	sess := &model.Session{
		Token:    uuid.NewString(),
		Username: username,
		Role:     role,
		Created:  m.now(),
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return sess, nil
}

// Lookup returns the live session for token, or nil if there is none.
// An expired session is deleted on the spot.
func (m *Manager) Lookup(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, nil
	}
	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		return nil, nil
	}

	if sess.Expired(m.now(), m.ttl) {
		if err := m.store.Delete(ctx, token); err != nil {
			m.logger.Error("delete expired session", "session", token, "error", err)
		}
		m.logger.Info("session expired", "session", token, "username", sess.Username)
		return nil, nil
	}
	return sess, nil
}

// Touch slides the session's expiry window forward. It reports false when
// the session was deleted since it was looked up; the caller must then
// treat the request as having no session.
func (m *Manager) Touch(ctx context.Context, sess *model.Session) (bool, error) {
	refreshed := *sess
	refreshed.Touch(m.now())
	ok, err := m.store.Refresh(ctx, &refreshed)
	if err != nil {
		return false, fmt.Errorf("touch session: %w", err)
	}
	if ok {
		*sess = refreshed
	}
	return ok, nil
}

// Delete removes a session. Deleting an unknown token is not an error.
func (m *Manager) Delete(ctx context.Context, token string) error {
	return m.store.Delete(ctx, token)
}

// Count returns the number of stored sessions, expired ones included.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Len(ctx)
}

// Sweep removes every expired session in one pass. Stores without bulk
// removal (Redis expires keys on its own) report zero.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	sw, ok := m.store.(sweeper)
	if !ok {
		return 0, nil
	}
	return sw.Sweep(ctx, m.now().Add(-m.ttl))
}

// RunJanitor sweeps expired sessions every interval until ctx is done.
func (m *Manager) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				m.logger.Error("session sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Debug("swept expired sessions", "count", n)
			}
		}
	}
}

package session

import (
	"context"
	"sync"
	"time"

	"github.com/me/gatehouse/pkg/model"
)

// Store holds session records keyed by token.
//
// Get returns (nil, nil) when the token is unknown. Put inserts or replaces.
// Refresh replaces a record only if it is still present and reports whether
// it was; a deleted session must never come back.
type Store interface {
	Get(ctx context.Context, token string) (*model.Session, error)
	Put(ctx context.Context, sess *model.Session) error
	Refresh(ctx context.Context, sess *model.Session) (bool, error)
	Delete(ctx context.Context, token string) error
	Len(ctx context.Context) (int, error)
}

// sweeper is implemented by stores that can drop stale records in bulk.
type sweeper interface {
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}

// MemoryStore is an in-process session table.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemoryStore creates an empty session table.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]model.Session)}
}

func (m *MemoryStore) Get(ctx context.Context, token string) (*model.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[token]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (m *MemoryStore) Put(ctx context.Context, sess *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sess.Token] = *sess
	return nil
}

func (m *MemoryStore) Refresh(ctx context.Context, sess *model.Session) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sess.Token]; !ok {
		return false, nil
	}
	m.sessions[sess.Token] = *sess
	return true, nil
}

func (m *MemoryStore) Delete(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *MemoryStore) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// Clear drops every session.
func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.sessions)
}

// Sweep removes sessions last touched before cutoff.
func (m *MemoryStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, sess := range m.sessions {
		if sess.Created.Before(cutoff) {
			delete(m.sessions, token)
			n++
		}
	}
	return n, nil
}

package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and local development. It
// enforces the same transition rules as the postgres ledger.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(ctx context.Context, sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *sess
	stored.Permissions = append([]string(nil), sess.Permissions...)
	if sess.Metadata != nil {
		stored.Metadata = make(map[string]string, len(sess.Metadata))
		for k, v := range sess.Metadata {
			stored.Metadata[k] = v
		}
	}
	m.sessions[sess.SessionID] = &stored
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	copy := *sess
	return &copy, nil
}

func (m *MemoryStore) MarkRevoked(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	switch sess.Status {
	case StatusRevoked:
		return nil
	case StatusExpired:
		return ErrSessionNotActive
	}
	now := time.Now()
	sess.Status = StatusRevoked
	sess.RevokedAt = &now
	return nil
}

func (m *MemoryStore) MarkExpired(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	if sess.Status == StatusActive {
		sess.Status = StatusExpired
	}
	return nil
}

func (m *MemoryStore) Extend(ctx context.Context, sessionID string, d time.Duration) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if sess.Status != StatusActive {
		return nil, ErrSessionNotActive
	}
	if d > 0 {
		sess.ExpiresAt = sess.ExpiresAt.Add(d)
	}
	copy := *sess
	return &copy, nil
}

func (m *MemoryStore) TouchActivity(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.sessions[sessionID]; ok && sess.Status == StatusActive {
		sess.LastActivityAt = at
	}
	return nil
}

func (m *MemoryStore) ListActiveForUser(ctx context.Context, userID int64) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Session
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.Status == StatusActive {
			copy := *sess
			out = append(out, &copy)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

func (m *MemoryStore) ExpireDue(ctx context.Context, now time.Time) ([]*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expired []*Session
	for _, sess := range m.sessions {
		if sess.Status == StatusActive && !sess.ExpiresAt.After(now) {
			sess.Status = StatusExpired
			copy := *sess
			expired = append(expired, &copy)
		}
	}
	return expired, nil
}

func (m *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{ActivePerService: make(map[string]int64)}
	for _, sess := range m.sessions {
		switch sess.Status {
		case StatusActive:
			stats.Active++
			stats.ActivePerService[sess.Service]++
		case StatusRevoked:
			stats.Revoked++
		case StatusExpired:
			stats.Expired++
		}
	}
	return stats, nil
}

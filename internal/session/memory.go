package session

import (
	"context"
	"sync"
	"time"
)

type memorySession struct {
	attrs     map[string]string
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Expired sessions read as
// empty and are reclaimed by a background janitor.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*memorySession

	janitor *janitor
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryClock replaces time.Now for expiry decisions.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates a store whose sessions live for ttl after their last
// write. A cleanupInterval of zero disables the janitor.
func NewMemoryStore(ttl, cleanupInterval time.Duration, opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*memorySession),
	}
	for _, o := range opts {
		o(m)
	}
	if cleanupInterval > 0 {
		m.janitor = startJanitor("memory", cleanupInterval, m.DeleteExpired)
	}
	return m
}

func (m *MemoryStore) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	if err := checkSessionID(sessionID); err != nil {
		return "", false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok || !m.now().Before(s.expiresAt) {
		return "", false, nil
	}
	v, ok := s.attrs[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID, key, value string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s, ok := m.sessions[sessionID]
	if !ok || !now.Before(s.expiresAt) {
		s = &memorySession{attrs: make(map[string]string)}
		m.sessions[sessionID] = s
	}
	s.attrs[key] = value
	s.expiresAt = now.Add(m.ttl)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID, key string) error {
	if err := checkSessionID(sessionID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[sessionID]; ok {
		delete(s.attrs, key)
		if len(s.attrs) == 0 {
			delete(m.sessions, sessionID)
		}
	}
	return nil
}

// DeleteExpired drops every session past its expiry and returns how many.
func (m *MemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for id, s := range m.sessions {
		if !now.Before(s.expiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live and not yet reclaimed sessions.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close stops the janitor. It is safe to call more than once.
func (m *MemoryStore) Close() error {
	if m.janitor != nil {
		m.janitor.stop()
	}
	return nil
}

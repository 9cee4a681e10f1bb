package session

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store and Directory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
	pages    map[string]string
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]Session),
		pages:    make(map[string]string),
	}
}

func key(provider, identity string) string { return provider + "/" + identity }

// Session returns a copy of the stored session.
func (m *MemoryStore) Session(_ context.Context, provider, identity string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[key(provider, identity)]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

// Save stores a copy of s.
func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[key(s.Provider, s.Identity)] = *s
	return nil
}

// AddPage records owner as the publishing user of page.
func (m *MemoryStore) AddPage(page, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = owner
}

func (m *MemoryStore) PageOwner(_ context.Context, identity string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	owner, ok := m.pages[identity]
	return owner, ok, nil
}

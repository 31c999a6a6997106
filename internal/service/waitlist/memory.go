package waitlist

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store for local runs and tests. Signups are
// lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	signups map[string]*Signup
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{signups: make(map[string]*Signup)}
}

func (m *MemoryStore) Get(ctx context.Context, email string) (*Signup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.signups[email]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) Insert(ctx context.Context, signup *Signup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.signups[signup.Email]; ok {
		return ErrDuplicate
	}
	cp := *signup
	m.signups[signup.Email] = &cp
	return nil
}

func (m *MemoryStore) Update(ctx context.Context, email string, params UpdateParams) (*Signup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.signups[email]
	if !ok {
		return nil, ErrNotFound
	}
	params.Apply(s)
	cp := *s
	return &cp, nil
}

// Len returns the number of stored signups.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.signups)
}

package session

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a single-process Store for tests and local development.
// Expired entries are dropped lazily on read and write.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[int64]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// NewMemoryStore creates a MemoryStore with the given TTL; non-positive TTL
// falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		ttl:     ttl,
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, telegramID int64) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[telegramID]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(e.expiresAt) {
		delete(s.entries, telegramID)
		return nil, ErrNotFound
	}

	cp := e.state
	cp.Data = make(map[string]string, len(e.state.Data))
	for k, v := range e.state.Data {
		cp.Data[k] = v
	}
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, telegramID int64, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *state
	cp.Data = make(map[string]string, len(state.Data))
	for k, v := range state.Data {
		cp.Data[k] = v
	}
	s.entries[telegramID] = memoryEntry{
		state:     cp,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, telegramID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, telegramID)
	return nil
}

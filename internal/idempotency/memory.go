package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec     *Record
	expires time.Time
}

// MemoryStore keeps keys in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Begin(_ context.Context, key string, ttl time.Duration) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		if e.rec == nil {
			return nil, false, nil
		}
		rec := *e.rec
		return &rec, false, nil
	}
	s.entries[key] = memoryEntry{expires: now.Add(ttl)}
	return nil, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{rec: &rec, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Abort(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

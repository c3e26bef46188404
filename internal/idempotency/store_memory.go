package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec       Record
	expiresAt time.Time
}

// InMemoryStore is a process-local Store for tests and single-node use.
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *InMemoryStore) Reserve(_ context.Context, scope, fingerprint string, ttl time.Duration) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[scope]; ok && now.Before(e.expiresAt) {
		return e.rec, false, nil
	}
	rec := Record{Fingerprint: fingerprint}
	s.entries[scope] = memoryEntry{rec: rec, expiresAt: now.Add(ttl)}
	return rec, true, nil
}

func (s *InMemoryStore) Complete(_ context.Context, scope string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[scope]; !ok || !now.Before(e.expiresAt) {
		return ErrNotReserved
	}
	rec.Completed = true
	s.entries[scope] = memoryEntry{rec: rec, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemoryStore) Release(_ context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scope)
	return nil
}

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

// InMemory is a process-local Store. Expired entries are dropped on read.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[string]memoryEntry), now: time.Now}
}

func (s *InMemory) Get(_ context.Context, key string) (*Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key, s.now())
	if !ok {
		return nil, false, nil
	}
	rec := e.rec
	return &rec, true, nil
}

// live returns the unexpired entry for key, dropping it when expired.
func (s *InMemory) live(key string, now time.Time) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *InMemory) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if _, ok := s.live(key, now); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{rec: Record{Pending: true}, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *InMemory) Save(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.live(key, now); ok && !e.rec.Pending {
		return nil
	}
	body := make([]byte, len(rec.Body))
	copy(body, rec.Body)
	rec.Body = body
	rec.Pending = false
	s.entries[key] = memoryEntry{rec: rec, expiresAt: now.Add(ttl)}
	return nil
}

func (s *InMemory) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok && e.rec.Pending {
		delete(s.entries, key)
	}
	return nil
}

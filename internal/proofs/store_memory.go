package proofs

import (
	"context"
	"sync"
)

// InMemory keeps registered hashes in a set.
type InMemory struct {
	mu     sync.RWMutex
	hashes map[string]struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{hashes: make(map[string]struct{})}
}

func (r *InMemory) Store(_ context.Context, content []byte) (string, error) {
	if len(content) == 0 {
		return "", ErrEmptyDocument
	}
	h := Hash(content)
	r.mu.Lock()
	r.hashes[h] = struct{}{}
	r.mu.Unlock()
	return h, nil
}

func (r *InMemory) Exists(_ context.Context, hash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.hashes[hash]
	return ok, nil
}

package outbox

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	txcontext "lexbounty/pkg/platform/tx"
)

// InMemory keeps entries in append order. Entries appended inside a unit of
// work are sequenced and become visible when the unit commits.
type InMemory struct {
	mu      sync.RWMutex
	seq     int64
	entries []Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	txcontext.OnCommit(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.seq++
		entry.Seq = s.seq
		s.entries = append(s.entries, entry)
	})
	return nil
}

func (s *InMemory) FetchUnpublished(_ context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.IsPublished() {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *InMemory) MarkPublished(_ context.Context, ids []uuid.UUID, at time.Time) error {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, entryID := range ids {
		want[entryID] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if _, ok := want[s.entries[i].ID]; ok && s.entries[i].PublishedAt == nil {
			t := at
			s.entries[i].PublishedAt = &t
		}
	}
	return nil
}

func (s *InMemory) ListByAggregate(_ context.Context, aggregateType, aggregateID string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.AggregateType == aggregateType && e.AggregateID == aggregateID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *InMemory) CountUnpublished(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, e := range s.entries {
		if !e.IsPublished() {
			n++
		}
	}
	return n, nil
}

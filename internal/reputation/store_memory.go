package reputation

import (
	"context"
	"sync"
	"time"

	id "lexbounty/pkg/domain"
	txcontext "lexbounty/pkg/platform/tx"
)

type completionKey struct {
	bounty id.BountyID
	index  int
}

// InMemory tracks completions per lawyer. Recording the same milestone twice
// is a no-op. Completions recorded inside a unit of work count once it
// commits.
type InMemory struct {
	mu          sync.RWMutex
	completions map[id.AccountID]map[completionKey]time.Time
}

func NewInMemory() *InMemory {
	return &InMemory{completions: make(map[id.AccountID]map[completionKey]time.Time)}
}

func (t *InMemory) RecordCompletion(ctx context.Context, lawyer id.AccountID, bountyID id.BountyID, milestoneIndex int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := completionKey{bounty: bountyID, index: milestoneIndex}
	txcontext.OnCommit(ctx, func() { t.record(lawyer, key, time.Now()) })
	return nil
}

func (t *InMemory) record(lawyer id.AccountID, key completionKey, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	byLawyer, ok := t.completions[lawyer]
	if !ok {
		byLawyer = make(map[completionKey]time.Time)
		t.completions[lawyer] = byLawyer
	}
	if _, exists := byLawyer[key]; !exists {
		byLawyer[key] = at
	}
}

func (t *InMemory) Summary(_ context.Context, lawyer id.AccountID) (*Summary, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	bounties := make(map[id.BountyID]struct{})
	for key := range t.completions[lawyer] {
		bounties[key.bounty] = struct{}{}
	}
	return &Summary{
		Lawyer:              lawyer,
		CompletedMilestones: len(t.completions[lawyer]),
		DistinctBounties:    len(bounties),
	}, nil
}

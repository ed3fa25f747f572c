package store

import (
	"context"
	"sort"
	"sync"

	"lexbounty/internal/bounty/models"
	id "lexbounty/pkg/domain"
	txcontext "lexbounty/pkg/platform/tx"
)

// InMemory stores clones of bounties so readers always see a committed
// snapshot. Inside a unit of work writes go to a private overlay that only
// that unit reads; the overlay replaces the committed copies on commit.
type InMemory struct {
	mu       sync.RWMutex
	bounties map[id.BountyID]*models.Bounty
	staged   map[*txcontext.Journal]map[id.BountyID]*models.Bounty
}

func NewInMemory() *InMemory {
	return &InMemory{
		bounties: make(map[id.BountyID]*models.Bounty),
		staged:   make(map[*txcontext.Journal]map[id.BountyID]*models.Bounty),
	}
}

// lookup returns the caller's staged copy if any, else the committed one.
// Callers hold s.mu.
func (s *InMemory) lookup(ctx context.Context, bountyID id.BountyID) (*models.Bounty, bool) {
	if j, ok := txcontext.Current(ctx); ok {
		if b, ok := s.staged[j][bountyID]; ok {
			return b, true
		}
	}
	b, ok := s.bounties[bountyID]
	return b, ok
}

// stage records a write for the unit of work in ctx, or applies it directly
// outside one. Callers hold s.mu for writing.
func (s *InMemory) stage(ctx context.Context, b *models.Bounty) {
	j, ok := txcontext.Current(ctx)
	if !ok {
		s.bounties[b.ID] = b.Clone()
		return
	}
	overlay, ok := s.staged[j]
	if !ok {
		overlay = make(map[id.BountyID]*models.Bounty)
		s.staged[j] = overlay
		txcontext.OnCommit(ctx, func() { s.settle(j, true) })
		txcontext.OnRollback(ctx, func() { s.settle(j, false) })
	}
	overlay[b.ID] = b.Clone()
}

func (s *InMemory) settle(j *txcontext.Journal, apply bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if apply {
		for bountyID, b := range s.staged[j] {
			s.bounties[bountyID] = b
		}
	}
	delete(s.staged, j)
}

func (s *InMemory) Create(ctx context.Context, b *models.Bounty) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lookup(ctx, b.ID); exists {
		return ErrConflict
	}
	b.Version = 1
	s.stage(ctx, b)
	return nil
}

func (s *InMemory) FindByID(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.lookup(ctx, bountyID)
	if !ok {
		return nil, ErrNotFound
	}
	return b.Clone(), nil
}

// FindForUpdate is FindByID: the per-bounty lock is held by the caller's
// transaction runner.
func (s *InMemory) FindForUpdate(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	return s.FindByID(ctx, bountyID)
}

// Update replaces the bounty when b.Version matches the copy the caller can
// see, then bumps the version. A rollback restores the caller's version.
func (s *InMemory) Update(ctx context.Context, b *models.Bounty) error {
	s.mu.Lock()
	current, ok := s.lookup(ctx, b.ID)
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if current.Version != b.Version {
		s.mu.Unlock()
		return ErrConflict
	}
	b.Version++
	s.stage(ctx, b)
	s.mu.Unlock()

	txcontext.OnRollback(ctx, func() { b.Version-- })
	return nil
}

func (s *InMemory) ListByStatus(_ context.Context, status models.BountyStatus) ([]*models.Bounty, error) {
	s.mu.RLock()
	var out []*models.Bounty
	for _, b := range s.bounties {
		if status == "" || b.Status == status {
			out = append(out, b.Clone())
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *InMemory) ListContributionsByDonor(_ context.Context, donor id.AccountID) ([]models.FundingContribution, error) {
	s.mu.RLock()
	var out []models.FundingContribution
	for _, b := range s.bounties {
		for _, fc := range b.Contributions {
			if fc.Donor == donor {
				c := fc
				if fc.RefundedAt != nil {
					at := *fc.RefundedAt
					c.RefundedAt = &at
				}
				out = append(out, c)
			}
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

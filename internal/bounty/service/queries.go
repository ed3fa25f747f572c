package service

import (
	"context"
	"errors"

	"lexbounty/internal/bounty/escrow"
	"lexbounty/internal/bounty/models"
	"lexbounty/internal/bounty/store"
	"lexbounty/internal/proofs"
	"lexbounty/internal/reputation"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
)

// Queries read committed snapshots without taking the per-bounty lock.

func (s *Service) GetBounty(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	b, err := s.store.FindByID(ctx, bountyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "bounty not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load bounty")
	}
	return b, nil
}

func (s *Service) GetMilestone(ctx context.Context, bountyID id.BountyID, index int) (*models.Milestone, error) {
	b, err := s.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	return b.Milestone(index)
}

// ListBountiesByStatus lists bounties in status, or every bounty when status
// is empty.
func (s *Service) ListBountiesByStatus(ctx context.Context, status models.BountyStatus) ([]*models.Bounty, error) {
	if status != "" && !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "unknown bounty status: "+string(status))
	}
	bounties, err := s.store.ListByStatus(ctx, status)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list bounties")
	}
	return bounties, nil
}

func (s *Service) ListContributionsByDonor(ctx context.Context, donor id.AccountID) ([]models.FundingContribution, error) {
	contributions, err := s.store.ListContributionsByDonor(ctx, donor)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list contributions")
	}
	return contributions, nil
}

// GetEscrowBalance reports the derived escrow balance next to the balance the
// token ledger holds for the bounty.
func (s *Service) GetEscrowBalance(ctx context.Context, bountyID id.BountyID) (*escrow.Snapshot, error) {
	b, err := s.GetBounty(ctx, bountyID)
	if err != nil {
		return nil, err
	}
	snap, err := s.escrow.Reconcile(ctx, b)
	if err != nil {
		return nil, err
	}
	if !snap.InBalance {
		s.logger.WarnContext(ctx, "escrow out of balance",
			"bounty_id", bountyID.String(),
			"derived", snap.Derived,
			"ledger", snap.OnLedger,
		)
	}
	return snap, nil
}

// ListEvents returns the domain events of a bounty in append order.
func (s *Service) ListEvents(ctx context.Context, bountyID id.BountyID) ([]models.Event, error) {
	if _, err := s.GetBounty(ctx, bountyID); err != nil {
		return nil, err
	}
	entries, err := s.events.ListByAggregate(ctx, models.AggregateType, bountyID.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return decodeEvents(entries)
}

func (s *Service) GetReputation(ctx context.Context, lawyer id.AccountID) (*reputation.Summary, error) {
	summary, err := s.reputation.Summary(ctx, lawyer)
	if err != nil {
		return nil, collaboratorFailure(err, "failed to read reputation")
	}
	return summary, nil
}

// StoreProof registers document content and returns its hash.
func (s *Service) StoreProof(ctx context.Context, content []byte) (string, error) {
	if s.proofs == nil {
		return "", dErrors.New(dErrors.CodeUnavailable, "proof registry is not configured")
	}
	h, err := s.proofs.Store(ctx, content)
	if err != nil {
		if errors.Is(err, proofs.ErrEmptyDocument) {
			return "", dErrors.New(dErrors.CodeValidation, "document is empty")
		}
		return "", collaboratorFailure(err, "failed to register proof")
	}
	return h, nil
}

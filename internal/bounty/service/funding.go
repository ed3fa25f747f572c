package service

import (
	"context"
	"errors"

	"lexbounty/internal/bounty/guard"
	"lexbounty/internal/bounty/models"
	"lexbounty/internal/bounty/store"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
	"lexbounty/pkg/requestcontext"
)

// CreateBounty validates spec and persists an open, unfunded bounty owned by
// ngo.
func (s *Service) CreateBounty(ctx context.Context, ngo id.AccountID, spec models.BountySpec) (*models.Bounty, error) {
	if err := guard.RequireAuthenticated(ngo); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	b, err := models.NewBounty(id.NewBountyID(), ngo, spec, now)
	if err != nil {
		return nil, err
	}

	err = s.command(ctx, "create_bounty", b.ID, ngo, func(ctx context.Context) error {
		if err := s.store.Create(ctx, b); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "bounty already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create bounty")
		}
		return s.emit(ctx, models.NewEvent(models.EventBountyCreated, b.ID, ngo, now).WithAmount(b.TotalAmount))
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(models.StatusOpen)
	return b, nil
}

// FundBounty moves amount from donor into the bounty's escrow and records the
// contribution.
func (s *Service) FundBounty(ctx context.Context, donor id.AccountID, bountyID id.BountyID, amount int64) (*models.FundingContribution, error) {
	if err := guard.RequireAuthenticated(donor); err != nil {
		return nil, err
	}
	var contribution models.FundingContribution
	err := s.command(ctx, "fund_bounty", bountyID, donor, func(ctx context.Context) error {
		b, err := s.loadForUpdate(ctx, bountyID)
		if err != nil {
			return err
		}
		if err := b.CanFund(amount); err != nil {
			return err
		}
		if err := s.escrow.Deposit(ctx, b.ID, donor, amount); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		contribution = b.ApplyFunding(id.NewContributionID(), donor, amount, now)
		if err := s.save(ctx, b); err != nil {
			return err
		}
		return s.emit(ctx, models.NewEvent(models.EventBountyFunded, b.ID, donor, now).WithAmount(amount))
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FundsDeposited.Add(float64(amount))
	}
	return &contribution, nil
}

// AssignLawyer sets the bounty's single lawyer and starts the engagement.
// Only the owning NGO may assign.
func (s *Service) AssignLawyer(ctx context.Context, ngo id.AccountID, bountyID id.BountyID, lawyer id.AccountID) (*models.Bounty, error) {
	var result *models.Bounty
	err := s.command(ctx, "assign_lawyer", bountyID, ngo, func(ctx context.Context) error {
		b, err := s.loadForUpdate(ctx, bountyID)
		if err != nil {
			return err
		}
		if err := guard.RequireNGO(b, ngo); err != nil {
			return err
		}
		if err := b.CanAssignLawyer(lawyer, s.policy.RequireFullFundingBeforeAssign); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		b.ApplyLawyerAssignment(lawyer, now)
		if err := s.save(ctx, b); err != nil {
			return err
		}
		result = b
		return s.emit(ctx, models.NewEvent(models.EventLawyerAssigned, b.ID, ngo, now).WithCounterparty(lawyer))
	})
	if err != nil {
		return nil, err
	}
	s.recordTransition(models.StatusInProgress)
	return result, nil
}

// CancelBounty refunds every contribution and closes an open bounty. Only the
// owning NGO may cancel.
func (s *Service) CancelBounty(ctx context.Context, ngo id.AccountID, bountyID id.BountyID) (*models.Bounty, error) {
	var (
		result   *models.Bounty
		refunded int64
	)
	err := s.command(ctx, "cancel_bounty", bountyID, ngo, func(ctx context.Context) error {
		b, err := s.loadForUpdate(ctx, bountyID)
		if err != nil {
			return err
		}
		if err := guard.RequireNGO(b, ngo); err != nil {
			return err
		}
		if err := b.CanCancel(); err != nil {
			return err
		}
		for _, fc := range b.RefundableContributions() {
			if err := s.escrow.Refund(ctx, b.ID, fc.Donor, fc.Amount); err != nil {
				return err
			}
		}

		now := requestcontext.Now(ctx)
		refunded = b.ApplyCancellation(now)
		if err := s.save(ctx, b); err != nil {
			return err
		}
		result = b
		return s.emit(ctx, models.NewEvent(models.EventBountyCancelled, b.ID, ngo, now).WithAmount(refunded))
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FundsRefunded.Add(float64(refunded))
	}
	s.recordTransition(models.StatusCancelled)
	return result, nil
}

// loadForUpdate reads the bounty under the unit of work's lock.
func (s *Service) loadForUpdate(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	b, err := s.store.FindForUpdate(ctx, bountyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "bounty not found")
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, AsTimeout(err)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load bounty")
	}
	return b, nil
}

// save checks invariants and writes b with its version guard.
func (s *Service) save(ctx context.Context, b *models.Bounty) error {
	if err := s.checkInvariants(ctx, b); err != nil {
		return err
	}
	if err := s.store.Update(ctx, b); err != nil {
		switch {
		case errors.Is(err, store.ErrConflict):
			return dErrors.New(dErrors.CodeConflict, "bounty was modified concurrently")
		case errors.Is(err, store.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "bounty not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save bounty")
	}
	return nil
}

package service

import (
	"context"

	"lexbounty/internal/bounty/guard"
	"lexbounty/internal/bounty/models"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
	"lexbounty/pkg/requestcontext"
)

// SubmitMilestoneProof attaches or replaces the unverified proof hash of a
// milestone. Only the assigned lawyer may submit.
func (s *Service) SubmitMilestoneProof(ctx context.Context, lawyer id.AccountID, bountyID id.BountyID, index int, proofHash string) (*models.Milestone, error) {
	var result models.Milestone
	err := s.command(ctx, "submit_milestone_proof", bountyID, lawyer, func(ctx context.Context) error {
		b, err := s.loadForUpdate(ctx, bountyID)
		if err != nil {
			return err
		}
		if err := guard.RequireLawyer(b, lawyer); err != nil {
			return err
		}
		if err := b.CanSubmitProof(index, proofHash); err != nil {
			return err
		}
		if err := s.requireRegisteredProof(ctx, proofHash); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		b.ApplyProof(index, proofHash, now)
		if err := s.save(ctx, b); err != nil {
			return err
		}
		result = b.Milestones[index]
		return s.emit(ctx, models.NewEvent(models.EventMilestoneProofSubmitted, b.ID, lawyer, now).
			ForMilestone(index).
			WithProofHash(result.ProofHash))
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func (s *Service) requireRegisteredProof(ctx context.Context, proofHash string) error {
	if !s.policy.RequireRegisteredProofs {
		return nil
	}
	if s.proofs == nil {
		return dErrors.New(dErrors.CodeUnavailable, "proof registry is not configured")
	}
	ok, err := s.proofs.Exists(ctx, proofHash)
	if err != nil {
		return collaboratorFailure(err, "proof registry lookup failed")
	}
	if !ok {
		return dErrors.New(dErrors.CodeValidation, "proof hash is not registered").WithReason(models.ReasonUnknownProof)
	}
	return nil
}

// VerifyMilestone confirms a milestone's proof, pays the lawyer from escrow,
// credits their reputation and completes the bounty after its last
// milestone. Only the owning NGO may verify. All steps commit together.
func (s *Service) VerifyMilestone(ctx context.Context, ngo id.AccountID, bountyID id.BountyID, index int) (*models.Bounty, error) {
	var (
		result   *models.Bounty
		paid     int64
		finished bool
	)
	err := s.command(ctx, "verify_milestone", bountyID, ngo, func(ctx context.Context) error {
		b, err := s.loadForUpdate(ctx, bountyID)
		if err != nil {
			return err
		}
		if err := guard.RequireNGO(b, ngo); err != nil {
			return err
		}
		if err := b.CanVerifyMilestone(index); err != nil {
			return err
		}

		m := b.Milestones[index]
		if err := s.escrow.Release(ctx, b.ID, b.Lawyer, m.Amount); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		finished = b.ApplyMilestoneCompletion(index, now)
		if err := s.reputation.RecordCompletion(ctx, b.Lawyer, b.ID, index); err != nil {
			return collaboratorFailure(err, "failed to record lawyer completion")
		}
		if err := s.save(ctx, b); err != nil {
			return err
		}
		paid = m.Amount
		result = b

		events := []models.Event{
			models.NewEvent(models.EventMilestoneCompleted, b.ID, ngo, now).ForMilestone(index).WithProofHash(m.ProofHash),
			models.NewEvent(models.EventMilestonePaid, b.ID, ngo, now).ForMilestone(index).WithAmount(m.Amount).WithCounterparty(b.Lawyer),
		}
		if finished {
			events = append(events, models.NewEvent(models.EventBountyCompleted, b.ID, ngo, now).WithAmount(b.PaidAmount()))
		}
		return s.emit(ctx, events...)
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.FundsReleased.Add(float64(paid))
	}
	if finished {
		s.recordTransition(models.StatusCompleted)
	}
	return result, nil
}

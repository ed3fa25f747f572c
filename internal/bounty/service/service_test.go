package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,TokenLedger,ReputationTracker,ProofRegistry,EventStore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"lexbounty/internal/bounty/metrics"
	"lexbounty/internal/bounty/models"
	"lexbounty/internal/bounty/store"
	"lexbounty/internal/ledger"
	"lexbounty/internal/outbox"
	"lexbounty/internal/proofs"
	"lexbounty/internal/reputation"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
	"lexbounty/pkg/requestcontext"
)

const startingBalance = 10_000

type ServiceSuite struct {
	suite.Suite
	ctx        context.Context
	now        time.Time
	store      *store.InMemory
	ledger     *ledger.InMemory
	reputation *reputation.InMemory
	events     *outbox.InMemory
	proofs     *proofs.InMemory
	metrics    *metrics.Metrics
	svc        *Service

	ngo, lawyer, donorA, donorB id.AccountID
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.store = store.NewInMemory()
	s.ledger = ledger.NewInMemory()
	s.reputation = reputation.NewInMemory()
	s.events = outbox.NewInMemory()
	s.proofs = proofs.NewInMemory()
	s.metrics = metrics.New(prometheus.NewRegistry())
	s.svc = s.newService(Policy{})

	s.ngo, s.lawyer = id.AccountID(uuid.New()), id.AccountID(uuid.New())
	s.donorA, s.donorB = id.AccountID(uuid.New()), id.AccountID(uuid.New())
	for _, donor := range []id.AccountID{s.donorA, s.donorB} {
		s.Require().NoError(s.ledger.Credit(context.Background(), ledger.UserAccount(donor), startingBalance))
	}
}

func (s *ServiceSuite) newService(p Policy) *Service {
	return New(s.store, s.ledger, s.reputation, s.events,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithPolicy(p),
		WithProofRegistry(s.proofs),
	)
}

func (s *ServiceSuite) spec() models.BountySpec {
	return models.BountySpec{
		Title:       "Community land title defence",
		Description: "Defend 40 households against eviction",
		Category:    "land",
		Location:    "Kisumu",
		DueDate:     s.now.Add(120 * 24 * time.Hour),
		TotalAmount: 1000,
		Milestones: []models.MilestoneSpec{
			{Title: "File defence", Amount: 600, ProofRequired: "stamped defence"},
			{Title: "Judgment", Amount: 400, ProofRequired: "judgment copy"},
		},
	}
}

func (s *ServiceSuite) createBounty() *models.Bounty {
	b, err := s.svc.CreateBounty(s.ctx, s.ngo, s.spec())
	s.Require().NoError(err)
	return b
}

// fullyFundedBounty has two donors funding 500 each.
func (s *ServiceSuite) fullyFundedBounty() *models.Bounty {
	b := s.createBounty()
	_, err := s.svc.FundBounty(s.ctx, s.donorA, b.ID, 500)
	s.Require().NoError(err)
	_, err = s.svc.FundBounty(s.ctx, s.donorB, b.ID, 500)
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) inProgressBounty() *models.Bounty {
	b := s.fullyFundedBounty()
	_, err := s.svc.AssignLawyer(s.ctx, s.ngo, b.ID, s.lawyer)
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) get(bountyID id.BountyID) *models.Bounty {
	b, err := s.svc.GetBounty(s.ctx, bountyID)
	s.Require().NoError(err)
	return b
}

func (s *ServiceSuite) balance(account id.AccountID) int64 {
	bal, err := s.ledger.Balance(context.Background(), ledger.UserAccount(account))
	s.Require().NoError(err)
	return bal
}

func (s *ServiceSuite) escrowOnLedger(bountyID id.BountyID) int64 {
	bal, err := s.ledger.Balance(context.Background(), ledger.EscrowAccount(bountyID))
	s.Require().NoError(err)
	return bal
}

func (s *ServiceSuite) eventTypes(bountyID id.BountyID) []models.EventType {
	events, err := s.svc.ListEvents(s.ctx, bountyID)
	s.Require().NoError(err)
	out := make([]models.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func (s *ServiceSuite) assertInvariants(b *models.Bounty) {
	s.Require().NoError(b.CheckInvariants())
	s.Equal(b.EscrowBalance(), s.escrowOnLedger(b.ID), "ledger escrow must match derived balance")
}

func (s *ServiceSuite) TestCreateBounty() {
	s.Run("persists open bounty and emits created event", func() {
		b := s.createBounty()
		got := s.get(b.ID)
		s.Equal(models.StatusOpen, got.Status)
		s.Equal(s.ngo, got.NGO)
		s.Zero(got.RaisedAmount)
		s.Equal([]models.EventType{models.EventBountyCreated}, s.eventTypes(b.ID))
	})

	s.Run("milestone sum mismatch is a validation error", func() {
		spec := s.spec()
		spec.Milestones[0].Amount = 100
		_, err := s.svc.CreateBounty(s.ctx, s.ngo, spec)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.True(dErrors.HasReason(err, models.ReasonMilestoneSumMismatch))
	})

	s.Run("anonymous caller is unauthorized", func() {
		_, err := s.svc.CreateBounty(s.ctx, id.AccountID{}, s.spec())
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestPooledFundingStaysOpen() {
	b := s.fullyFundedBounty()

	got := s.get(b.ID)
	s.Equal(int64(1000), got.RaisedAmount)
	s.Equal(models.StatusOpen, got.Status)
	s.Len(got.Contributions, 2)
	s.Equal(int64(startingBalance-500), s.balance(s.donorA))
	s.assertInvariants(got)
	s.Equal(float64(1000), testutil.ToFloat64(s.metrics.FundsDeposited))
}

func (s *ServiceSuite) TestOverfundingRejected() {
	b := s.fullyFundedBounty()

	_, err := s.svc.FundBounty(s.ctx, s.donorA, b.ID, 1500)

	s.True(dErrors.HasCode(err, dErrors.CodeFunds))
	s.True(dErrors.HasReason(err, models.ReasonExceedsFundingGoal))
	got := s.get(b.ID)
	s.Equal(int64(1000), got.RaisedAmount)
	s.Equal(int64(startingBalance-500), s.balance(s.donorA))
}

func (s *ServiceSuite) TestVerifiedMilestonePaysLawyer() {
	b := s.inProgressBounty()

	_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("filing")))
	s.Require().NoError(err)
	got, err := s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0)
	s.Require().NoError(err)

	s.Equal(int64(600), s.balance(s.lawyer))
	s.True(got.Milestones[0].Completed)
	s.True(got.Milestones[0].Paid)
	s.Equal(models.StatusInProgress, got.Status)
	s.Equal(int64(400), got.EscrowBalance())
	s.assertInvariants(s.get(b.ID))

	rep, err := s.svc.GetReputation(s.ctx, s.lawyer)
	s.Require().NoError(err)
	s.Equal(1, rep.CompletedMilestones)
}

func (s *ServiceSuite) TestLastMilestoneCompletesBounty() {
	b := s.inProgressBounty()
	for i := range 2 {
		_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, i, proofs.Hash([]byte("proof")))
		s.Require().NoError(err)
		_, err = s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, i)
		s.Require().NoError(err)
	}

	got := s.get(b.ID)
	s.Equal(models.StatusCompleted, got.Status)
	s.Equal(int64(1000), s.balance(s.lawyer))
	s.Zero(got.EscrowBalance())
	s.assertInvariants(got)

	_, err := s.svc.FundBounty(s.ctx, s.donorA, b.ID, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	_, err = s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 1, proofs.Hash([]byte("late")))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))

	s.Equal([]models.EventType{
		models.EventBountyCreated,
		models.EventBountyFunded,
		models.EventBountyFunded,
		models.EventLawyerAssigned,
		models.EventMilestoneProofSubmitted,
		models.EventMilestoneCompleted,
		models.EventMilestonePaid,
		models.EventMilestoneProofSubmitted,
		models.EventMilestoneCompleted,
		models.EventMilestonePaid,
		models.EventBountyCompleted,
	}, s.eventTypes(b.ID))
}

func (s *ServiceSuite) TestCancelRefundsDonors() {
	b := s.fullyFundedBounty()

	got, err := s.svc.CancelBounty(s.ctx, s.ngo, b.ID)
	s.Require().NoError(err)

	s.Equal(models.StatusCancelled, got.Status)
	s.Equal(int64(startingBalance), s.balance(s.donorA))
	s.Equal(int64(startingBalance), s.balance(s.donorB))
	s.Zero(s.escrowOnLedger(b.ID))
	for _, fc := range got.Contributions {
		s.True(fc.IsRefunded())
	}
	s.assertInvariants(s.get(b.ID))

	_, err = s.svc.FundBounty(s.ctx, s.donorA, b.ID, 10)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
}

func (s *ServiceSuite) TestCancelInProgressIsUnsupported() {
	b := s.inProgressBounty()
	_, err := s.svc.CancelBounty(s.ctx, s.ngo, b.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Equal(int64(1000), s.escrowOnLedger(b.ID))
}

func (s *ServiceSuite) TestReverificationHasNoSideEffect() {
	b := s.inProgressBounty()
	_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("filing")))
	s.Require().NoError(err)
	_, err = s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0)
	s.Require().NoError(err)
	before := s.get(b.ID)
	eventsBefore := len(s.eventTypes(b.ID))

	_, err = s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0)

	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	after := s.get(b.ID)
	s.Equal(before.Version, after.Version)
	s.Equal(int64(600), s.balance(s.lawyer))
	s.Len(s.eventTypes(b.ID), eventsBefore)
}

func (s *ServiceSuite) TestProofReplacementBeforeVerification() {
	b := s.inProgressBounty()
	_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 1, proofs.Hash([]byte("draft")))
	s.Require().NoError(err)
	m, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 1, proofs.Hash([]byte("final")))
	s.Require().NoError(err)
	s.Equal(proofs.Hash([]byte("final")), m.ProofHash)
	s.False(m.Completed)

	got, err := s.svc.GetMilestone(s.ctx, b.ID, 1)
	s.Require().NoError(err)
	s.Equal(proofs.Hash([]byte("final")), got.ProofHash)
}

func (s *ServiceSuite) TestVerifyWithoutProofIsStateError() {
	b := s.inProgressBounty()
	_, err := s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.Zero(s.balance(s.lawyer))
}

func (s *ServiceSuite) TestUnderfundedEscrowCannotPay() {
	b := s.createBounty()
	_, err := s.svc.FundBounty(s.ctx, s.donorA, b.ID, 100)
	s.Require().NoError(err)
	_, err = s.svc.AssignLawyer(s.ctx, s.ngo, b.ID, s.lawyer)
	s.Require().NoError(err)
	_, err = s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("x")))
	s.Require().NoError(err)

	_, err = s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0)

	s.True(dErrors.HasCode(err, dErrors.CodeFunds))
	s.True(dErrors.HasReason(err, models.ReasonInsufficientEscrow))
	s.Equal(int64(100), s.escrowOnLedger(b.ID))
}

func (s *ServiceSuite) TestAuthorization() {
	b := s.fullyFundedBounty()
	stranger := id.AccountID(uuid.New())

	s.Run("only the ngo assigns", func() {
		_, err := s.svc.AssignLawyer(s.ctx, stranger, b.ID, s.lawyer)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("only the ngo cancels", func() {
		_, err := s.svc.CancelBounty(s.ctx, s.donorA, b.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	_, err := s.svc.AssignLawyer(s.ctx, s.ngo, b.ID, s.lawyer)
	s.Require().NoError(err)

	s.Run("only the assigned lawyer submits proof", func() {
		_, err := s.svc.SubmitMilestoneProof(s.ctx, s.ngo, b.ID, 0, proofs.Hash([]byte("x")))
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
	s.Run("only the ngo verifies", func() {
		_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("x")))
		s.Require().NoError(err)
		_, err = s.svc.VerifyMilestone(s.ctx, s.lawyer, b.ID, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Zero(s.balance(s.lawyer))
	})
	s.Run("lawyer is assigned once", func() {
		_, err := s.svc.AssignLawyer(s.ctx, s.ngo, b.ID, stranger)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *ServiceSuite) TestNotFound() {
	missing := id.NewBountyID()
	_, err := s.svc.FundBounty(s.ctx, s.donorA, missing, 10)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.svc.GetBounty(s.ctx, missing)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	_, err = s.svc.ListEvents(s.ctx, missing)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	b := s.createBounty()
	_, err = s.svc.GetMilestone(s.ctx, b.ID, 5)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestDonorWithoutBalanceLeavesNoTrace() {
	b := s.createBounty()
	broke := id.AccountID(uuid.New())

	_, err := s.svc.FundBounty(s.ctx, broke, b.ID, 10)

	s.True(dErrors.HasCode(err, dErrors.CodeFunds))
	s.True(dErrors.HasReason(err, models.ReasonInsufficientBalance))
	got := s.get(b.ID)
	s.Zero(got.RaisedAmount)
	s.Empty(got.Contributions)
	s.Equal([]models.EventType{models.EventBountyCreated}, s.eventTypes(b.ID))
}

func (s *ServiceSuite) TestFullFundingPolicy() {
	strict := s.newService(Policy{RequireFullFundingBeforeAssign: true})
	b := s.createBounty()
	_, err := s.svc.FundBounty(s.ctx, s.donorA, b.ID, 500)
	s.Require().NoError(err)

	_, err = strict.AssignLawyer(s.ctx, s.ngo, b.ID, s.lawyer)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	s.True(dErrors.HasReason(err, models.ReasonFundingIncomplete))

	_, err = s.svc.AssignLawyer(s.ctx, s.ngo, b.ID, s.lawyer)
	s.NoError(err, "default policy allows partial funding")
}

func (s *ServiceSuite) TestRegisteredProofPolicy() {
	strict := s.newService(Policy{RequireRegisteredProofs: true})
	b := s.inProgressBounty()

	_, err := strict.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("unregistered")))
	s.True(dErrors.HasReason(err, models.ReasonUnknownProof))

	h, err := strict.StoreProof(s.ctx, []byte("stamped defence"))
	s.Require().NoError(err)
	_, err = strict.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, h)
	s.NoError(err)

	_, err = strict.StoreProof(s.ctx, nil)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestMalformedProofHashIsRejected() {
	b := s.inProgressBounty()

	_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, "sha256:proof")

	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.True(dErrors.HasReason(err, models.ReasonMalformedProof))
	s.Empty(s.get(b.ID).Milestones[0].ProofHash)
}

func (s *ServiceSuite) TestConcurrentFundingNeverExceedsGoal() {
	b := s.createBounty()
	const donors = 40
	accounts := make([]id.AccountID, donors)
	for i := range accounts {
		accounts[i] = id.AccountID(uuid.New())
		s.Require().NoError(s.ledger.Credit(context.Background(), ledger.UserAccount(accounts[i]), 100))
	}

	var wg sync.WaitGroup
	var ok, rejected atomic.Int32
	for _, donor := range accounts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.svc.FundBounty(s.ctx, donor, b.ID, 100)
			switch {
			case err == nil:
				ok.Add(1)
			case dErrors.HasReason(err, models.ReasonExceedsFundingGoal):
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(10), ok.Load())
	s.Equal(int32(donors-10), rejected.Load())
	got := s.get(b.ID)
	s.Equal(int64(1000), got.RaisedAmount)
	s.assertInvariants(got)
}

func (s *ServiceSuite) TestConcurrentVerifyPaysOnce() {
	b := s.inProgressBounty()
	_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("filing")))
	s.Require().NoError(err)

	var wg sync.WaitGroup
	var ok atomic.Int32
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0); err == nil {
				ok.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int64(600), s.balance(s.lawyer))
	s.assertInvariants(s.get(b.ID))
}

func (s *ServiceSuite) TestCancelledContextAborts() {
	b := s.createBounty()
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	_, err := s.svc.FundBounty(ctx, s.donorA, b.ID, 10)

	s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
	s.Zero(s.get(b.ID).RaisedAmount)
}

func (s *ServiceSuite) TestEscrowBalance() {
	b := s.inProgressBounty()
	_, err := s.svc.SubmitMilestoneProof(s.ctx, s.lawyer, b.ID, 0, proofs.Hash([]byte("filing")))
	s.Require().NoError(err)
	_, err = s.svc.VerifyMilestone(s.ctx, s.ngo, b.ID, 0)
	s.Require().NoError(err)

	snap, err := s.svc.GetEscrowBalance(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Equal(int64(1000), snap.RaisedAmount)
	s.Equal(int64(600), snap.PaidAmount)
	s.Equal(int64(400), snap.Derived)
	s.Equal(int64(400), snap.OnLedger)
	s.True(snap.InBalance)
}

func (s *ServiceSuite) TestListings() {
	open := s.createBounty()
	started := s.inProgressBounty()

	list, err := s.svc.ListBountiesByStatus(s.ctx, models.StatusOpen)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(open.ID, list[0].ID)

	list, err = s.svc.ListBountiesByStatus(s.ctx, models.StatusInProgress)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(started.ID, list[0].ID)

	_, err = s.svc.ListBountiesByStatus(s.ctx, "archived")
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	contributions, err := s.svc.ListContributionsByDonor(s.ctx, s.donorA)
	s.Require().NoError(err)
	s.Require().Len(contributions, 1)
	s.Equal(started.ID, contributions[0].BountyID)
}

func (s *ServiceSuite) TestEventsCarryActorAndAmounts() {
	b := s.inProgressBounty()
	events, err := s.svc.ListEvents(s.ctx, b.ID)
	s.Require().NoError(err)
	s.Require().Len(events, 4)

	funded := events[1]
	s.Equal(models.EventBountyFunded, funded.Type)
	s.Equal(s.donorA, funded.Actor)
	s.Equal(int64(500), funded.Amount)
	s.True(s.now.Equal(funded.OccurredAt))

	assigned := events[3]
	s.Equal(s.ngo, assigned.Actor)
	s.Require().NotNil(assigned.Counterparty)
	s.Equal(s.lawyer, *assigned.Counterparty)
}

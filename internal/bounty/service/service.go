package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lexbounty/internal/bounty/escrow"
	"lexbounty/internal/bounty/metrics"
	"lexbounty/internal/bounty/models"
	"lexbounty/internal/ledger"
	"lexbounty/internal/outbox"
	"lexbounty/internal/reputation"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
	"lexbounty/pkg/requestcontext"
)

// Store persists bounty aggregates.
type Store interface {
	Create(ctx context.Context, b *models.Bounty) error
	FindByID(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error)
	FindForUpdate(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error)
	Update(ctx context.Context, b *models.Bounty) error
	ListByStatus(ctx context.Context, status models.BountyStatus) ([]*models.Bounty, error)
	ListContributionsByDonor(ctx context.Context, donor id.AccountID) ([]models.FundingContribution, error)
}

// TokenLedger moves fungible balances between accounts.
type TokenLedger interface {
	Transfer(ctx context.Context, from, to ledger.Account, amount int64) error
	Balance(ctx context.Context, account ledger.Account) (int64, error)
}

// ReputationTracker credits lawyers for verified milestones.
type ReputationTracker interface {
	RecordCompletion(ctx context.Context, lawyer id.AccountID, bountyID id.BountyID, milestoneIndex int) error
	Summary(ctx context.Context, lawyer id.AccountID) (*reputation.Summary, error)
}

// ProofRegistry stores and resolves content-addressed proof hashes.
type ProofRegistry interface {
	Store(ctx context.Context, content []byte) (string, error)
	Exists(ctx context.Context, hash string) (bool, error)
}

// EventStore is the outbox the engine appends domain events to.
type EventStore interface {
	Append(ctx context.Context, entry outbox.Entry) error
	ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]outbox.Entry, error)
}

// Policy holds the engine's named business switches.
type Policy struct {
	// RequireFullFundingBeforeAssign blocks lawyer assignment until the
	// funding goal is met.
	RequireFullFundingBeforeAssign bool
	// RequireRegisteredProofs rejects proof hashes unknown to the registry.
	RequireRegisteredProofs bool
}

// Service is the milestone escrow engine. Every command runs inside one
// StoreTx unit of work keyed by bounty, so a failure at any step leaves no
// observable change.
type Service struct {
	store      Store
	ledger     TokenLedger
	escrow     *escrow.Account
	reputation ReputationTracker
	events     EventStore
	proofs     ProofRegistry
	tx         StoreTx
	policy     Policy
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTx replaces the default in-memory transaction runner.
func WithTx(tx StoreTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

func WithPolicy(p Policy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

func WithProofRegistry(r ProofRegistry) Option {
	return func(s *Service) {
		s.proofs = r
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(store Store, tokens TokenLedger, rep ReputationTracker, events EventStore, opts ...Option) *Service {
	s := &Service{
		store:      store,
		ledger:     tokens,
		escrow:     escrow.New(tokens),
		reputation: rep,
		events:     events,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.tx == nil {
		s.tx = NewShardedTx(0)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("lexbounty/bounty")
	}
	return s
}

// command wraps a unit of work with tracing, metrics and logging.
func (s *Service) command(ctx context.Context, name string, bountyID id.BountyID, actor id.AccountID, fn func(ctx context.Context) error) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "escrow."+name, trace.WithAttributes(
		attribute.String("bounty.id", bountyID.String()),
		attribute.String("actor.id", actor.String()),
	))
	defer span.End()

	err := s.tx.RunInTx(ctx, bountyID.String(), fn)

	outcome := "ok"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	if s.metrics != nil {
		s.metrics.ObserveCommand(name, outcome, start)
	}
	s.logResult(ctx, name, bountyID, actor, err)
	return err
}

func (s *Service) logResult(ctx context.Context, name string, bountyID id.BountyID, actor id.AccountID, err error) {
	attrs := []any{
		"command", name,
		"bounty_id", bountyID.String(),
		"actor_id", actor.String(),
		"request_id", requestcontext.RequestID(ctx),
	}
	if err == nil {
		s.logger.InfoContext(ctx, "escrow command committed", attrs...)
		return
	}
	attrs = append(attrs, "code", dErrors.CodeOf(err), "error", err)
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInvariantViolation, dErrors.CodeInternal, dErrors.CodeUnavailable:
		s.logger.ErrorContext(ctx, "escrow command failed", attrs...)
	default:
		s.logger.WarnContext(ctx, "escrow command rejected", attrs...)
	}
}

// checkInvariants runs after every mutation and before the write, so a
// violating state is never persisted.
func (s *Service) checkInvariants(ctx context.Context, b *models.Bounty) error {
	if err := b.CheckInvariants(); err != nil {
		if s.metrics != nil {
			s.metrics.InvariantAlarms.Inc()
		}
		s.logger.ErrorContext(ctx, "bounty invariant violated",
			"bounty_id", b.ID.String(),
			"error", err,
		)
		return err
	}
	if _, err := escrow.Balance(b); err != nil {
		return err
	}
	return nil
}

func (s *Service) recordTransition(status models.BountyStatus) {
	if s.metrics != nil {
		s.metrics.IncrementTransition(string(status))
	}
}

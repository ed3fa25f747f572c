package models

import (
	"fmt"
	"strings"
	"time"

	"lexbounty/internal/proofs"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
)

const maxTitleLength = 200

// BountySpec is the creation-time description of a bounty.
type BountySpec struct {
	Title       string
	Description string
	Category    string
	Location    string
	DueDate     time.Time
	TotalAmount int64
	Milestones  []MilestoneSpec
}

// Bounty is the aggregate root for a milestone-funded legal engagement.
//
// Invariants:
//   - sum(Milestones[i].Amount) == TotalAmount, fixed at construction
//   - 0 <= RaisedAmount <= TotalAmount
//   - EscrowBalance() = RaisedAmount - paid - RefundedAmount >= 0
//   - Lawyer is assigned at most once
//   - Status transitions: open -> in_progress -> completed, open -> cancelled
//
// Version increments on every persisted change and backs optimistic
// concurrency in stores that do not hold a row lock.
type Bounty struct {
	ID             id.BountyID           `json:"id"`
	Title          string                `json:"title"`
	Description    string                `json:"description"`
	Category       string                `json:"category"`
	Location       string                `json:"location"`
	DueDate        time.Time             `json:"due_date"`
	TotalAmount    int64                 `json:"total_amount"`
	RaisedAmount   int64                 `json:"raised_amount"`
	RefundedAmount int64                 `json:"refunded_amount"`
	NGO            id.AccountID          `json:"ngo"`
	Lawyer         id.AccountID          `json:"lawyer"`
	Status         BountyStatus          `json:"status"`
	Milestones     []Milestone           `json:"milestones"`
	Contributions  []FundingContribution `json:"contributions"`
	Version        int64                 `json:"version"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// NewBounty validates spec and builds an open, unfunded bounty.
func NewBounty(bountyID id.BountyID, ngo id.AccountID, spec BountySpec, now time.Time) (*Bounty, error) {
	if ngo.IsNil() {
		return nil, dErrors.New(dErrors.CodeValidation, "ngo is required")
	}
	title := strings.TrimSpace(spec.Title)
	if title == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title cannot be empty")
	}
	if len(title) > maxTitleLength {
		return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("title must be %d characters or less", maxTitleLength))
	}
	if !spec.DueDate.After(now) {
		return nil, dErrors.New(dErrors.CodeValidation, "due date must be in the future").WithReason(ReasonDueDateInPast)
	}
	if spec.TotalAmount <= 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "total amount must be positive").WithReason(ReasonNonPositiveAmount)
	}
	if len(spec.Milestones) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "at least one milestone is required").WithReason(ReasonNoMilestones)
	}

	milestones := make([]Milestone, 0, len(spec.Milestones))
	var sum int64
	for i, ms := range spec.Milestones {
		if strings.TrimSpace(ms.Title) == "" {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("milestone %d title cannot be empty", i))
		}
		if ms.Amount <= 0 {
			return nil, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("milestone %d amount must be positive", i)).WithReason(ReasonNonPositiveAmount)
		}
		if ms.Amount > spec.TotalAmount-sum {
			return nil, milestoneSumMismatch()
		}
		sum += ms.Amount
		milestones = append(milestones, Milestone{
			Index:         i,
			Title:         strings.TrimSpace(ms.Title),
			Description:   ms.Description,
			Amount:        ms.Amount,
			DueDate:       ms.DueDate,
			ProofRequired: ms.ProofRequired,
		})
	}
	if sum != spec.TotalAmount {
		return nil, milestoneSumMismatch()
	}

	return &Bounty{
		ID:          bountyID,
		Title:       title,
		Description: spec.Description,
		Category:    strings.TrimSpace(spec.Category),
		Location:    strings.TrimSpace(spec.Location),
		DueDate:     spec.DueDate,
		TotalAmount: spec.TotalAmount,
		NGO:         ngo,
		Status:      StatusOpen,
		Milestones:  milestones,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func milestoneSumMismatch() error {
	return dErrors.New(dErrors.CodeValidation, "milestone amounts must sum to the total amount").WithReason(ReasonMilestoneSumMismatch)
}

// Clone returns a deep copy so callers can mutate without touching shared state.
func (b *Bounty) Clone() *Bounty {
	c := *b
	c.Milestones = make([]Milestone, len(b.Milestones))
	for i, m := range b.Milestones {
		c.Milestones[i] = m
		c.Milestones[i].ProofSubmittedAt = cloneTime(m.ProofSubmittedAt)
		c.Milestones[i].CompletedAt = cloneTime(m.CompletedAt)
	}
	c.Contributions = make([]FundingContribution, len(b.Contributions))
	for i, fc := range b.Contributions {
		c.Contributions[i] = fc
		c.Contributions[i].RefundedAt = cloneTime(fc.RefundedAt)
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (b *Bounty) HasLawyer() bool {
	return !b.Lawyer.IsNil()
}

// PaidAmount is the sum of paid milestone amounts.
func (b *Bounty) PaidAmount() int64 {
	var paid int64
	for _, m := range b.Milestones {
		if m.Paid {
			paid += m.Amount
		}
	}
	return paid
}

// EscrowBalance is the amount still held for this bounty.
func (b *Bounty) EscrowBalance() int64 {
	return b.RaisedAmount - b.PaidAmount() - b.RefundedAmount
}

// Milestone returns the milestone at index.
func (b *Bounty) Milestone(index int) (*Milestone, error) {
	if index < 0 || index >= len(b.Milestones) {
		return nil, dErrors.New(dErrors.CodeNotFound, fmt.Sprintf("milestone %d not found", index))
	}
	return &b.Milestones[index], nil
}

func (b *Bounty) AllMilestonesCompleted() bool {
	for _, m := range b.Milestones {
		if !m.Completed {
			return false
		}
	}
	return len(b.Milestones) > 0
}

// CheckInvariants verifies the aggregate's accounting rules. A failure is a
// consistency bug, never a user error.
func (b *Bounty) CheckInvariants() error {
	var sum int64
	for _, m := range b.Milestones {
		sum += m.Amount
		if m.Paid && !m.Completed {
			return dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("milestone %d paid but not completed", m.Index))
		}
	}
	if sum != b.TotalAmount {
		return dErrors.New(dErrors.CodeInvariantViolation, "milestone amounts drifted from total amount")
	}
	if b.RaisedAmount < 0 || b.RaisedAmount > b.TotalAmount {
		return dErrors.New(dErrors.CodeInvariantViolation, "raised amount outside [0, total]")
	}
	if b.EscrowBalance() < 0 {
		return dErrors.New(dErrors.CodeInvariantViolation, "escrow balance is negative")
	}
	return nil
}

// CanFund checks whether amount may be contributed now.
func (b *Bounty) CanFund(amount int64) error {
	if b.Status != StatusOpen {
		return dErrors.New(dErrors.CodeInvalidState, "bounty is not open for funding")
	}
	if amount <= 0 {
		return dErrors.New(dErrors.CodeValidation, "amount must be positive").WithReason(ReasonNonPositiveAmount)
	}
	if amount > b.TotalAmount-b.RaisedAmount {
		return dErrors.New(dErrors.CodeFunds, "funding would exceed the bounty goal").WithReason(ReasonExceedsFundingGoal)
	}
	return nil
}

// ApplyFunding records a contribution. Call CanFund first.
func (b *Bounty) ApplyFunding(contributionID id.ContributionID, donor id.AccountID, amount int64, now time.Time) FundingContribution {
	fc := FundingContribution{
		ID:        contributionID,
		BountyID:  b.ID,
		Donor:     donor,
		Amount:    amount,
		CreatedAt: now,
	}
	b.Contributions = append(b.Contributions, fc)
	b.RaisedAmount += amount
	b.UpdatedAt = now
	return fc
}

// CanAssignLawyer checks whether lawyer may be assigned. When
// requireFullFunding is set the goal must already be met.
func (b *Bounty) CanAssignLawyer(lawyer id.AccountID, requireFullFunding bool) error {
	if b.HasLawyer() {
		return dErrors.New(dErrors.CodeInvalidState, "lawyer already assigned")
	}
	if !b.Status.CanTransitionTo(StatusInProgress) {
		return dErrors.New(dErrors.CodeInvalidState, "bounty is not open")
	}
	if lawyer.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "lawyer is required")
	}
	if requireFullFunding && b.RaisedAmount < b.TotalAmount {
		return dErrors.New(dErrors.CodeInvalidState, "bounty must be fully funded before assigning a lawyer").WithReason(ReasonFundingIncomplete)
	}
	return nil
}

// ApplyLawyerAssignment sets the lawyer and starts the engagement.
func (b *Bounty) ApplyLawyerAssignment(lawyer id.AccountID, now time.Time) {
	b.Lawyer = lawyer
	b.Status = StatusInProgress
	b.UpdatedAt = now
}

// CanCancel checks whether the bounty may be cancelled. Only open bounties
// can be cancelled.
func (b *Bounty) CanCancel() error {
	if !b.Status.CanTransitionTo(StatusCancelled) {
		return dErrors.New(dErrors.CodeInvalidState, "only open bounties can be cancelled")
	}
	return nil
}

// RefundableContributions lists contributions not yet refunded.
func (b *Bounty) RefundableContributions() []FundingContribution {
	var out []FundingContribution
	for _, fc := range b.Contributions {
		if !fc.IsRefunded() {
			out = append(out, fc)
		}
	}
	return out
}

// ApplyCancellation marks every contribution refunded and closes the bounty.
// Returns the total refunded.
func (b *Bounty) ApplyCancellation(now time.Time) int64 {
	var refunded int64
	for i := range b.Contributions {
		if b.Contributions[i].IsRefunded() {
			continue
		}
		at := now
		b.Contributions[i].RefundedAt = &at
		refunded += b.Contributions[i].Amount
	}
	b.RefundedAmount += refunded
	b.Status = StatusCancelled
	b.UpdatedAt = now
	return refunded
}

// CanSubmitProof checks whether a proof may be attached to milestone index.
func (b *Bounty) CanSubmitProof(index int, proofHash string) error {
	if b.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, "bounty is not in progress")
	}
	m, err := b.Milestone(index)
	if err != nil {
		return err
	}
	if m.Completed {
		return dErrors.New(dErrors.CodeInvalidState, "milestone already completed")
	}
	proofHash = strings.TrimSpace(proofHash)
	if proofHash == "" {
		return dErrors.New(dErrors.CodeValidation, "proof hash is required")
	}
	if !proofs.IsWellFormed(proofHash) {
		return dErrors.New(dErrors.CodeValidation, "proof hash must be sha256: followed by 64 hex digits").
			WithReason(ReasonMalformedProof)
	}
	return nil
}

// ApplyProof stores or replaces the unverified proof for milestone index.
func (b *Bounty) ApplyProof(index int, proofHash string, now time.Time) {
	at := now
	m := &b.Milestones[index]
	m.ProofHash = strings.TrimSpace(proofHash)
	m.ProofSubmittedAt = &at
	b.UpdatedAt = now
}

// CanVerifyMilestone checks whether milestone index can be confirmed and paid
// from escrow.
func (b *Bounty) CanVerifyMilestone(index int) error {
	if b.Status != StatusInProgress {
		return dErrors.New(dErrors.CodeInvalidState, "bounty is not in progress")
	}
	m, err := b.Milestone(index)
	if err != nil {
		return err
	}
	if m.Completed {
		return dErrors.New(dErrors.CodeInvalidState, "milestone already completed")
	}
	if !m.HasProof() {
		return dErrors.New(dErrors.CodeInvalidState, "no proof submitted for milestone")
	}
	if m.Amount > b.EscrowBalance() {
		return dErrors.New(dErrors.CodeFunds, "escrow balance does not cover milestone").WithReason(ReasonInsufficientEscrow)
	}
	return nil
}

// ApplyMilestoneCompletion marks milestone index completed and paid. Returns
// true when this completion finished the bounty.
func (b *Bounty) ApplyMilestoneCompletion(index int, now time.Time) bool {
	at := now
	m := &b.Milestones[index]
	m.Completed = true
	m.Paid = true
	m.CompletedAt = &at
	b.UpdatedAt = now
	if b.AllMilestonesCompleted() && b.Status.CanTransitionTo(StatusCompleted) {
		b.Status = StatusCompleted
		return true
	}
	return false
}

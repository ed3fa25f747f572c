// Package escrow gives each bounty a holding account on the token ledger and
// keeps the derived escrow balance honest.
package escrow

import (
	"context"
	"errors"
	"fmt"

	"lexbounty/internal/bounty/models"
	"lexbounty/internal/ledger"
	id "lexbounty/pkg/domain"
	dErrors "lexbounty/pkg/domain-errors"
)

// TokenLedger is the fungible balance primitive funds move through.
type TokenLedger interface {
	Transfer(ctx context.Context, from, to ledger.Account, amount int64) error
	Balance(ctx context.Context, account ledger.Account) (int64, error)
}

// Account moves funds between participants and a bounty's escrow.
type Account struct {
	ledger TokenLedger
}

func New(l TokenLedger) *Account {
	return &Account{ledger: l}
}

// Deposit moves amount from donor's wallet into the bounty's escrow.
func (a *Account) Deposit(ctx context.Context, bountyID id.BountyID, donor id.AccountID, amount int64) error {
	err := a.ledger.Transfer(ctx, ledger.UserAccount(donor), ledger.EscrowAccount(bountyID), amount)
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		return dErrors.New(dErrors.CodeFunds, "donor balance does not cover contribution").
			WithReason(models.ReasonInsufficientBalance)
	}
	return translate(err, "deposit into escrow")
}

// Release pays amount from escrow to the lawyer.
func (a *Account) Release(ctx context.Context, bountyID id.BountyID, lawyer id.AccountID, amount int64) error {
	return a.payOut(ctx, bountyID, lawyer, amount, "release escrow")
}

// Refund returns amount from escrow to a donor.
func (a *Account) Refund(ctx context.Context, bountyID id.BountyID, donor id.AccountID, amount int64) error {
	return a.payOut(ctx, bountyID, donor, amount, "refund escrow")
}

func (a *Account) payOut(ctx context.Context, bountyID id.BountyID, to id.AccountID, amount int64, op string) error {
	err := a.ledger.Transfer(ctx, ledger.EscrowAccount(bountyID), ledger.UserAccount(to), amount)
	if errors.Is(err, ledger.ErrInsufficientBalance) {
		// The derived balance said this was covered, so the ledger drifted.
		return dErrors.Wrap(err, dErrors.CodeInvariantViolation, op+": escrow ledger balance below derived balance")
	}
	return translate(err, op)
}

// Balance is the derived escrow balance of b. A negative value is a
// consistency bug.
func Balance(b *models.Bounty) (int64, error) {
	bal := b.EscrowBalance()
	if bal < 0 {
		return bal, dErrors.New(dErrors.CodeInvariantViolation, fmt.Sprintf("escrow balance of bounty %s is negative", b.ID))
	}
	return bal, nil
}

// Snapshot compares the derived escrow balance with the ledger.
type Snapshot struct {
	BountyID      id.BountyID `json:"bounty_id"`
	RaisedAmount  int64       `json:"raised_amount"`
	PaidAmount    int64       `json:"paid_amount"`
	Refunded      int64       `json:"refunded_amount"`
	Derived       int64       `json:"escrow_balance"`
	OnLedger      int64       `json:"ledger_balance"`
	InBalance     bool        `json:"in_balance"`
	LedgerAccount string      `json:"ledger_account"`
}

// Reconcile reads the ledger balance of b's escrow and reports it next to the
// derived balance.
func (a *Account) Reconcile(ctx context.Context, b *models.Bounty) (*Snapshot, error) {
	derived, err := Balance(b)
	if err != nil {
		return nil, err
	}
	account := ledger.EscrowAccount(b.ID)
	onLedger, err := a.ledger.Balance(ctx, account)
	if err != nil {
		return nil, translate(err, "read escrow ledger balance")
	}
	return &Snapshot{
		BountyID:      b.ID,
		RaisedAmount:  b.RaisedAmount,
		PaidAmount:    b.PaidAmount(),
		Refunded:      b.RefundedAmount,
		Derived:       derived,
		OnLedger:      onLedger,
		InBalance:     derived == onLedger,
		LedgerAccount: account.String(),
	}, nil
}

func translate(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, op)
	case errors.Is(err, ledger.ErrInvalidAmount):
		return dErrors.Wrap(err, dErrors.CodeValidation, op).WithReason(models.ReasonNonPositiveAmount)
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, op)
	}
}

// Package ledger implements the fungible token balances that escrow moves
// funds through. It knows nothing about bounties: escrow holdings are plain
// accounts named by EscrowAccount.
package ledger

import (
	"errors"
	"strings"

	id "lexbounty/pkg/domain"
)

// ErrInsufficientBalance is returned when the source account cannot cover a
// transfer. No balance changes when it is returned.
var ErrInsufficientBalance = errors.New("insufficient balance")

// ErrInvalidAmount is returned for non-positive transfer or credit amounts.
var ErrInvalidAmount = errors.New("amount must be positive")

// Account names a ledger balance.
type Account string

const (
	userPrefix   = "account:"
	escrowPrefix = "escrow:"
)

// UserAccount is the wallet of a participant.
func UserAccount(a id.AccountID) Account {
	return Account(userPrefix + a.String())
}

// EscrowAccount is the holding account of one bounty.
func EscrowAccount(b id.BountyID) Account {
	return Account(escrowPrefix + b.String())
}

// IsEscrow reports whether a names a bounty holding account.
func (a Account) IsEscrow() bool {
	return strings.HasPrefix(string(a), escrowPrefix)
}

func (a Account) String() string { return string(a) }

func validate(from, to Account, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == "" || to == "" {
		return errors.New("ledger accounts are required")
	}
	if from == to {
		return errors.New("cannot transfer to the same account")
	}
	return nil
}

package models

import (
	"time"

	id "lexbounty/pkg/domain"
)

// FundingContribution records one donor transfer into a bounty's escrow.
// Contributions are never edited except to stamp RefundedAt on cancellation.
type FundingContribution struct {
	ID         id.ContributionID `json:"id"`
	BountyID   id.BountyID       `json:"bounty_id"`
	Donor      id.AccountID      `json:"donor"`
	Amount     int64             `json:"amount"`
	CreatedAt  time.Time         `json:"created_at"`
	RefundedAt *time.Time        `json:"refunded_at,omitempty"`
}

func (c FundingContribution) IsRefunded() bool {
	return c.RefundedAt != nil
}

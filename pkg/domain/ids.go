// Package domain holds typed identifiers shared across modules. Distinct types
// keep a bounty id from being passed where an account id is expected.
package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "lexbounty/pkg/domain-errors"
)

// AccountID identifies a participant: an NGO, a donor or a lawyer. Roles are
// never stored on the account; they are derived per bounty.
type AccountID uuid.UUID

// BountyID identifies a bounty aggregate.
type BountyID uuid.UUID

// ContributionID identifies a single funding contribution.
type ContributionID uuid.UUID

func (a AccountID) String() string      { return uuid.UUID(a).String() }
func (a AccountID) IsNil() bool         { return uuid.UUID(a) == uuid.Nil }
func (b BountyID) String() string       { return uuid.UUID(b).String() }
func (b BountyID) IsNil() bool          { return uuid.UUID(b) == uuid.Nil }
func (c ContributionID) String() string { return uuid.UUID(c).String() }
func (c ContributionID) IsNil() bool    { return uuid.UUID(c) == uuid.Nil }

// NewBountyID returns a random bounty id.
func NewBountyID() BountyID { return BountyID(uuid.New()) }

// NewContributionID returns a random contribution id.
func NewContributionID() ContributionID { return ContributionID(uuid.New()) }

// ParseAccountID parses an account id at a trust boundary.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account id")
	return AccountID(u), err
}

// ParseBountyID parses a bounty id at a trust boundary.
func ParseBountyID(s string) (BountyID, error) {
	u, err := parseUUID(s, "bounty id")
	return BountyID(u), err
}

// ParseContributionID parses a contribution id at a trust boundary.
func ParseContributionID(s string) (ContributionID, error) {
	u, err := parseUUID(s, "contribution id")
	return ContributionID(u), err
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if strings.TrimSpace(s) == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeBadRequest, label+" must not be nil")
	}
	return u, nil
}

// Text marshalling keeps typed ids readable in JSON payloads.

func (a AccountID) MarshalText() ([]byte, error) { return uuid.UUID(a).MarshalText() }
func (a *AccountID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(a).UnmarshalText(b)
}

func (b BountyID) MarshalText() ([]byte, error) { return uuid.UUID(b).MarshalText() }
func (b *BountyID) UnmarshalText(data []byte) error {
	return (*uuid.UUID)(b).UnmarshalText(data)
}

func (c ContributionID) MarshalText() ([]byte, error) { return uuid.UUID(c).MarshalText() }
func (c *ContributionID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(c).UnmarshalText(b)
}

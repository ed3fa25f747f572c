package models

import (
	"time"

	"github.com/google/uuid"

	id "lexbounty/pkg/domain"
)

// EventType names a domain event on the bounty stream.
type EventType string

const (
	EventBountyCreated           EventType = "bounty.created"
	EventBountyFunded            EventType = "bounty.funded"
	EventLawyerAssigned          EventType = "bounty.lawyer_assigned"
	EventMilestoneProofSubmitted EventType = "milestone.proof_submitted"
	EventMilestoneCompleted      EventType = "milestone.completed"
	EventMilestonePaid           EventType = "milestone.paid"
	EventBountyCompleted         EventType = "bounty.completed"
	EventBountyCancelled         EventType = "bounty.cancelled"
)

// AggregateType is the outbox aggregate name for bounty events.
const AggregateType = "bounty"

// Event is an append-only fact about a bounty, consumed by dashboards and
// notification services.
type Event struct {
	ID             uuid.UUID     `json:"id"`
	Type           EventType     `json:"type"`
	BountyID       id.BountyID   `json:"bounty_id"`
	MilestoneIndex *int          `json:"milestone_index,omitempty"`
	Amount         int64         `json:"amount,omitempty"`
	Actor          id.AccountID  `json:"actor_id"`
	Counterparty   *id.AccountID `json:"counterparty_id,omitempty"`
	ProofHash      string        `json:"proof_hash,omitempty"`
	OccurredAt     time.Time     `json:"occurred_at"`
}

// NewEvent builds an event stamped with a fresh id.
func NewEvent(eventType EventType, bountyID id.BountyID, actor id.AccountID, now time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		BountyID:   bountyID,
		Actor:      actor,
		OccurredAt: now,
	}
}

// ForMilestone sets the milestone index.
func (e Event) ForMilestone(index int) Event {
	i := index
	e.MilestoneIndex = &i
	return e
}

// WithAmount sets the amount moved by the event.
func (e Event) WithAmount(amount int64) Event {
	e.Amount = amount
	return e
}

// WithCounterparty sets the account on the other side of the action.
func (e Event) WithCounterparty(account id.AccountID) Event {
	a := account
	e.Counterparty = &a
	return e
}

// WithProofHash sets the proof the event refers to.
func (e Event) WithProofHash(hash string) Event {
	e.ProofHash = hash
	return e
}

// Package outbox stores domain events in the same unit of work as the state
// change that produced them, and relays them to the event stream afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry is one pending or published event.
type Entry struct {
	Seq           int64           `json:"seq"`
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
}

// NewEntry marshals payload into a fresh entry.
func NewEntry(aggregateType, aggregateID, eventType string, payload any, now time.Time) (Entry, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		CreatedAt:     now,
	}, nil
}

// IsPublished reports whether the relay has delivered the entry.
func (e Entry) IsPublished() bool {
	return e.PublishedAt != nil
}

// Store persists outbox entries. Append joins the caller's unit of work.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	FetchUnpublished(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	ListByAggregate(ctx context.Context, aggregateType, aggregateID string) ([]Entry, error)
	CountUnpublished(ctx context.Context) (int, error)
}

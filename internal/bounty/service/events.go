package service

import (
	"context"
	"encoding/json"

	"lexbounty/internal/bounty/models"
	"lexbounty/internal/outbox"
	dErrors "lexbounty/pkg/domain-errors"
)

// emit appends events to the outbox inside the caller's unit of work.
func (s *Service) emit(ctx context.Context, events ...models.Event) error {
	for _, e := range events {
		entry, err := outbox.NewEntry(models.AggregateType, e.BountyID.String(), string(e.Type), e, e.OccurredAt)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode domain event")
		}
		entry.ID = e.ID
		if err := s.events.Append(ctx, entry); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append domain event")
		}
	}
	return nil
}

func decodeEvents(entries []outbox.Entry) ([]models.Event, error) {
	out := make([]models.Event, 0, len(entries))
	for _, entry := range entries {
		var e models.Event
		if err := json.Unmarshal(entry.Payload, &e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to decode domain event")
		}
		out = append(out, e)
	}
	return out, nil
}

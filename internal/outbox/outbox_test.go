package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	txcontext "lexbounty/pkg/platform/tx"
)

func TestNewEntry(t *testing.T) {
	now := time.Now()
	e, err := NewEntry("bounty", "b-1", "bounty.created", map[string]string{"title": "x"}, now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.IsPublished())
	assert.JSONEq(t, `{"title":"x"}`, string(e.Payload))

	_, err = NewEntry("bounty", "b-1", "bad", make(chan int), now)
	var unsupported *json.UnsupportedTypeError
	assert.ErrorAs(t, err, &unsupported)
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	for _, agg := range []string{"a", "b", "a"} {
		e, err := NewEntry("bounty", agg, "bounty.funded", nil, time.Now())
		require.NoError(t, err)
		require.NoError(t, s.Append(ctx, e))
	}

	byA, err := s.ListByAggregate(ctx, "bounty", "a")
	require.NoError(t, err)
	require.Len(t, byA, 2)
	assert.Less(t, byA[0].Seq, byA[1].Seq)

	first, err := s.FetchUnpublished(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.NoError(t, s.MarkPublished(ctx, []uuid.UUID{first[0].ID}, time.Now()))

	pending, err := s.CountUnpublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)
}

func TestInMemoryAppendRollsBack(t *testing.T) {
	s := NewInMemory()
	ctx, journal := txcontext.WithJournal(context.Background())
	e, err := NewEntry("bounty", "a", "bounty.created", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, e))
	journal.Rollback()

	entries, err := s.ListByAggregate(context.Background(), "bounty", "a")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInMemoryAppendVisibleAfterCommit(t *testing.T) {
	s := NewInMemory()
	ctx, journal := txcontext.WithJournal(context.Background())
	e, err := NewEntry("bounty", "a", "bounty.created", nil, time.Now())
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, e))

	unpublished, err := s.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, unpublished, "relay must not see uncommitted entries")

	journal.Commit()
	unpublished, err = s.FetchUnpublished(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, unpublished, 1)
	assert.Equal(t, e.ID, unpublished[0].ID)
	assert.Equal(t, int64(1), unpublished[0].Seq)
}

func TestCircuitBreaker(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	clock := time.Now()
	cb.now = func() time.Time { return clock }

	assert.True(t, cb.Allow())
	assert.False(t, cb.RecordFailure())
	assert.True(t, cb.RecordFailure())
	assert.True(t, cb.IsOpen())
	assert.False(t, cb.Allow())

	clock = clock.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, "half_open", cb.State())
	assert.False(t, cb.IsOpen())

	// one failed trial re-opens without waiting for the threshold
	assert.True(t, cb.RecordFailure())
	assert.False(t, cb.Allow())

	clock = clock.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.RecordSuccess()
	assert.Equal(t, "closed", cb.State())
	assert.False(t, cb.RecordFailure())
}

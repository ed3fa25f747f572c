package reputation

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "lexbounty/pkg/domain"
	txcontext "lexbounty/pkg/platform/tx"
)

// PostgresStore persists completions in lawyer_completions.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) RecordCompletion(ctx context.Context, lawyer id.AccountID, bountyID id.BountyID, milestoneIndex int) error {
	query := `
		INSERT INTO lawyer_completions (lawyer_id, bounty_id, milestone_index, recorded_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (lawyer_id, bounty_id, milestone_index) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query, uuid.UUID(lawyer), uuid.UUID(bountyID), milestoneIndex)
	if err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	return nil
}

func (s *PostgresStore) Summary(ctx context.Context, lawyer id.AccountID) (*Summary, error) {
	query := `
		SELECT COUNT(*), COUNT(DISTINCT bounty_id)
		FROM lawyer_completions
		WHERE lawyer_id = $1
	`
	summary := &Summary{Lawyer: lawyer}
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(lawyer)).
		Scan(&summary.CompletedMilestones, &summary.DistinctBounties)
	if err != nil {
		return nil, fmt.Errorf("read reputation: %w", err)
	}
	return summary, nil
}

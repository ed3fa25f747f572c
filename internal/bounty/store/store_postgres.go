package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"lexbounty/internal/bounty/models"
	id "lexbounty/pkg/domain"
	txcontext "lexbounty/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists bounties across the bounties, milestones and
// contributions tables. Writes join the transaction carried in the context.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, b *models.Bounty) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		query := `
			INSERT INTO bounties (id, title, description, category, location, due_date, total_amount,
				raised_amount, refunded_amount, ngo_id, lawyer_id, status, version, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13, $14)
		`
		_, err := s.execer(ctx).ExecContext(ctx, query,
			uuid.UUID(b.ID), b.Title, b.Description, b.Category, b.Location, b.DueDate, b.TotalAmount,
			b.RaisedAmount, b.RefundedAmount, uuid.UUID(b.NGO), nullableAccount(b.Lawyer), string(b.Status),
			b.CreatedAt, b.UpdatedAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
				return ErrConflict
			}
			return fmt.Errorf("insert bounty: %w", err)
		}
		for _, m := range b.Milestones {
			if err := s.insertMilestone(ctx, b.ID, m); err != nil {
				return err
			}
		}
		if err := s.upsertContributions(ctx, b.Contributions); err != nil {
			return err
		}
		b.Version = 1
		return nil
	})
}

func (s *PostgresStore) insertMilestone(ctx context.Context, bountyID id.BountyID, m models.Milestone) error {
	query := `
		INSERT INTO milestones (bounty_id, idx, title, description, amount, due_date, proof_required,
			proof_hash, proof_submitted_at, completed, paid, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(bountyID), m.Index, m.Title, m.Description, m.Amount, nullableTime(m.DueDate),
		m.ProofRequired, nullableString(m.ProofHash), m.ProofSubmittedAt, m.Completed, m.Paid, m.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert milestone %d: %w", m.Index, err)
	}
	return nil
}

func (s *PostgresStore) upsertContributions(ctx context.Context, contributions []models.FundingContribution) error {
	query := `
		INSERT INTO contributions (id, bounty_id, donor_id, amount, created_at, refunded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET refunded_at = EXCLUDED.refunded_at
	`
	for _, fc := range contributions {
		_, err := s.execer(ctx).ExecContext(ctx, query,
			uuid.UUID(fc.ID), uuid.UUID(fc.BountyID), uuid.UUID(fc.Donor), fc.Amount, fc.CreatedAt, fc.RefundedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert contribution: %w", err)
		}
	}
	return nil
}

const bountyColumns = `id, title, description, category, location, due_date, total_amount, raised_amount,
	refunded_amount, ngo_id, lawyer_id, status, version, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	return s.find(ctx, bountyID, "")
}

// FindForUpdate locks the bounty row until the surrounding transaction ends.
func (s *PostgresStore) FindForUpdate(ctx context.Context, bountyID id.BountyID) (*models.Bounty, error) {
	if _, ok := txcontext.From(ctx); !ok {
		return nil, fmt.Errorf("find for update requires a transaction")
	}
	return s.find(ctx, bountyID, " FOR UPDATE")
}

func (s *PostgresStore) find(ctx context.Context, bountyID id.BountyID, lock string) (*models.Bounty, error) {
	query := `SELECT ` + bountyColumns + ` FROM bounties WHERE id = $1` + lock
	b, err := scanBounty(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(bountyID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find bounty: %w", err)
	}
	if err := s.loadChildren(ctx, map[id.BountyID]*models.Bounty{b.ID: b}); err != nil {
		return nil, err
	}
	return b, nil
}

// Update writes b when the stored version still equals b.Version.
func (s *PostgresStore) Update(ctx context.Context, b *models.Bounty) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		query := `
			UPDATE bounties SET
				raised_amount = $3,
				refunded_amount = $4,
				lawyer_id = $5,
				status = $6,
				updated_at = $7,
				version = version + 1
			WHERE id = $1 AND version = $2
		`
		result, err := s.execer(ctx).ExecContext(ctx, query,
			uuid.UUID(b.ID), b.Version, b.RaisedAmount, b.RefundedAmount, nullableAccount(b.Lawyer),
			string(b.Status), b.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update bounty: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("update bounty rows affected: %w", err)
		}
		if rows == 0 {
			var exists bool
			if err := s.execer(ctx).QueryRowContext(ctx,
				`SELECT EXISTS (SELECT 1 FROM bounties WHERE id = $1)`, uuid.UUID(b.ID),
			).Scan(&exists); err != nil {
				return fmt.Errorf("check bounty exists: %w", err)
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}

		milestoneQuery := `
			UPDATE milestones SET
				proof_hash = $3,
				proof_submitted_at = $4,
				completed = $5,
				paid = $6,
				completed_at = $7
			WHERE bounty_id = $1 AND idx = $2
		`
		for _, m := range b.Milestones {
			_, err := s.execer(ctx).ExecContext(ctx, milestoneQuery,
				uuid.UUID(b.ID), m.Index, nullableString(m.ProofHash), m.ProofSubmittedAt, m.Completed, m.Paid, m.CompletedAt,
			)
			if err != nil {
				return fmt.Errorf("update milestone %d: %w", m.Index, err)
			}
		}
		if err := s.upsertContributions(ctx, b.Contributions); err != nil {
			return err
		}
		b.Version++
		return nil
	})
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status models.BountyStatus) ([]*models.Bounty, error) {
	query := `SELECT ` + bountyColumns + ` FROM bounties WHERE ($1 = '' OR status = $1) ORDER BY created_at, id`
	rows, err := s.execer(ctx).QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list bounties: %w", err)
	}
	defer rows.Close()

	var out []*models.Bounty
	byID := make(map[id.BountyID]*models.Bounty)
	for rows.Next() {
		b, err := scanBounty(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bounty: %w", err)
		}
		out = append(out, b)
		byID[b.ID] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bounties: %w", err)
	}
	if err := s.loadChildren(ctx, byID); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) ListContributionsByDonor(ctx context.Context, donor id.AccountID) ([]models.FundingContribution, error) {
	query := `
		SELECT id, bounty_id, donor_id, amount, created_at, refunded_at
		FROM contributions
		WHERE donor_id = $1
		ORDER BY created_at, id
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, uuid.UUID(donor))
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()
	var out []models.FundingContribution
	for rows.Next() {
		fc, err := scanContribution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, byID map[id.BountyID]*models.Bounty) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]string, 0, len(byID))
	for bountyID := range byID {
		ids = append(ids, bountyID.String())
	}

	mrows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT bounty_id, idx, title, description, amount, due_date, proof_required,
			proof_hash, proof_submitted_at, completed, paid, completed_at
		FROM milestones
		WHERE bounty_id = ANY($1::uuid[])
		ORDER BY bounty_id, idx
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load milestones: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var (
			bountyID   uuid.UUID
			m          models.Milestone
			dueDate    sql.NullTime
			proofHash  sql.NullString
			proofAt    sql.NullTime
			completeAt sql.NullTime
		)
		if err := mrows.Scan(&bountyID, &m.Index, &m.Title, &m.Description, &m.Amount, &dueDate,
			&m.ProofRequired, &proofHash, &proofAt, &m.Completed, &m.Paid, &completeAt); err != nil {
			return fmt.Errorf("scan milestone: %w", err)
		}
		if dueDate.Valid {
			m.DueDate = dueDate.Time
		}
		m.ProofHash = proofHash.String
		m.ProofSubmittedAt = timePtr(proofAt)
		m.CompletedAt = timePtr(completeAt)
		if b, ok := byID[id.BountyID(bountyID)]; ok {
			b.Milestones = append(b.Milestones, m)
		}
	}
	if err := mrows.Err(); err != nil {
		return fmt.Errorf("iterate milestones: %w", err)
	}

	crows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, bounty_id, donor_id, amount, created_at, refunded_at
		FROM contributions
		WHERE bounty_id = ANY($1::uuid[])
		ORDER BY created_at, id
	`, pq.Array(ids))
	if err != nil {
		return fmt.Errorf("load contributions: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		fc, err := scanContribution(crows)
		if err != nil {
			return err
		}
		if b, ok := byID[fc.BountyID]; ok {
			b.Contributions = append(b.Contributions, fc)
		}
	}
	if err := crows.Err(); err != nil {
		return fmt.Errorf("iterate contributions: %w", err)
	}
	return nil
}

// inTx runs fn in the caller's transaction, or in a new one when none is
// active, so multi-table writes are never half applied.
func (s *PostgresStore) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bounty write: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bounty write: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBounty(row rowScanner) (*models.Bounty, error) {
	var (
		b      models.Bounty
		bid    uuid.UUID
		ngo    uuid.UUID
		lawyer uuid.NullUUID
		status string
	)
	if err := row.Scan(&bid, &b.Title, &b.Description, &b.Category, &b.Location, &b.DueDate,
		&b.TotalAmount, &b.RaisedAmount, &b.RefundedAmount, &ngo, &lawyer, &status, &b.Version,
		&b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	b.ID = id.BountyID(bid)
	b.NGO = id.AccountID(ngo)
	if lawyer.Valid {
		b.Lawyer = id.AccountID(lawyer.UUID)
	}
	b.Status = models.BountyStatus(status)
	return &b, nil
}

func scanContribution(row rowScanner) (models.FundingContribution, error) {
	var (
		fc         models.FundingContribution
		cid, bid   uuid.UUID
		donor      uuid.UUID
		refundedAt sql.NullTime
	)
	if err := row.Scan(&cid, &bid, &donor, &fc.Amount, &fc.CreatedAt, &refundedAt); err != nil {
		return fc, fmt.Errorf("scan contribution: %w", err)
	}
	fc.ID = id.ContributionID(cid)
	fc.BountyID = id.BountyID(bid)
	fc.Donor = id.AccountID(donor)
	fc.RefundedAt = timePtr(refundedAt)
	return fc, nil
}

func nullableAccount(a id.AccountID) any {
	if a.IsNil() {
		return nil
	}
	return uuid.UUID(a)
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	txcontext "lexbounty/pkg/platform/tx"
)

// checkViolation is the SQLSTATE raised by the non-negative balance constraint.
const checkViolation = "23514"

// PostgresStore keeps balances in ledger_balances and appends every movement
// to ledger_transfers. It joins the transaction carried in the context.
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

func (s *PostgresStore) Credit(ctx context.Context, account Account, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := s.credit(ctx, account, amount); err != nil {
		return err
	}
	return s.record(ctx, "", account, amount)
}

// Transfer debits from with a conditional update so a concurrent writer can
// never drive a balance negative, then credits to. Outside a caller-provided
// transaction both legs run in their own.
func (s *PostgresStore) Transfer(ctx context.Context, from, to Account, amount int64) error {
	if err := validate(from, to, amount); err != nil {
		return err
	}
	if _, ok := txcontext.From(ctx); ok {
		return s.transfer(ctx, from, to, amount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ledger transfer: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := s.transfer(txcontext.WithTx(ctx, tx), from, to, amount); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit ledger transfer: %w", err)
	}
	return nil
}

func (s *PostgresStore) transfer(ctx context.Context, from, to Account, amount int64) error {
	query := `
		UPDATE ledger_balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE account = $1 AND balance >= $2
	`
	result, err := s.execer(ctx).ExecContext(ctx, query, string(from), amount)
	if err != nil {
		return mapPQError(err, "debit ledger account")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("debit rows affected: %w", err)
	}
	if rows == 0 {
		return ErrInsufficientBalance
	}
	if err := s.credit(ctx, to, amount); err != nil {
		return err
	}
	return s.record(ctx, from, to, amount)
}

func (s *PostgresStore) credit(ctx context.Context, account Account, amount int64) error {
	query := `
		INSERT INTO ledger_balances (account, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET
			balance = ledger_balances.balance + EXCLUDED.balance,
			updated_at = NOW()
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, string(account), amount); err != nil {
		return mapPQError(err, "credit ledger account")
	}
	return nil
}

func (s *PostgresStore) record(ctx context.Context, from, to Account, amount int64) error {
	query := `
		INSERT INTO ledger_transfers (from_account, to_account, amount, created_at)
		VALUES (NULLIF($1, ''), $2, $3, NOW())
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, string(from), string(to), amount); err != nil {
		return fmt.Errorf("record ledger transfer: %w", err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context, account Account) (int64, error) {
	var balance int64
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT balance FROM ledger_balances WHERE account = $1`, string(account),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read ledger balance: %w", err)
	}
	return balance, nil
}

func mapPQError(err error, op string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == checkViolation {
		return ErrInsufficientBalance
	}
	return fmt.Errorf("%s: %w", op, err)
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lexbounty/internal/bounty/service"
	dErrors "lexbounty/pkg/domain-errors"
	txcontext "lexbounty/pkg/platform/tx"
)

// escrowPostgresTx runs each escrow command in one database transaction.
// Stores join it through the context; the bounty row lock taken by
// FindForUpdate serializes commands on the same bounty.
type escrowPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newEscrowPostgresTx(db *sql.DB, timeout time.Duration) *escrowPostgresTx {
	if timeout <= 0 {
		timeout = service.DefaultTxTimeout
	}
	return &escrowPostgresTx{db: db, timeout: timeout}
}

func (t *escrowPostgresTx) RunInTx(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "begin transaction")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return service.AsTimeout(err)
	}

	if err := tx.Commit(); err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
		}
		return dErrors.Wrap(fmt.Errorf("commit: %w", err), dErrors.CodeInternal, "failed to commit escrow transaction")
	}
	return nil
}

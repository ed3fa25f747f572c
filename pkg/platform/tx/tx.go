// Package tx carries the active unit of work through a context.
//
// SQL-backed stores participate through WithTx/From. In-memory stores have no
// transaction to join, so they stage their writes on a Journal instead: commit
// steps publish the writes when the unit of work succeeds, rollback steps
// release whatever the store reserved while staging. Nothing staged is visible
// to other units of work before Commit.
package tx

import (
	"context"
	"database/sql"
	"sync"
)

type ctxKey struct{}
type journalKey struct{}

var (
	txKey      = ctxKey{}
	journalCtx = journalKey{}
)

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Journal collects the staged writes of one unit of work.
type Journal struct {
	mu     sync.Mutex
	commit []func()
	undo   []func()
}

// WithJournal starts a journal and attaches it to ctx.
func WithJournal(ctx context.Context) (context.Context, *Journal) {
	j := &Journal{}
	return context.WithValue(ctx, journalCtx, j), j
}

// Current returns the journal of the unit of work running in ctx.
func Current(ctx context.Context) (*Journal, bool) {
	j, ok := ctx.Value(journalCtx).(*Journal)
	return j, ok && j != nil
}

// OnCommit registers fn to publish a staged write when the unit of work
// succeeds. Outside a unit of work fn runs immediately.
func OnCommit(ctx context.Context, fn func()) {
	j, ok := Current(ctx)
	if !ok {
		fn()
		return
	}
	j.mu.Lock()
	j.commit = append(j.commit, fn)
	j.mu.Unlock()
}

// OnRollback registers fn to run if the surrounding unit of work fails.
// Outside a unit of work it is a no-op.
func OnRollback(ctx context.Context, fn func()) {
	j, ok := Current(ctx)
	if !ok {
		return
	}
	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

// Commit runs the commit steps oldest first and discards the rollback steps.
func (j *Journal) Commit() {
	j.mu.Lock()
	steps := j.commit
	j.commit, j.undo = nil, nil
	j.mu.Unlock()
	for _, step := range steps {
		step()
	}
}

// Rollback runs the rollback steps newest first and discards the commit steps.
func (j *Journal) Rollback() {
	j.mu.Lock()
	steps := j.undo
	j.commit, j.undo = nil, nil
	j.mu.Unlock()
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

// Len reports the number of registered commit and rollback steps.
func (j *Journal) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.commit) + len(j.undo)
}

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	dErrors "lexbounty/pkg/domain-errors"
	txcontext "lexbounty/pkg/platform/tx"
)

// StoreTx provides the transactional boundary for escrow commands. key
// identifies the bounty; implementations serialize units of work per key.
// Implementations may wrap a database transaction or, in-memory, a lock plus
// a journal of staged writes.
type StoreTx interface {
	RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// numShards spreads bounties over independent locks.
const numShards = 128

// DefaultTxTimeout bounds a unit of work when the caller sets no deadline.
const DefaultTxTimeout = 5 * time.Second

// shardedTx serializes commands per bounty with sharded mutexes. In-memory
// stores stage their writes on the context journal; the writes are published
// while the shard lock is still held, or dropped when fn fails.
type shardedTx struct {
	shards  [numShards]sync.Mutex
	timeout time.Duration
}

// NewShardedTx returns the in-memory StoreTx. A zero timeout selects
// DefaultTxTimeout.
func NewShardedTx(timeout time.Duration) StoreTx {
	if timeout <= 0 {
		timeout = DefaultTxTimeout
	}
	return &shardedTx{timeout: timeout}
}

func (t *shardedTx) RunInTx(ctx context.Context, key string, fn func(ctx context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := &t.shards[shardFor(key)]
	shard.Lock()
	defer shard.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	ctx, journal := txcontext.WithJournal(ctx)
	defer func() {
		if r := recover(); r != nil {
			journal.Rollback()
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		journal.Rollback()
		return AsTimeout(err)
	}
	if err := ctx.Err(); err != nil {
		journal.Rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	journal.Commit()
	return nil
}

// AsTimeout converts bare context errors into coded timeouts and leaves
// everything else untouched.
func AsTimeout(err error) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted")
	}
	return err
}

// collaboratorFailure codes an error returned by an external collaborator.
func collaboratorFailure(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, message)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, message)
}

// shardFor uses FNV-1a for better hash distribution than simple multiply-add.
func shardFor(key string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(key); i++ {
		h ^= uint32(key[i])
		h *= fnvPrime
	}
	return h % numShards
}

package ledger

import (
	"context"
	"sync"

	txcontext "lexbounty/pkg/platform/tx"
)

// moves are the transfers one unit of work has staged but not committed.
type moves struct {
	in  map[Account]int64
	out map[Account]int64
}

// InMemory keeps balances in a map.
//
// Inside a unit of work nothing is applied until commit: a debit places a hold
// on the source account and a credit stays private to the unit. Other units
// can only spend balance - holds, so money received by an uncommitted unit is
// never spendable elsewhere and a rollback only releases holds.
type InMemory struct {
	mu       sync.Mutex
	balances map[Account]int64
	held     map[Account]int64
	staged   map[*txcontext.Journal]*moves
}

func NewInMemory() *InMemory {
	return &InMemory{
		balances: make(map[Account]int64),
		held:     make(map[Account]int64),
		staged:   make(map[*txcontext.Journal]*moves),
	}
}

// movesFor returns the staging area of the unit of work running in ctx, or
// nil outside one. Callers hold l.mu.
func (l *InMemory) movesFor(ctx context.Context) *moves {
	j, ok := txcontext.Current(ctx)
	if !ok {
		return nil
	}
	if m, ok := l.staged[j]; ok {
		return m
	}
	m := &moves{in: make(map[Account]int64), out: make(map[Account]int64)}
	l.staged[j] = m
	txcontext.OnCommit(ctx, func() { l.settle(j, true) })
	txcontext.OnRollback(ctx, func() { l.settle(j, false) })
	return m
}

// settle applies or discards the moves staged by j and releases its holds.
func (l *InMemory) settle(j *txcontext.Journal, apply bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.staged[j]
	if !ok {
		return
	}
	delete(l.staged, j)
	for account, amount := range m.out {
		l.held[account] -= amount
		if l.held[account] == 0 {
			delete(l.held, account)
		}
		if apply {
			l.balances[account] -= amount
		}
	}
	if apply {
		for account, amount := range m.in {
			l.balances[account] += amount
		}
	}
}

// Credit adds amount to account. Used to seed wallets.
func (l *InMemory) Credit(ctx context.Context, account Account, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if m := l.movesFor(ctx); m != nil {
		m.in[account] += amount
		return nil
	}
	l.balances[account] += amount
	return nil
}

func (l *InMemory) Transfer(ctx context.Context, from, to Account, amount int64) error {
	if err := validate(from, to, amount); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	m := l.movesFor(ctx)
	available := l.balances[from] - l.held[from]
	if m != nil {
		available += m.in[from]
	}
	if available < amount {
		return ErrInsufficientBalance
	}
	if m == nil {
		l.balances[from] -= amount
		l.balances[to] += amount
		return nil
	}
	l.held[from] += amount
	m.out[from] += amount
	m.in[to] += amount
	return nil
}

// Balance reports the committed balance, plus the caller's own staged moves
// when called inside a unit of work.
func (l *InMemory) Balance(ctx context.Context, account Account) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[account]
	if j, ok := txcontext.Current(ctx); ok {
		if m, ok := l.staged[j]; ok {
			balance += m.in[account] - m.out[account]
		}
	}
	return balance, nil
}

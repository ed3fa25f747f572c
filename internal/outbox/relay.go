package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = time.Second
	defaultBatchSize    = 100
)

// Relay drains unpublished entries to a Publisher. Delivery is at least once:
// an entry is marked only after its batch is acknowledged.
type Relay struct {
	store     Store
	publisher Publisher
	breaker   *CircuitBreaker
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	batchSize int
}

// Option configures the Relay.
type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithCircuitBreaker(cb *CircuitBreaker) Option {
	return func(r *Relay) {
		r.breaker = cb
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func NewRelay(store Store, publisher Publisher, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		publisher: publisher,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breaker == nil {
		r.breaker = NewCircuitBreaker(5, 30*time.Second)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// ErrCircuitOpen is returned by RelayOnce while the breaker is open.
var ErrCircuitOpen = errors.New("outbox relay circuit open")

// Run polls until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				n, err := r.RelayOnce(ctx)
				if err != nil {
					if !errors.Is(err, ErrCircuitOpen) && ctx.Err() == nil {
						r.logger.WarnContext(ctx, "outbox relay pass failed", "error", err)
					}
					break
				}
				// keep draining while batches come back full
				if n < r.batchSize {
					break
				}
			}
		}
	}
}

// RelayOnce publishes at most one batch and returns how many entries were
// delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if !r.breaker.Allow() {
		return 0, ErrCircuitOpen
	}
	trial := r.breaker.halfOpen()

	entries, err := r.store.FetchUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	r.observePending(ctx)
	if len(entries) == 0 {
		return 0, nil
	}

	start := time.Now()
	if err := r.publisher.Publish(ctx, entries); err != nil {
		opened := r.breaker.RecordFailure()
		if r.metrics != nil {
			r.metrics.PublishFailures.Inc()
			r.metrics.SetCircuitBreakerState(r.breaker.IsOpen())
		}
		if opened {
			r.logger.ErrorContext(ctx, "outbox relay circuit opened", "error", err, "half_open", trial)
		}
		return 0, err
	}
	r.breaker.RecordSuccess()
	if trial {
		r.logger.InfoContext(ctx, "outbox relay circuit closed")
	}

	ids := make([]uuid.UUID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if err := r.store.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}

	if r.metrics != nil {
		r.metrics.Published.Add(float64(len(entries)))
		r.metrics.PublishDuration.Observe(time.Since(start).Seconds())
		r.metrics.SetCircuitBreakerState(false)
	}
	r.logger.DebugContext(ctx, "outbox batch published", "count", len(entries))
	return len(entries), nil
}

func (r *Relay) observePending(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	if n, err := r.store.CountUnpublished(ctx); err == nil {
		r.metrics.Pending.Set(float64(n))
	}
}

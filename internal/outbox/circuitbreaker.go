package outbox

import (
	"sync"
	"time"
)

type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// CircuitBreaker guards relay passes against a broker that keeps failing.
// While open, passes are skipped and entries stay pending. Once the cooldown
// elapses the breaker is half-open: the next pass is a trial against the
// broker and a single failure re-opens it.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration
	now       func() time.Time

	state     breakerState
	failures  int
	openUntil time.Time
}

// NewCircuitBreaker opens after threshold consecutive publish failures and
// stays open for cooldown.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a relay pass may run, moving an expired open breaker
// to half-open.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == stateOpen && !cb.now().Before(cb.openUntil) {
		cb.state = stateHalfOpen
	}
	return cb.state != stateOpen
}

// RecordSuccess closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = stateClosed
	cb.failures = 0
}

// RecordFailure counts a failed publish and reports whether it opened the
// breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	switch {
	case cb.state == stateHalfOpen, cb.state == stateClosed && cb.failures >= cb.threshold:
		cb.state = stateOpen
		cb.openUntil = cb.now().Add(cb.cooldown)
		return true
	default:
		return false
	}
}

func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateOpen
}

func (cb *CircuitBreaker) halfOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == stateHalfOpen
}

// State names the breaker's current state for logs.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

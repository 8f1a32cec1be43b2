package coordinator

import (
	"sync"
	"time"

	"github.com/signalsfoundry/collection-planner/internal/clock"
)

// CircuitState is the current state of the optimization circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows requests and counts consecutive failures.
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks requests until the recovery timeout elapses.
	CircuitOpen
	// CircuitHalfOpen allows a single probe request to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ServiceUnavailableError reports a fail-fast rejection while the circuit
// is open.
type ServiceUnavailableError struct {
	State CircuitState
}

func (e *ServiceUnavailableError) Error() string {
	return "planning service unavailable: circuit breaker " + e.State.String()
}

const (
	// BreakerThreshold is the consecutive-failure count that opens the
	// circuit.
	BreakerThreshold = 5
	// BreakerRecovery is how long the circuit stays open before a probe
	// is allowed.
	BreakerRecovery = 60 * time.Second
)

// Breaker is a single-circuit breaker around the optimization path.
//
// State transitions:
//   - closed -> open: after BreakerThreshold consecutive failures
//   - open -> half-open: after BreakerRecovery
//   - half-open -> closed: probe succeeds
//   - half-open -> open: probe fails
//
// Safe for concurrent use.
type Breaker struct {
	mu        sync.Mutex
	state     CircuitState
	failures  int
	openedAt  time.Time
	probing   bool
	threshold int
	recovery  time.Duration
	clk       clock.Clock

	// onStateChange, when set, is invoked with true while the circuit is
	// not closed. Called without the lock held.
	onStateChange func(open bool)
}

// NewBreaker constructs a Breaker. Non-positive threshold or recovery
// use the defaults; a nil clk uses the real clock.
func NewBreaker(threshold int, recovery time.Duration, clk clock.Clock) *Breaker {
	if threshold <= 0 {
		threshold = BreakerThreshold
	}
	if recovery <= 0 {
		recovery = BreakerRecovery
	}
	if clk == nil {
		clk = clock.NewReal()
	}
	return &Breaker{threshold: threshold, recovery: recovery, clk: clk}
}

// Allow reports whether a request may proceed. While open it fails fast
// with ServiceUnavailableError until the recovery timeout, after which a
// single probe is admitted in half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	switch b.state {
	case CircuitClosed:
		b.mu.Unlock()
		return nil
	case CircuitOpen:
		if b.clk.Now().Sub(b.openedAt) < b.recovery {
			state := b.state
			b.mu.Unlock()
			return &ServiceUnavailableError{State: state}
		}
		b.state = CircuitHalfOpen
		b.probing = true
		b.mu.Unlock()
		return nil
	default: // CircuitHalfOpen
		if b.probing {
			state := b.state
			b.mu.Unlock()
			return &ServiceUnavailableError{State: state}
		}
		b.probing = true
		b.mu.Unlock()
		return nil
	}
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	b.state = CircuitClosed
	b.failures = 0
	b.probing = false
	b.mu.Unlock()
	b.notify(false)
}

// RecordFailure counts a failure; at the threshold (or on a failed
// half-open probe) the circuit opens.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	opened := false
	switch b.state {
	case CircuitHalfOpen:
		b.state = CircuitOpen
		b.openedAt = b.clk.Now()
		b.probing = false
		opened = true
	default:
		b.failures++
		if b.failures >= b.threshold {
			b.state = CircuitOpen
			b.openedAt = b.clk.Now()
			opened = true
		}
	}
	b.mu.Unlock()
	if opened {
		b.notify(true)
	}
}

// State returns the current circuit state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) notify(open bool) {
	if b.onStateChange != nil {
		b.onStateChange(open)
	}
}

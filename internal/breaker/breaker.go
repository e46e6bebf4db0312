// Package breaker implements a failure-counting circuit breaker that
// advises callers whether a downstream service should be contacted.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the position of a circuit breaker.
//
//	CLOSED ──[failure threshold]──► OPEN
//	   ▲                             │
//	   └──[success]── HALF_OPEN ◄────┘
//	                  [reset timeout]
type State int

const (
	// Closed lets every call through.
	Closed State = iota
	// Open refuses calls until the reset timeout has elapsed.
	Open
	// HalfOpen lets probes through; the next success closes the circuit.
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case Open:
		return "OPEN"
	case HalfOpen:
		return "HALF_OPEN"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int(s))
	}
}

// Config configures a CircuitBreaker.
type Config struct {
	// Consecutive failures that open the circuit. Default 5.
	FailureThreshold int
	// Time after the last failure before an open circuit admits a probe.
	// Default 60s.
	ResetTimeout time.Duration
	// Called synchronously, under no lock, after every state change.
	OnStateChange func(from, to State)
	// Clock override for tests.
	Now func() time.Time
}

// CircuitBreaker is safe for concurrent use. It never fails on its own;
// callers that proceed after CanAttempt must report exactly one outcome
// through RecordSuccess or RecordFailure.
type CircuitBreaker struct {
	cfg Config

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
}

// New creates a closed circuit breaker.
func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 60 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// CanAttempt reports whether a call may proceed. An open circuit whose
// reset timeout has elapsed moves to half-open and admits the call.
func (cb *CircuitBreaker) CanAttempt() bool {
	cb.mu.Lock()
	from := cb.state
	if from == Open {
		if cb.cfg.Now().Sub(cb.lastFailure) <= cb.cfg.ResetTimeout {
			cb.mu.Unlock()
			return false
		}
		cb.state = HalfOpen
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
	return true
}

// RecordSuccess resets the failure count and closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	cb.failures = 0
	cb.state = Closed
	cb.mu.Unlock()
	cb.notify(from, Closed)
}

// RecordFailure counts a failure and opens the circuit once the
// threshold of consecutive failures is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.failures++
	cb.lastFailure = cb.cfg.Now()
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.state = Open
	}
	to := cb.state
	cb.mu.Unlock()
	cb.notify(from, to)
}

// State returns the current state without advancing it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from != to && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(from, to)
	}
}

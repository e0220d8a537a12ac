package endpoint

import (
	"sync"
	"time"
)

// Circuit breaker states.
const (
	StateClosed   = "closed"
	StateOpen     = "open"
	StateHalfOpen = "half_open"
)

// BreakerConfig holds the parameters for a circuit breaker.
// A zero FailureThreshold disables the breaker.
type BreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxAttempts int
}

// Breaker stops calling an endpoint after repeated transport failures.
type Breaker struct {
	mu               sync.Mutex
	state            string
	failures         int
	successes        int
	halfOpenInFlight int
	lastFailureTime  time.Time
	config           BreakerConfig
	now              func() time.Time
}

// NewBreaker creates a circuit breaker with the given config.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = 1
	}
	return &Breaker{
		state:  StateClosed,
		config: cfg,
		now:    time.Now,
	}
}

// Allow returns true if a request should be attempted. While half-open at
// most HalfOpenMaxAttempts trial requests are admitted until they report back.
func (cb *Breaker) Allow() bool {
	if cb.config.FailureThreshold <= 0 {
		return true
	}

	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.config.ResetTimeout {
			cb.state = StateHalfOpen
			cb.successes = 0
			cb.halfOpenInFlight = 1
			return true
		}
		return false
	case StateHalfOpen:
		if cb.halfOpenInFlight >= cb.config.HalfOpenMaxAttempts {
			return false
		}
		cb.halfOpenInFlight++
		return true
	default:
		return true
	}
}

// RecordSuccess records a completed request.
func (cb *Breaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state == StateHalfOpen {
		cb.successes++
		if cb.halfOpenInFlight > 0 {
			cb.halfOpenInFlight--
		}
		if cb.successes >= cb.config.HalfOpenMaxAttempts {
			cb.state = StateClosed
			cb.halfOpenInFlight = 0
		}
		return
	}
	cb.state = StateClosed
}

// RecordFailure records a transport failure.
func (cb *Breaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()

	if cb.state == StateHalfOpen {
		cb.state = StateOpen
		cb.halfOpenInFlight = 0
		return
	}

	if cb.config.FailureThreshold > 0 && cb.failures >= cb.config.FailureThreshold {
		cb.state = StateOpen
	}
}

// State returns the current circuit breaker state.
func (cb *Breaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

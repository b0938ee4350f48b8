package search

import (
	"context"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// breakerConfig configures the per-embedder/vector-store circuit breaker.
type breakerConfig struct {
	FailureThreshold uint32        // default 5
	RecoveryTimeout  time.Duration // default 60s
}

func (c *breakerConfig) applyDefaults() {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.RecoveryTimeout == 0 {
		c.RecoveryTimeout = 60 * time.Second
	}
}

// newVectorBreaker builds a gobreaker.CircuitBreaker guarding the embedder +
// vector-store pair used by the semantic sub-search. MaxRequests: 1 limits
// half-open state to a single probe, so one success closes it and one
// failure reopens it.
func newVectorBreaker(name string, cfg breakerConfig) *gobreaker.CircuitBreaker {
	cfg.applyDefaults()
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0, // never reset closed-state counts on a timer; only Timeout matters
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	})
}

// breaker wraps a gobreaker.CircuitBreaker with a plain isOpen check, since
// gobreaker only exposes state transitions through Execute's return value.
type breaker struct {
	cb *gobreaker.CircuitBreaker
}

func newBreaker(cb *gobreaker.CircuitBreaker) *breaker {
	return &breaker{cb: cb}
}

func (b *breaker) isOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

func (b *breaker) execute(fn func() (any, error)) (any, error) {
	return b.cb.Execute(fn)
}

// withRetry runs fn up to maxAttempts times (default semantics: 2 total
// attempts), backing off exponentially from baseDelay with full jitter
// between attempts, stopping early on ctx cancellation.
func withRetry(ctx context.Context, maxAttempts int, baseDelay time.Duration, fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<uint(attempt))
		jittered := time.Duration(rand.Int63n(int64(delay) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered):
		}
	}
	return err
}

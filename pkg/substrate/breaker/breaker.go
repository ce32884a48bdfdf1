// Package breaker implements the circuit-breaker contract of spec §4.1:
// CLOSED -> OPEN -> HALF_OPEN transitions, a retry-after-bearing
// CircuitOpenError, and a process-wide named registry. The state machine
// itself is delegated to sony/gobreaker; this package adds the
// statistics surface, the exception-type filter, and the named registry
// the spec requires on top of it.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// Config mirrors CircuitBreakerConfig from the source: failure/success
// thresholds, the OPEN timeout, and how many calls HALF_OPEN admits.
// HALF_OPEN closes after SuccessThreshold consecutive successes and admits
// that many calls; HalfOpenMaxCalls takes that role only when
// SuccessThreshold is zero or negative.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int
	// IsFailure classifies whether an error returned by the wrapped call
	// should count against the breaker. Nil means every error counts.
	IsFailure func(error) bool
}

// DefaultConfig matches the source's dataclass defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          60 * time.Second,
		HalfOpenMaxCalls: 3,
	}
}

// OpenError is returned when a call is rejected because the breaker is
// OPEN. RetryAfter estimates how long until the breaker tries HALF_OPEN.
type OpenError struct {
	Name      string
	OpenedAt  time.Time
	Timeout   time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %s", e.Name, e.RetryAfter())
}

// RetryAfter returns the remaining duration until the breaker attempts
// HALF_OPEN, floored at zero.
func (e *OpenError) RetryAfter() time.Duration {
	remaining := e.Timeout - time.Since(e.OpenedAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Stats mirrors CircuitBreakerStats from the source.
type Stats struct {
	Name           string
	State          string
	TotalCalls     uint32
	SuccessfulCalls uint32
	FailedCalls    uint32
	RejectedCalls  uint32
	OpenCount      uint32
}

// Breaker wraps a gobreaker.CircuitBreaker with the statistics and
// exception-filter contract spec §4.1 requires.
type Breaker struct {
	name   string
	cfg    Config
	cb     *gobreaker.CircuitBreaker

	mu            sync.Mutex
	rejectedCalls uint32
	openCount     uint32
	openedAt      time.Time
}

// New constructs a named breaker.
func New(name string, cfg Config) *Breaker {
	b := &Breaker{name: name, cfg: cfg}

	// gobreaker uses MaxRequests both as the HALF_OPEN admission cap and as
	// the consecutive-success count that closes the breaker.
	maxRequests := cfg.SuccessThreshold
	if maxRequests <= 0 {
		maxRequests = cfg.HalfOpenMaxCalls
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(maxRequests),
		Interval:    0, // never reset CLOSED counts on a timer; only on success
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.mu.Lock()
			defer b.mu.Unlock()
			if to == gobreaker.StateOpen {
				b.openCount++
				b.openedAt = time.Now()
			}
		},
	}
	if cfg.IsFailure != nil {
		settings.IsSuccessful = func(err error) bool { return !cfg.IsFailure(err) }
	}

	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Call executes fn through the breaker. If the breaker is OPEN, fn is not
// invoked and *OpenError is returned. Any error fn returns that the
// configured filter counts as a failure trips the breaker's internal
// failure counter via gobreaker's own Execute bookkeeping.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	result, err := b.cb.Execute(func() (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			b.mu.Lock()
			b.rejectedCalls++
			opened := b.openedAt
			b.mu.Unlock()
			return nil, &OpenError{Name: b.name, OpenedAt: opened, Timeout: b.cfg.Timeout}
		}
		return nil, err
	}
	return result, nil
}

// State returns the current breaker state as a lowercase string.
func (b *Breaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Statistics returns a snapshot of the breaker's counters.
func (b *Breaker) Statistics() Stats {
	counts := b.cb.Counts()
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Name:            b.name,
		State:           b.State(),
		TotalCalls:      counts.Requests,
		SuccessfulCalls: counts.TotalSuccesses,
		FailedCalls:     counts.TotalFailures,
		RejectedCalls:   b.rejectedCalls,
		OpenCount:       b.openCount,
	}
}

// Package retry implements retry-with-backoff over transient datastore
// failures, mirroring the classification and delay-computation contract
// of the original retry_with_backoff helper.
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// TransientError marks an error as transient regardless of what
// DefaultIsTransient would otherwise decide. Callers wrap errors with it
// when they know better than string-matching can.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// MaxRetriesExceededError is returned once all retries are exhausted. It
// carries the last underlying cause and the number of attempts made.
type MaxRetriesExceededError struct {
	Message  string
	LastErr  error
	Attempts int
}

func (e *MaxRetriesExceededError) Error() string {
	if e.LastErr != nil {
		return e.Message + ": " + e.LastErr.Error()
	}
	return e.Message
}

func (e *MaxRetriesExceededError) Unwrap() error { return e.LastErr }

// IsTransientFunc classifies an error as transient (worth retrying) or not.
type IsTransientFunc func(error) bool

var transientSubstrings = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"deadlock",
	"bad connection",
	"pool exhausted",
	"too many connections",
	"interrupted system call",
	"eof",
}

// DefaultIsTransient classifies connection failures, timeouts,
// interrupted syscalls, deadlock indicators, and pool-exhaustion
// messages as transient, matching the source's exception-kind
// classification.
func DefaultIsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientSubstrings {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Options configures a single retry-with-backoff call.
type Options struct {
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsTransient IsTransientFunc
	OnRetry     func(attempt int, err error, delay time.Duration)
	Jitter      bool
}

// CalculateDelay computes min(base*2^attempt, max), applying ±25% uniform
// jitter when enabled. Exposed standalone so tests can check the delay
// law independently of a full retry run.
func CalculateDelay(attempt int, baseDelay, maxDelay time.Duration, jitter bool, rng *rand.Rand) time.Duration {
	delay := baseDelay * time.Duration(1<<uint(attempt))
	if delay > maxDelay || delay < 0 {
		delay = maxDelay
	}
	if !jitter {
		return delay
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	factor := 1 + (rng.Float64()*2-1)*0.25 // uniform in [0.75, 1.25]
	jittered := time.Duration(float64(delay) * factor)
	if jittered < 0 {
		jittered = 0
	}
	return jittered
}

// expoJitterBackOff implements backoff.BackOff using CalculateDelay,
// so the library's retry-loop driver (attempt counting, context
// cancellation, WithMaxRetries) is reused rather than reimplemented by
// hand, while the exact delay law stays spec-faithful.
type expoJitterBackOff struct {
	attempt   int
	baseDelay time.Duration
	maxDelay  time.Duration
	jitter    bool
	rng       *rand.Rand
}

func (b *expoJitterBackOff) NextBackOff() time.Duration {
	d := CalculateDelay(b.attempt, b.baseDelay, b.maxDelay, b.jitter, b.rng)
	b.attempt++
	return d
}

func (b *expoJitterBackOff) Reset() { b.attempt = 0 }

// WithBackoff runs fn, retrying on transient failures per opts. On
// success it returns fn's result. On a non-transient failure it returns
// immediately with that error. After exhausting MaxRetries it returns a
// *MaxRetriesExceededError wrapping the last cause.
func WithBackoff[T any](ctx context.Context, opName string, opts Options, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	isTransient := opts.IsTransient
	if isTransient == nil {
		isTransient = DefaultIsTransient
	}

	b := &expoJitterBackOff{baseDelay: opts.BaseDelay, maxDelay: opts.MaxDelay, jitter: opts.Jitter}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.MaxRetries)), ctx)

	var result T
	var lastErr error
	var nonTransient bool
	attempts := 0

	operation := func() error {
		attempts++
		r, err := fn(ctx)
		if err == nil {
			result = r
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			nonTransient = true
			return backoff.Permanent(err)
		}
		GetGlobalRetryTracker().recordFailure(opName)
		return err
	}

	notify := func(err error, delay time.Duration) {
		if opts.OnRetry != nil {
			opts.OnRetry(attempts, err, delay)
		}
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		GetGlobalRetryTracker().recordSuccess(opName)
		return result, nil
	}
	if nonTransient {
		return zero, err
	}
	GetGlobalRetryTracker().recordExhausted(opName)
	return zero, &MaxRetriesExceededError{
		Message:  "max retries exceeded",
		LastErr:  lastErr,
		Attempts: attempts,
	}
}

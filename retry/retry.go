// Package retry polls an operation until it stops reporting a recoverable
// failure or a fixed attempt budget runs out. It is used wherever the wallet
// reads state that a just-submitted transaction has not made visible yet.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"vocwallet/observability/metrics"
)

var (
	// ErrExhausted matches every *ExhaustedError.
	ErrExhausted = errors.New("retry: attempts exhausted")
	// ErrCancelled reports a context cancelled at an attempt boundary.
	ErrCancelled = errors.New("retry: cancelled")
	// ErrInvalidPolicy reports a non-positive attempt budget or a negative interval.
	ErrInvalidPolicy = errors.New("retry: invalid policy")
	// ErrNotConverged is a convenience recoverable failure for probes that
	// observe state which has not caught up yet.
	ErrNotConverged = errors.New("retry: state not converged")
)

// ExhaustedError is returned after MaxAttempts consecutive recoverable failures.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry: attempts exhausted after %d tries: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

type recoverableError struct{ err error }

func (r recoverableError) Error() string { return r.err.Error() }
func (r recoverableError) Unwrap() error { return r.err }

// Recoverable marks err as a "not yet" failure that the poller should retry.
func Recoverable(err error) error {
	if err == nil {
		return nil
	}
	return recoverableError{err: err}
}

// IsRecoverable reports whether err was marked with Recoverable or wraps ErrNotConverged.
func IsRecoverable(err error) bool {
	var r recoverableError
	return errors.As(err, &r) || errors.Is(err, ErrNotConverged)
}

// Probe is one attempt at observing the desired state.
type Probe[T any] func(ctx context.Context) (T, error)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

// Validate checks the attempt budget and interval.
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.Interval < 0 {
		return fmt.Errorf("%w: interval %s", ErrInvalidPolicy, p.Interval)
	}
	return nil
}

type config struct {
	classify func(error) bool
	logger   *slog.Logger
	name     string
}

// Option customises a single retry loop.
type Option func(*config)

// WithClassifier adds a predicate deciding which additional errors are
// recoverable. Errors marked with Recoverable stay recoverable regardless.
func WithClassifier(fn func(error) bool) Option {
	return func(c *config) {
		if fn != nil {
			c.classify = fn
		}
	}
}

// WithLogger attaches a logger for attempt diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName labels the loop in logs and metrics.
func WithName(name string) Option {
	return func(c *config) {
		c.name = name
	}
}

// Do runs probe under the policy. See UntilSuccess.
func Do[T any](ctx context.Context, policy Policy, probe Probe[T], opts ...Option) (T, error) {
	return UntilSuccess(ctx, probe, policy.MaxAttempts, policy.Interval, opts...)
}

// UntilSuccess invokes probe sequentially until it returns without a
// recoverable failure. The first attempt runs immediately and every later
// attempt starts at least interval after the previous one returned. Fatal
// errors are returned as-is on first occurrence. Cancellation is observed only
// between attempts, never while a probe runs.
func UntilSuccess[T any](ctx context.Context, probe Probe[T], maxAttempts int, interval time.Duration, opts ...Option) (T, error) {
	var zero T
	if ctx == nil {
		ctx = context.Background()
	}
	if err := (Policy{MaxAttempts: maxAttempts, Interval: interval}).Validate(); err != nil {
		return zero, err
	}
	if probe == nil {
		return zero, fmt.Errorf("%w: probe required", ErrInvalidPolicy)
	}
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	m := metrics.Wallet()

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			m.ObserveRetryOutcome(cfg.name, "cancelled")
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrCancelled, attempt-1, err)
		}

		m.ObserveRetryAttempt(cfg.name)
		result, err := probe(ctx)
		if err == nil {
			m.ObserveRetryOutcome(cfg.name, "success")
			return result, nil
		}
		if !cfg.recoverable(err) {
			m.ObserveRetryOutcome(cfg.name, "fatal")
			return zero, err
		}
		last = err
		cfg.logger.Debug("retry attempt not converged",
			slog.String("operation", cfg.name),
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", maxAttempts),
			slog.String("error", err.Error()))

		if attempt == maxAttempts {
			break
		}
		if err := wait(ctx, interval); err != nil {
			m.ObserveRetryOutcome(cfg.name, "cancelled")
			return zero, fmt.Errorf("%w after %d attempts: %w", ErrCancelled, attempt, err)
		}
	}

	m.ObserveRetryOutcome(cfg.name, "exhausted")
	cfg.logger.Warn("retry attempts exhausted",
		slog.String("operation", cfg.name),
		slog.Int("attempts", maxAttempts),
		slog.String("error", last.Error()))
	return zero, &ExhaustedError{Attempts: maxAttempts, Last: last}
}

func (c config) recoverable(err error) bool {
	if IsRecoverable(err) {
		return true
	}
	return c.classify != nil && c.classify(err)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

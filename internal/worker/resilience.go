package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"

	"github.com/crewd-dev/crewd/internal/queue"
	"github.com/crewd-dev/crewd/internal/store"
)

// Guard wraps store access with bounded exponential retry and a circuit
// breaker. Store unavailability is transient: an operation is retried with
// backoff and surfaced only after retries are exhausted, at which point the
// worker loop logs and keeps polling rather than terminating.
type Guard struct {
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewGuard creates a guard named for the worker that owns it.
func NewGuard(name string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("store breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Coordination outcomes are control flow, not store failures.
			return err == nil || isControlFlow(err)
		},
	})
	return &Guard{breaker: cb, logger: logger}
}

// Do runs op with retry and breaker protection. Control-flow outcomes such
// as a lost claim race pass through immediately without retrying.
func (g *Guard) Do(ctx context.Context, op func() error) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		_, err := g.breaker.Execute(func() (interface{}, error) {
			return nil, op()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return backoff.Permanent(err)
		}
		if isControlFlow(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(operation, backoff.WithContext(policy, ctx))
}

func isControlFlow(err error) bool {
	var dup *queue.DuplicateError
	return errors.Is(err, store.ErrClaimConflict) ||
		errors.Is(err, store.ErrDependencyUnmet) ||
		errors.Is(err, store.ErrNotOwner) ||
		errors.Is(err, store.ErrLeaseExpired) ||
		errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, store.ErrVersionMismatch) ||
		errors.Is(err, store.ErrTerminal) ||
		errors.As(err, &dup)
}

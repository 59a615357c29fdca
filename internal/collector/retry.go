package collector

import (
	"context"
	"log/slog"
	"time"

	apperrors "github.com/devpulse-io/devpulse/internal/errors"
)

// RetryPolicy bounds a logical call's retry behavior. MaxAttempts
// counts total network calls, not just retries: MaxAttempts=3 means at
// most 3 calls. Worst-case total sleep is BaseDelay*(2^MaxAttempts - 1)
// on a pure exponential run, so callers can budget an overall timeout.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	RateLimitDelay time.Duration
}

// Retrier wraps executor calls with bounded exponential backoff.
// Rate-limited failures sleep a separate fixed delay but still consume
// a retry slot, so a persistently limited endpoint cannot hang a run.
type Retrier struct {
	policy RetryPolicy
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier creates a retrier with the given policy
func NewRetrier(policy RetryPolicy, log *slog.Logger) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{
		policy: policy,
		log:    log,
		sleep:  sleepContext,
	}
}

// Do runs fn until it succeeds, a fatal error surfaces, or the attempt
// budget runs out. Fatal and unclassified errors propagate immediately.
// The attempt that exhausts the budget does not sleep afterwards; the
// last error is wrapped into a RETRY_EXHAUSTED failure.
func (r *Retrier) Do(ctx context.Context, op string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		payload, err := fn(ctx)
		if err == nil {
			return payload, nil
		}
		lastErr = err

		if apperrors.IsFatal(err) {
			r.log.Warn("fatal error, not retrying", "op", op, "attempt", attempt, "error", err)
			return nil, err
		}
		if !apperrors.IsRetryable(err) && !apperrors.IsRateLimited(err) {
			// Unclassified errors (context cancellation, marshaling bugs)
			// are not the executor speaking; fail fast.
			return nil, err
		}
		if attempt == r.policy.MaxAttempts {
			break
		}

		delay := r.policy.BaseDelay << (attempt - 1)
		if apperrors.IsRateLimited(err) {
			delay = r.policy.RateLimitDelay
		}
		r.log.Warn("retrying after failure",
			"op", op,
			"attempt", attempt,
			"max_attempts", r.policy.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		if err := r.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}

	return nil, apperrors.NewRetryExhaustedError(op, r.policy.MaxAttempts, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

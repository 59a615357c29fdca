package collector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// fakeSleeper records requested delays instead of sleeping
type fakeSleeper struct {
	delays []time.Duration
}

func (f *fakeSleeper) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func newTestRetrier(policy RetryPolicy) (*Retrier, *fakeSleeper) {
	r := NewRetrier(policy, testLogger())
	fs := &fakeSleeper{}
	r.sleep = fs.sleep
	return r, fs
}

func TestRetrierBackoffScheduleThenSuccess(t *testing.T) {
	r, fs := newTestRetrier(RetryPolicy{
		MaxAttempts:    4,
		BaseDelay:      time.Second,
		RateLimitDelay: time.Minute,
	})

	calls := 0
	payload, err := r.Do(context.Background(), "fetch page", func(context.Context) ([]byte, error) {
		calls++
		if calls <= 3 {
			return nil, apperrors.NewRetryableError("blip", nil)
		}
		return []byte(`{"ok":true}`), nil
	})

	require.NoError(t, err)
	assert.Equal(t, []byte(`{"ok":true}`), payload)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}, fs.delays)
}

func TestRetrierExhaustionCountsAndSleeps(t *testing.T) {
	r, fs := newTestRetrier(RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
	})

	calls := 0
	_, err := r.Do(context.Background(), "fetch page", func(context.Context) ([]byte, error) {
		calls++
		return nil, apperrors.NewRetryableError("still down", nil)
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsRetryExhausted(err))
	assert.Equal(t, 3, calls, "max attempts bounds total calls")
	assert.Len(t, fs.delays, 2, "no sleep after the final failed attempt")

	var appErr *apperrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, apperrors.IsRetryable(appErr.Err), "last error is attached for diagnostics")
}

func TestRetrierAuthFailureIsImmediate(t *testing.T) {
	r, fs := newTestRetrier(RetryPolicy{
		MaxAttempts: 10,
		BaseDelay:   time.Second,
	})

	calls := 0
	_, err := r.Do(context.Background(), "fetch page", func(context.Context) ([]byte, error) {
		calls++
		return nil, apperrors.NewAuthFailedError("credentials rejected (401)")
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsAuthFailed(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)
}

func TestRetrierQueryFailureIsImmediate(t *testing.T) {
	r, fs := newTestRetrier(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second})

	calls := 0
	_, err := r.Do(context.Background(), "run query", func(context.Context) ([]byte, error) {
		calls++
		return nil, apperrors.NewQueryFailedError("bad cursor", nil)
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsQueryFailed(err))
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)
}

func TestRetrierRateLimitUsesFixedDelayAndConsumesSlot(t *testing.T) {
	r, fs := newTestRetrier(RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		RateLimitDelay: 90 * time.Second,
	})

	calls := 0
	payload, err := r.Do(context.Background(), "fetch page", func(context.Context) ([]byte, error) {
		calls++
		switch calls {
		case 1:
			return nil, apperrors.NewRateLimitedError("secondary rate limit hit (403)")
		case 2:
			return nil, apperrors.NewRetryableError("blip", nil)
		default:
			return []byte(`{}`), nil
		}
	})

	require.NoError(t, err)
	assert.NotNil(t, payload)
	assert.Equal(t, 3, calls)
	// rate-limit delay is fixed; the following transient failure resumes
	// the exponential schedule at its own attempt position
	assert.Equal(t, []time.Duration{90 * time.Second, 2 * time.Second}, fs.delays)
}

func TestRetrierUnclassifiedErrorFailsFast(t *testing.T) {
	r, fs := newTestRetrier(RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second})

	boom := errors.New("marshal failure")
	calls := 0
	_, err := r.Do(context.Background(), "fetch page", func(context.Context) ([]byte, error) {
		calls++
		return nil, boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, fs.delays)
}

func TestRetrierHonorsContextDuringSleep(t *testing.T) {
	r := NewRetrier(RetryPolicy{MaxAttempts: 3, BaseDelay: 50 * time.Millisecond}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Do(ctx, "fetch page", func(context.Context) ([]byte, error) {
		return nil, apperrors.NewRetryableError("blip", nil)
	})

	require.ErrorIs(t, err, context.Canceled)
}

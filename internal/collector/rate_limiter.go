package collector

import (
	"context"
	"time"

	"github.com/google/go-github/v55/github"
	"golang.org/x/time/rate"
)

// NewLimiter builds the client-side token bucket shared by an
// executor's calls. rps <= 0 disables throttling.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// RateBudget is a snapshot of the remote API's remaining call budget
type RateBudget struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Low reports whether the budget is too thin for a full collection run
func (b *RateBudget) Low() bool {
	return b.Remaining < b.Limit/10
}

// CheckRateBudget asks GitHub for the current core rate-limit status.
// Callers use it to warn before starting a run that would exhaust the
// budget mid-way; it is advisory only.
func CheckRateBudget(ctx context.Context, gh *github.Client) (*RateBudget, error) {
	limits, _, err := gh.RateLimits(ctx)
	if err != nil {
		return nil, err
	}
	core := limits.GetCore()
	if core == nil {
		return &RateBudget{}, nil
	}
	return &RateBudget{
		Limit:     core.Limit,
		Remaining: core.Remaining,
		ResetAt:   core.Reset.Time,
	}, nil
}

package aggregator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"github.com/devpulse-io/devpulse/internal/storage"
)

// Aggregator computes reporting views over stored activity records
type Aggregator interface {
	// Summary aggregates organization-wide counts and durations
	Summary(ctx context.Context, org string, tr domain.TimeRange) (*domain.OrgSummary, error)

	// MemberActivity aggregates one member's activity
	MemberActivity(ctx context.Context, org, member string, tr domain.TimeRange) (*domain.MemberMetrics, error)

	// MembersActivity aggregates activity for every member seen in the window
	MembersActivity(ctx context.Context, org string, tr domain.TimeRange) ([]*domain.MemberMetrics, error)

	// TimeSeries buckets one record kind by day, week or month
	TimeSeries(ctx context.Context, org string, kind domain.RecordKind, tr domain.TimeRange) (*domain.TimeSeriesData, error)

	// ReleasesByEnvironment lists releases, optionally filtered to one environment
	ReleasesByEnvironment(ctx context.Context, org string, env domain.Environment, tr domain.TimeRange) ([]domain.Release, error)
}

// aggregator implements the Aggregator interface
type aggregator struct {
	storage storage.Storage
}

// NewAggregator creates an aggregator reading from the given storage
func NewAggregator(storage storage.Storage) Aggregator {
	return &aggregator{storage: storage}
}

func (a *aggregator) load(ctx context.Context, org string, tr domain.TimeRange) (domain.RecordBundle, error) {
	return a.storage.RecordsInWindow(ctx, org, domain.DateWindow{Since: tr.Start, Until: tr.End})
}

// Summary aggregates organization-wide counts and durations
func (a *aggregator) Summary(ctx context.Context, org string, tr domain.TimeRange) (*domain.OrgSummary, error) {
	bundle, err := a.load(ctx, org, tr)
	if err != nil {
		return nil, err
	}

	summary := &domain.OrgSummary{
		Org:          org,
		Window:       tr,
		PullRequests: len(bundle.PullRequests),
		Reviews:      len(bundle.Reviews),
		Commits:      len(bundle.Commits),
		Releases:     len(bundle.Releases),
		Issues:       len(bundle.Issues),
	}

	var cycleHours []float64
	for _, pr := range bundle.PullRequests {
		summary.Additions += pr.Additions
		summary.Deletions += pr.Deletions
		if pr.MergedAt != nil {
			summary.MergedPullRequests++
			cycleHours = append(cycleHours, pr.MergedAt.Sub(pr.CreatedAt).Hours())
		}
	}
	summary.MedianPRCycleHours = median(cycleHours)

	for _, rel := range bundle.Releases {
		switch rel.Environment {
		case domain.EnvironmentProduction:
			summary.ProductionReleases++
		case domain.EnvironmentStaging:
			summary.StagingReleases++
		}
	}

	for _, issue := range bundle.Issues {
		if issue.ResolvedAt != nil {
			summary.ResolvedIssues++
		}
	}

	return summary, nil
}

// MemberActivity aggregates one member's activity
func (a *aggregator) MemberActivity(ctx context.Context, org, member string, tr domain.TimeRange) (*domain.MemberMetrics, error) {
	members, err := a.MembersActivity(ctx, org, tr)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		if strings.EqualFold(m.Member, member) {
			return m, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("activity for %s", member))
}

// MembersActivity aggregates activity for every member seen in the window
func (a *aggregator) MembersActivity(ctx context.Context, org string, tr domain.TimeRange) ([]*domain.MemberMetrics, error) {
	bundle, err := a.load(ctx, org, tr)
	if err != nil {
		return nil, err
	}
	return memberBreakdown(bundle), nil
}

// memberBreakdown groups records by actor identity, case-insensitively.
// The first casing seen wins for display. Records with no attributable
// actor are skipped.
func memberBreakdown(bundle domain.RecordBundle) []*domain.MemberMetrics {
	byMember := make(map[string]*domain.MemberMetrics)
	lookup := func(identity string) *domain.MemberMetrics {
		if identity == "" {
			return nil
		}
		key := strings.ToLower(identity)
		m, ok := byMember[key]
		if !ok {
			m = &domain.MemberMetrics{Member: identity}
			byMember[key] = m
		}
		return m
	}

	for _, pr := range bundle.PullRequests {
		if m := lookup(pr.Author); m != nil {
			m.PullRequests++
			m.Additions += pr.Additions
			m.Deletions += pr.Deletions
		}
	}
	for _, rev := range bundle.Reviews {
		if m := lookup(rev.Reviewer); m != nil {
			m.Reviews++
		}
	}
	for _, commit := range bundle.Commits {
		if m := lookup(commit.Author); m != nil {
			m.Commits++
		}
	}
	for _, issue := range bundle.Issues {
		if m := lookup(issue.Assignee); m != nil {
			m.Issues++
		}
	}

	members := make([]*domain.MemberMetrics, 0, len(byMember))
	for _, m := range byMember {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].PullRequests != members[j].PullRequests {
			return members[i].PullRequests > members[j].PullRequests
		}
		return members[i].Member < members[j].Member
	})
	return members
}

// TimeSeries buckets one record kind by day, week or month
func (a *aggregator) TimeSeries(ctx context.Context, org string, kind domain.RecordKind, tr domain.TimeRange) (*domain.TimeSeriesData, error) {
	bundle, err := a.load(ctx, org, tr)
	if err != nil {
		return nil, err
	}

	stamps, err := kindTimestamps(bundle, kind)
	if err != nil {
		return nil, err
	}

	counts := make(map[time.Time]int)
	for _, ts := range stamps {
		counts[truncateTime(ts, tr.Granularity)]++
	}

	// Generate every period in the half-open range so quiet periods
	// show up as zeros
	var points []domain.TimeSeriesPoint
	for current := truncateTime(tr.Start, tr.Granularity); current.Before(tr.End); current = nextPeriod(current, tr.Granularity) {
		points = append(points, domain.TimeSeriesPoint{Timestamp: current, Value: counts[current]})
	}

	return &domain.TimeSeriesData{
		Kind:        kind,
		Granularity: tr.Granularity,
		DataPoints:  points,
	}, nil
}

// ReleasesByEnvironment lists releases, optionally filtered to one
// environment. An empty env keeps everything.
func (a *aggregator) ReleasesByEnvironment(ctx context.Context, org string, env domain.Environment, tr domain.TimeRange) ([]domain.Release, error) {
	bundle, err := a.load(ctx, org, tr)
	if err != nil {
		return nil, err
	}

	releases := make([]domain.Release, 0, len(bundle.Releases))
	for _, rel := range bundle.Releases {
		if env != "" && rel.Environment != env {
			continue
		}
		releases = append(releases, rel)
	}
	return releases, nil
}

// kindTimestamps picks the bucketing timestamp per record kind. Records
// whose timestamp is unset are skipped.
func kindTimestamps(bundle domain.RecordBundle, kind domain.RecordKind) ([]time.Time, error) {
	var stamps []time.Time
	switch kind {
	case domain.RecordKindPullRequest:
		for _, pr := range bundle.PullRequests {
			stamps = append(stamps, pr.CreatedAt)
		}
	case domain.RecordKindReview:
		for _, rev := range bundle.Reviews {
			if rev.SubmittedAt != nil {
				stamps = append(stamps, *rev.SubmittedAt)
			}
		}
	case domain.RecordKindCommit:
		for _, commit := range bundle.Commits {
			stamps = append(stamps, commit.CommittedAt)
		}
	case domain.RecordKindRelease:
		for _, rel := range bundle.Releases {
			if ts := rel.PrimaryTimestamp(); ts != nil {
				stamps = append(stamps, *ts)
			}
		}
	case domain.RecordKindIssue:
		for _, issue := range bundle.Issues {
			stamps = append(stamps, issue.CreatedAt)
		}
	default:
		return nil, apperrors.NewInvalidInputError(fmt.Sprintf("unknown record kind %q", kind))
	}
	return stamps, nil
}

// median returns the median of values, 0 for an empty set
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 0 {
		return (values[mid-1] + values[mid]) / 2
	}
	return values[mid]
}

// truncateTime truncates a time to the start of its period. Buckets are
// UTC-aligned regardless of the record's source offset.
func truncateTime(t time.Time, granularity string) time.Time {
	t = t.UTC()
	switch granularity {
	case "week":
		// Weeks start on Monday
		weekday := int(t.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		return time.Date(t.Year(), t.Month(), t.Day()-weekday+1, 0, 0, 0, 0, time.UTC)
	case "month":
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	}
}

// nextPeriod returns the start of the following period
func nextPeriod(t time.Time, granularity string) time.Time {
	switch granularity {
	case "week":
		return t.AddDate(0, 0, 7)
	case "month":
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"github.com/devpulse-io/devpulse/internal/storage"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsp(s string) *time.Time {
	t := ts(s)
	return &t
}

func octRange(granularity string) domain.TimeRange {
	return domain.TimeRange{
		Start:       ts("2025-10-01T00:00:00Z"),
		End:         ts("2025-11-01T00:00:00Z"),
		Granularity: granularity,
	}
}

// bundleStorage serves a canned bundle and records the requested window
type bundleStorage struct {
	storage.Storage
	bundle domain.RecordBundle
	window domain.DateWindow
}

func (f *bundleStorage) RecordsInWindow(_ context.Context, _ string, w domain.DateWindow) (domain.RecordBundle, error) {
	f.window = w
	return f.bundle, nil
}

type failingStorage struct {
	storage.Storage
}

func (f *failingStorage) RecordsInWindow(context.Context, string, domain.DateWindow) (domain.RecordBundle, error) {
	return domain.RecordBundle{}, apperrors.NewStorageError("querying records", nil)
}

func activityBundle() domain.RecordBundle {
	return domain.RecordBundle{
		PullRequests: []domain.PullRequest{
			{Org: "acme", Repo: "payments", Number: 1, Author: "alice", CreatedAt: ts("2025-10-01T10:00:00Z"), MergedAt: tsp("2025-10-02T10:00:00Z"), Additions: 100, Deletions: 10},
			{Org: "acme", Repo: "payments", Number: 2, Author: "alice", CreatedAt: ts("2025-10-03T08:00:00Z"), MergedAt: tsp("2025-10-03T20:00:00Z"), Additions: 50, Deletions: 5},
			{Org: "acme", Repo: "api", Number: 3, Author: "Bob", CreatedAt: ts("2025-10-05T09:00:00Z"), Additions: 10, Deletions: 1},
		},
		Reviews: []domain.Review{
			{Org: "acme", Repo: "payments", PRNumber: 1, PRAuthor: "alice", Reviewer: "bob", SubmittedAt: tsp("2025-10-01T14:00:00Z")},
			{Org: "acme", Repo: "payments", PRNumber: 2, PRAuthor: "alice", Reviewer: "bob", SubmittedAt: tsp("2025-10-03T12:00:00Z")},
			{Org: "acme", Repo: "api", PRNumber: 3, PRAuthor: "Bob", Reviewer: "ALICE", SubmittedAt: tsp("2025-10-05T15:00:00Z")},
		},
		Commits: []domain.Commit{
			{Org: "acme", Repo: "payments", PRNumber: 1, Author: "alice", CommittedAt: ts("2025-10-01T09:00:00Z")},
			{Org: "acme", Repo: "api", PRNumber: 3, Author: "", CommittedAt: ts("2025-10-05T08:00:00Z")},
		},
		Releases: []domain.Release{
			{Org: "acme", Repo: "payments", Tag: "v1.0.0", Environment: domain.EnvironmentProduction, PublishedAt: tsp("2025-10-02T16:00:00Z")},
			{Org: "acme", Repo: "payments", Tag: "v1.1.0-rc.1", Environment: domain.EnvironmentStaging, PublishedAt: tsp("2025-10-10T16:00:00Z")},
			{Org: "acme", Repo: "api", Tag: "v2.0.0", Environment: domain.EnvironmentProduction, PublishedAt: tsp("2025-10-20T16:00:00Z")},
		},
		Issues: []domain.Issue{
			{Project: "acme", Key: "PAY-1", Assignee: "bob", CreatedAt: ts("2025-10-04T08:00:00Z"), ResolvedAt: tsp("2025-10-06T08:00:00Z")},
			{Project: "acme", Key: "PAY-2", Assignee: "bob", CreatedAt: ts("2025-10-07T08:00:00Z")},
		},
	}
}

func TestSummary(t *testing.T) {
	store := &bundleStorage{bundle: activityBundle()}
	agg := NewAggregator(store)

	got, err := agg.Summary(context.Background(), "acme", octRange("day"))
	require.NoError(t, err)

	assert.Equal(t, "acme", got.Org)
	assert.Equal(t, 3, got.PullRequests)
	assert.Equal(t, 2, got.MergedPullRequests)
	assert.Equal(t, 3, got.Reviews)
	assert.Equal(t, 2, got.Commits)
	assert.Equal(t, 3, got.Releases)
	assert.Equal(t, 2, got.ProductionReleases)
	assert.Equal(t, 1, got.StagingReleases)
	assert.Equal(t, 2, got.Issues)
	assert.Equal(t, 1, got.ResolvedIssues)
	assert.Equal(t, 160, got.Additions)
	assert.Equal(t, 16, got.Deletions)

	// Merge cycles are 24h and 12h
	assert.InDelta(t, 18.0, got.MedianPRCycleHours, 0.001)

	assert.True(t, store.window.Since.Equal(ts("2025-10-01T00:00:00Z")))
	assert.True(t, store.window.Until.Equal(ts("2025-11-01T00:00:00Z")))
}

func TestSummaryQuietWindow(t *testing.T) {
	agg := NewAggregator(&bundleStorage{})

	got, err := agg.Summary(context.Background(), "acme", octRange("day"))
	require.NoError(t, err)
	assert.Zero(t, got.PullRequests)
	assert.Zero(t, got.MedianPRCycleHours)
}

func TestSummaryPropagatesStorageError(t *testing.T) {
	agg := NewAggregator(&failingStorage{})

	_, err := agg.Summary(context.Background(), "acme", octRange("day"))
	require.Error(t, err)
}

func TestMembersActivity(t *testing.T) {
	agg := NewAggregator(&bundleStorage{bundle: activityBundle()})

	members, err := agg.MembersActivity(context.Background(), "acme", octRange("day"))
	require.NoError(t, err)
	require.Len(t, members, 2)

	alice := members[0]
	assert.Equal(t, "alice", alice.Member)
	assert.Equal(t, 2, alice.PullRequests)
	assert.Equal(t, 1, alice.Reviews)
	assert.Equal(t, 1, alice.Commits)
	assert.Equal(t, 150, alice.Additions)
	assert.Equal(t, 15, alice.Deletions)

	bob := members[1]
	assert.Equal(t, "Bob", bob.Member)
	assert.Equal(t, 1, bob.PullRequests)
	assert.Equal(t, 2, bob.Reviews)
	assert.Equal(t, 2, bob.Issues)
	assert.Zero(t, bob.Commits)
}

func TestMemberActivityMatchesCaseInsensitively(t *testing.T) {
	agg := NewAggregator(&bundleStorage{bundle: activityBundle()})

	got, err := agg.MemberActivity(context.Background(), "acme", "BOB", octRange("day"))
	require.NoError(t, err)
	assert.Equal(t, "Bob", got.Member)
}

func TestMemberActivityUnknownMember(t *testing.T) {
	agg := NewAggregator(&bundleStorage{bundle: activityBundle()})

	_, err := agg.MemberActivity(context.Background(), "acme", "mallory", octRange("day"))
	assert.True(t, apperrors.IsNotFound(err))
}

func TestTimeSeriesDaily(t *testing.T) {
	bundle := domain.RecordBundle{PullRequests: []domain.PullRequest{
		{Number: 1, CreatedAt: ts("2025-10-01T09:00:00Z")},
		{Number: 2, CreatedAt: ts("2025-10-01T17:00:00Z")},
		{Number: 3, CreatedAt: ts("2025-10-02T23:30:00+09:00")}, // 14:30 UTC on Oct 2
		{Number: 4, CreatedAt: ts("2025-10-03T10:00:00Z")},
	}}
	agg := NewAggregator(&bundleStorage{bundle: bundle})

	tr := domain.TimeRange{Start: ts("2025-10-01T00:00:00Z"), End: ts("2025-10-06T00:00:00Z"), Granularity: "day"}
	got, err := agg.TimeSeries(context.Background(), "acme", domain.RecordKindPullRequest, tr)
	require.NoError(t, err)

	assert.Equal(t, domain.RecordKindPullRequest, got.Kind)
	assert.Equal(t, "day", got.Granularity)
	require.Len(t, got.DataPoints, 5)

	values := make([]int, len(got.DataPoints))
	for i, p := range got.DataPoints {
		values[i] = p.Value
	}
	assert.Equal(t, []int{2, 1, 1, 0, 0}, values)
	assert.True(t, got.DataPoints[0].Timestamp.Equal(ts("2025-10-01T00:00:00Z")))
	assert.True(t, got.DataPoints[4].Timestamp.Equal(ts("2025-10-05T00:00:00Z")))
}

func TestTimeSeriesWeeklyStartsMonday(t *testing.T) {
	bundle := domain.RecordBundle{Commits: []domain.Commit{
		{SHA: "a", CommittedAt: ts("2025-10-15T10:00:00Z")}, // Wednesday
		{SHA: "b", CommittedAt: ts("2025-10-26T10:00:00Z")}, // Sunday
	}}
	agg := NewAggregator(&bundleStorage{bundle: bundle})

	tr := domain.TimeRange{Start: ts("2025-10-15T00:00:00Z"), End: ts("2025-10-27T00:00:00Z"), Granularity: "week"}
	got, err := agg.TimeSeries(context.Background(), "acme", domain.RecordKindCommit, tr)
	require.NoError(t, err)

	// Start falls mid-week, so the first bucket opens on the preceding Monday
	require.Len(t, got.DataPoints, 2)
	assert.True(t, got.DataPoints[0].Timestamp.Equal(ts("2025-10-13T00:00:00Z")))
	assert.Equal(t, 1, got.DataPoints[0].Value)
	assert.True(t, got.DataPoints[1].Timestamp.Equal(ts("2025-10-20T00:00:00Z")))
	assert.Equal(t, 1, got.DataPoints[1].Value)
}

func TestTimeSeriesMonthly(t *testing.T) {
	bundle := domain.RecordBundle{Releases: []domain.Release{
		{Tag: "v1.0.0", PublishedAt: tsp("2025-09-15T10:00:00Z")},
		{Tag: "v1.1.0", PublishedAt: tsp("2025-10-02T10:00:00Z")},
		{Tag: "v1.2.0", PublishedAt: tsp("2025-10-20T10:00:00Z")},
	}}
	agg := NewAggregator(&bundleStorage{bundle: bundle})

	tr := domain.TimeRange{Start: ts("2025-09-01T00:00:00Z"), End: ts("2025-12-01T00:00:00Z"), Granularity: "month"}
	got, err := agg.TimeSeries(context.Background(), "acme", domain.RecordKindRelease, tr)
	require.NoError(t, err)

	require.Len(t, got.DataPoints, 3)
	assert.Equal(t, 1, got.DataPoints[0].Value)
	assert.Equal(t, 2, got.DataPoints[1].Value)
	assert.Equal(t, 0, got.DataPoints[2].Value)
}

func TestTimeSeriesSkipsUnsetTimestamps(t *testing.T) {
	bundle := domain.RecordBundle{Reviews: []domain.Review{
		{PRNumber: 1, Reviewer: "bob"},
		{PRNumber: 2, Reviewer: "bob", SubmittedAt: tsp("2025-10-03T12:00:00Z")},
	}}
	agg := NewAggregator(&bundleStorage{bundle: bundle})

	got, err := agg.TimeSeries(context.Background(), "acme", domain.RecordKindReview, octRange("month"))
	require.NoError(t, err)
	require.Len(t, got.DataPoints, 1)
	assert.Equal(t, 1, got.DataPoints[0].Value)
}

func TestTimeSeriesUnknownKind(t *testing.T) {
	agg := NewAggregator(&bundleStorage{})

	_, err := agg.TimeSeries(context.Background(), "acme", domain.RecordKind("deployment"), octRange("day"))
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
}

func TestReleasesByEnvironment(t *testing.T) {
	agg := NewAggregator(&bundleStorage{bundle: activityBundle()})

	prod, err := agg.ReleasesByEnvironment(context.Background(), "acme", domain.EnvironmentProduction, octRange("day"))
	require.NoError(t, err)
	require.Len(t, prod, 2)
	assert.Equal(t, "v1.0.0", prod[0].Tag)
	assert.Equal(t, "v2.0.0", prod[1].Tag)

	all, err := agg.ReleasesByEnvironment(context.Background(), "acme", "", octRange("day"))
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestMedian(t *testing.T) {
	assert.Zero(t, median(nil))
	assert.InDelta(t, 12.0, median([]float64{12}), 0.001)
	assert.InDelta(t, 20.0, median([]float64{40, 10, 20}), 0.001)
	assert.InDelta(t, 30.0, median([]float64{100, 10, 40, 20}), 0.001)
}

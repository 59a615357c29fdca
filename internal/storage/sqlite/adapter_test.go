package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
	"github.com/devpulse-io/devpulse/internal/storage"
)

func newTestStorage(t *testing.T) storage.Storage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "devpulse.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func octWindow() domain.DateWindow {
	return domain.DateWindow{Since: ts("2025-10-01T00:00:00Z"), Until: ts("2025-11-01T00:00:00Z")}
}

func sampleRun(id string, startedAt time.Time) *domain.CollectionRun {
	return &domain.CollectionRun{
		ID:         id,
		Org:        "acme",
		Window:     octWindow(),
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Minute),
		Status: domain.CollectionStatus{
			Successful:  []string{"acme/api", "acme/payments"},
			Failed:      []string{"acme/legacy"},
			Partial:     []string{"acme/infra"},
			RecordCount: 3,
		},
		Reliable: true,
	}
}

func TestSaveRunLatestRunRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	run := sampleRun("run-1", ts("2025-11-01T06:00:00Z"))
	require.NoError(t, store.SaveRun(ctx, run, domain.RecordBundle{}))

	got, err := store.LatestRun(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "acme", got.Org)
	assert.Equal(t, run.Status, got.Status)
	assert.True(t, got.Reliable)
	assert.True(t, got.Window.Since.Equal(run.Window.Since))
	assert.True(t, got.Window.Until.Equal(run.Window.Until))
	assert.True(t, got.StartedAt.Equal(run.StartedAt))
	assert.True(t, got.FinishedAt.Equal(run.FinishedAt))
}

func TestLatestRunPicksNewestStart(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	require.NoError(t, store.SaveRun(ctx, sampleRun("run-old", ts("2025-11-01T06:00:00Z")), domain.RecordBundle{}))
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-new", ts("2025-11-02T06:00:00Z")), domain.RecordBundle{}))

	got, err := store.LatestRun(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "run-new", got.ID)
}

func TestLatestRunUnknownOrg(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.LatestRun(context.Background(), "nobody")
	assert.Nil(t, got)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestSaveRunReplacesSameID(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	bundle := domain.RecordBundle{
		PullRequests: []domain.PullRequest{
			{Source: domain.SourceGitHub, Org: "acme", Repo: "api", Number: 1, Author: "alice", CreatedAt: ts("2025-10-10T10:00:00Z")},
		},
	}

	first := sampleRun("run-1", ts("2025-11-01T06:00:00Z"))
	require.NoError(t, store.SaveRun(ctx, first, bundle))

	second := sampleRun("run-1", ts("2025-11-01T07:00:00Z"))
	second.Reliable = false
	require.NoError(t, store.SaveRun(ctx, second, bundle))

	got, err := store.LatestRun(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.False(t, got.Reliable)
	assert.True(t, got.StartedAt.Equal(second.StartedAt))

	records, err := store.RecordsInWindow(ctx, "acme", octWindow())
	require.NoError(t, err)
	assert.Len(t, records.PullRequests, 1, "re-saving a run must not duplicate its records")
}

func TestRecordsInWindowRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	merged := ts("2025-10-03T15:00:00Z")
	bundle := domain.RecordBundle{
		PullRequests: []domain.PullRequest{
			{Source: domain.SourceGitHub, Org: "acme", Repo: "payments", Number: 7, Title: "Add retries", Author: "alice", State: "MERGED", CreatedAt: ts("2025-10-03T10:00:00Z"), MergedAt: &merged, Additions: 120, Deletions: 8, ReviewCount: 1},
		},
		Issues: []domain.Issue{
			{Source: domain.SourceJira, Project: "acme", Key: "PAY-42", Summary: "Fix rounding", Type: "Bug", Status: "Done", StatusCategory: "done", Assignee: "alice@acme.test", CreatedAt: ts("2025-10-04T08:00:00Z")},
		},
	}

	run := sampleRun("run-1", ts("2025-11-01T06:00:00Z"))
	require.NoError(t, store.SaveRun(ctx, run, bundle))

	got, err := store.RecordsInWindow(ctx, "acme", octWindow())
	require.NoError(t, err)
	assert.Equal(t, bundle.PullRequests, got.PullRequests)
	assert.Equal(t, bundle.Issues, got.Issues)
	assert.Equal(t, 2, got.Count())
}

func TestRecordsInWindowBoundaries(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	pr := func(num int, created string) domain.PullRequest {
		return domain.PullRequest{Source: domain.SourceGitHub, Org: "acme", Repo: "payments", Number: num, Author: "alice", CreatedAt: ts(created)}
	}
	bundle := domain.RecordBundle{PullRequests: []domain.PullRequest{
		pr(1, "2025-09-30T23:59:59Z"),
		pr(2, "2025-10-01T00:00:00Z"),
		pr(3, "2025-10-15T12:00:00Z"),
		pr(4, "2025-10-31T23:59:59Z"),
		pr(5, "2025-11-01T00:00:00Z"),
	}}
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-1", ts("2025-11-01T06:00:00Z")), bundle))

	got, err := store.RecordsInWindow(ctx, "acme", octWindow())
	require.NoError(t, err)
	require.Len(t, got.PullRequests, 3)
	assert.Equal(t, 2, got.PullRequests[0].Number)
	assert.Equal(t, 3, got.PullRequests[1].Number)
	assert.Equal(t, 4, got.PullRequests[2].Number)
}

func TestRecordsInWindowScopedToOrg(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	bundle := domain.RecordBundle{PullRequests: []domain.PullRequest{
		{Org: "acme", Repo: "payments", Number: 1, CreatedAt: ts("2025-10-03T10:00:00Z")},
		{Org: "globex", Repo: "api", Number: 2, CreatedAt: ts("2025-10-03T10:00:00Z")},
	}}
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-1", ts("2025-11-01T06:00:00Z")), bundle))

	got, err := store.RecordsInWindow(ctx, "acme", octWindow())
	require.NoError(t, err)
	require.Len(t, got.PullRequests, 1)
	assert.Equal(t, 1, got.PullRequests[0].Number)
}

func TestRecordsInWindowSkipsCorruptedRows(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	bundle := domain.RecordBundle{PullRequests: []domain.PullRequest{
		{Org: "acme", Repo: "payments", Number: 1, CreatedAt: ts("2025-10-03T10:00:00Z")},
	}}
	require.NoError(t, store.SaveRun(ctx, sampleRun("run-1", ts("2025-11-01T06:00:00Z")), bundle))

	db := store.(*sqliteStorage).db
	_, err := db.ExecContext(ctx, `
		INSERT INTO records (run_id, kind, org, repo, actor, environment, timestamp, data)
		VALUES ('run-1', 'pull_request', 'acme', 'payments', 'mallory', '', ?, '{"Number": not json')
	`, ts("2025-10-03T11:00:00Z"))
	require.NoError(t, err)

	got, err := store.RecordsInWindow(ctx, "acme", octWindow())
	require.NoError(t, err)
	require.Len(t, got.PullRequests, 1)
	assert.Equal(t, 1, got.PullRequests[0].Number)
}

func TestWorkingSetMissReturnsNil(t *testing.T) {
	store := newTestStorage(t)

	got, err := store.GetWorkingSet(context.Background(), "github:acme:payments")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestWorkingSetRoundTripAndOverwrite(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	ws := &domain.CachedWorkingSet{
		Key:        "github:acme:payments",
		Units:      []string{"acme/api", "acme/payments"},
		ResolvedAt: ts("2025-10-20T09:00:00Z"),
	}
	require.NoError(t, store.PutWorkingSet(ctx, ws))

	got, err := store.GetWorkingSet(ctx, ws.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, ws.Key, got.Key)
	assert.Equal(t, ws.Units, got.Units)
	assert.True(t, got.ResolvedAt.Equal(ws.ResolvedAt))

	refreshed := &domain.CachedWorkingSet{
		Key:        ws.Key,
		Units:      []string{"acme/api"},
		ResolvedAt: ts("2025-10-21T09:00:00Z"),
	}
	require.NoError(t, store.PutWorkingSet(ctx, refreshed))

	got, err = store.GetWorkingSet(ctx, ws.Key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"acme/api"}, got.Units)
	assert.True(t, got.ResolvedAt.Equal(refreshed.ResolvedAt))
}

func TestWorkingSetCorruptedEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	store := newTestStorage(t)

	db := store.(*sqliteStorage).db
	_, err := db.ExecContext(ctx, `
		INSERT INTO working_sets (key, units, resolved_at) VALUES ('github:acme:payments', '[broken', ?)
	`, ts("2025-10-20T09:00:00Z"))
	require.NoError(t, err)

	got, err := store.GetWorkingSet(ctx, "github:acme:payments")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMigrateIsIdempotent(t *testing.T) {
	store := newTestStorage(t)
	require.NoError(t, store.Migrate(context.Background()))
	require.NoError(t, store.Migrate(context.Background()))
}

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
)

// Storage is the persistence boundary: collection runs with their
// records, plus the resolver's cached working sets
type Storage interface {
	// Run operations. SaveRun stores the run trace and its records in
	// one transaction; callers decide whether an unreliable run is
	// worth storing at all.
	SaveRun(ctx context.Context, run *domain.CollectionRun, records domain.RecordBundle) error
	LatestRun(ctx context.Context, org string) (*domain.CollectionRun, error)

	// Record retrieval for the aggregation layer
	RecordsInWindow(ctx context.Context, org string, w domain.DateWindow) (domain.RecordBundle, error)

	// Working set cache. GetWorkingSet returns (nil, nil) on a miss;
	// a corrupted entry is a miss, never an error.
	GetWorkingSet(ctx context.Context, key string) (*domain.CachedWorkingSet, error)
	PutWorkingSet(ctx context.Context, ws *domain.CachedWorkingSet) error

	// Migration
	Migrate(ctx context.Context) error

	// Connection management
	Close() error
}

// WorkingSets adapts a Storage to the resolver's cache interface, for
// callers like the CLI whose process exits between runs
type WorkingSets struct {
	S Storage
}

func (w WorkingSets) Get(ctx context.Context, key string) (*domain.CachedWorkingSet, error) {
	return w.S.GetWorkingSet(ctx, key)
}

func (w WorkingSets) Put(ctx context.Context, ws *domain.CachedWorkingSet) error {
	return w.S.PutWorkingSet(ctx, ws)
}

// RecordRow is one normalized record flattened for relational storage.
// The typed columns carry what queries filter and index on; Data holds
// the whole record as JSON.
type RecordRow struct {
	RunID       string
	Kind        domain.RecordKind
	Org         string
	Repo        string
	Actor       string
	Environment string
	Timestamp   time.Time
	Data        []byte
}

// FlattenBundle turns a bundle into storable rows. Records with no
// usable timestamp are dropped since no window query could ever return
// them.
func FlattenBundle(runID string, bundle domain.RecordBundle) ([]RecordRow, error) {
	rows := make([]RecordRow, 0, bundle.Count())

	for _, pr := range bundle.PullRequests {
		data, err := json.Marshal(pr)
		if err != nil {
			return nil, err
		}
		rows = append(rows, RecordRow{
			RunID:     runID,
			Kind:      domain.RecordKindPullRequest,
			Org:       pr.Org,
			Repo:      pr.Repo,
			Actor:     pr.Author,
			Timestamp: pr.CreatedAt,
			Data:      data,
		})
	}

	for _, rev := range bundle.Reviews {
		if rev.SubmittedAt == nil {
			continue
		}
		data, err := json.Marshal(rev)
		if err != nil {
			return nil, err
		}
		rows = append(rows, RecordRow{
			RunID:     runID,
			Kind:      domain.RecordKindReview,
			Org:       rev.Org,
			Repo:      rev.Repo,
			Actor:     rev.Reviewer,
			Timestamp: *rev.SubmittedAt,
			Data:      data,
		})
	}

	for _, commit := range bundle.Commits {
		data, err := json.Marshal(commit)
		if err != nil {
			return nil, err
		}
		rows = append(rows, RecordRow{
			RunID:     runID,
			Kind:      domain.RecordKindCommit,
			Org:       commit.Org,
			Repo:      commit.Repo,
			Actor:     commit.Author,
			Timestamp: commit.CommittedAt,
			Data:      data,
		})
	}

	for _, rel := range bundle.Releases {
		ts := rel.PrimaryTimestamp()
		if ts == nil {
			continue
		}
		data, err := json.Marshal(rel)
		if err != nil {
			return nil, err
		}
		rows = append(rows, RecordRow{
			RunID:       runID,
			Kind:        domain.RecordKindRelease,
			Org:         rel.Org,
			Repo:        rel.Repo,
			Actor:       rel.Author,
			Environment: string(rel.Environment),
			Timestamp:   *ts,
			Data:        data,
		})
	}

	for _, issue := range bundle.Issues {
		data, err := json.Marshal(issue)
		if err != nil {
			return nil, err
		}
		rows = append(rows, RecordRow{
			RunID:     runID,
			Kind:      domain.RecordKindIssue,
			Org:       issue.Project,
			Repo:      issue.Project,
			Actor:     issue.Assignee,
			Timestamp: issue.CreatedAt,
			Data:      data,
		})
	}

	return rows, nil
}

// AppendRecord unmarshals one stored row back into the bundle
func AppendRecord(b *domain.RecordBundle, kind domain.RecordKind, data []byte) error {
	switch kind {
	case domain.RecordKindPullRequest:
		var pr domain.PullRequest
		if err := json.Unmarshal(data, &pr); err != nil {
			return err
		}
		b.PullRequests = append(b.PullRequests, pr)
	case domain.RecordKindReview:
		var rev domain.Review
		if err := json.Unmarshal(data, &rev); err != nil {
			return err
		}
		b.Reviews = append(b.Reviews, rev)
	case domain.RecordKindCommit:
		var commit domain.Commit
		if err := json.Unmarshal(data, &commit); err != nil {
			return err
		}
		b.Commits = append(b.Commits, commit)
	case domain.RecordKindRelease:
		var rel domain.Release
		if err := json.Unmarshal(data, &rel); err != nil {
			return err
		}
		b.Releases = append(b.Releases, rel)
	case domain.RecordKindIssue:
		var issue domain.Issue
		if err := json.Unmarshal(data, &issue); err != nil {
			return err
		}
		b.Issues = append(b.Issues, issue)
	default:
		return fmt.Errorf("unknown record kind %q", kind)
	}
	return nil
}

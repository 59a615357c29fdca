package domain

import "time"

// RecordKind identifies the kind of a normalized activity record
type RecordKind string

const (
	RecordKindPullRequest RecordKind = "pull_request"
	RecordKindReview      RecordKind = "review"
	RecordKindCommit      RecordKind = "commit"
	RecordKindRelease     RecordKind = "release"
	RecordKindIssue       RecordKind = "issue"
)

// Environment classifies where a release landed
type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
)

// PullRequest is a normalized pull request record.
// Author is empty when the account was deleted or anonymized.
type PullRequest struct {
	Source       SourceKind
	Org          string
	Repo         string
	Number       int
	Title        string
	Author       string
	State        string
	CreatedAt    time.Time
	MergedAt     *time.Time
	ClosedAt     *time.Time
	Additions    int
	Deletions    int
	ChangedFiles int
	ReviewCount  int
	CommitCount  int
}

// Review is a single pull request review.
// PRAuthor is carried so member filtering can keep reviews on a team
// member's pull request even when the reviewer is external.
type Review struct {
	Source      SourceKind
	Org         string
	Repo        string
	PRNumber    int
	PRAuthor    string
	Reviewer    string
	State       string
	SubmittedAt *time.Time
}

// Commit is a commit attached to a pull request
type Commit struct {
	Source      SourceKind
	Org         string
	Repo        string
	PRNumber    int
	PRAuthor    string
	SHA         string
	Author      string
	CommittedAt time.Time
	Additions   int
	Deletions   int
}

// Release is a normalized release or deployment record.
// PublishedAt and CreatedAt are both nullable; PrimaryTimestamp applies
// the published-then-created fallback.
type Release struct {
	Source      SourceKind
	Org         string
	Repo        string
	Tag         string
	Name        string
	Environment Environment
	Prerelease  bool
	Author      string
	PublishedAt *time.Time
	CreatedAt   *time.Time
}

// PrimaryTimestamp returns the release's publish time, falling back to
// its creation time, or nil when neither is present.
func (r *Release) PrimaryTimestamp() *time.Time {
	if r.PublishedAt != nil {
		return r.PublishedAt
	}
	return r.CreatedAt
}

// Issue is a normalized issue-tracker ticket
type Issue struct {
	Source         SourceKind
	Project        string
	Key            string
	Summary        string
	Type           string
	Status         string
	StatusCategory string
	Priority       string
	Assignee       string
	Reporter       string
	CreatedAt      time.Time
	UpdatedAt      *time.Time
	ResolvedAt     *time.Time
}

// CycleTime returns the created-to-resolved duration, or false when the
// issue is still open.
func (i *Issue) CycleTime() (time.Duration, bool) {
	if i.ResolvedAt == nil {
		return 0, false
	}
	return i.ResolvedAt.Sub(i.CreatedAt), true
}

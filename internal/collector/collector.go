package collector

import (
	"context"

	"github.com/devpulse-io/devpulse/internal/domain"
)

// SourceCollector collects one unit's activity records. Implementations
// build source-specific queries, drive the retry controller and the
// paginator, and extract normalized records. Returning records together
// with an error means earlier pages survived a later failure.
type SourceCollector interface {
	// Source identifies which API this collector speaks to
	Source() domain.SourceKind

	// Collect gathers all records for one unit within the request window
	Collect(ctx context.Context, req domain.CollectionRequest) (domain.RecordBundle, error)
}

// PullRequestInWindow reports whether a pull request's primary
// timestamp (createdAt) lies in the window
func PullRequestInWindow(pr domain.PullRequest, w domain.DateWindow) bool {
	return w.Contains(pr.CreatedAt)
}

// ReleaseInWindow applies the published-then-created timestamp fallback;
// a release carrying neither timestamp is never in the window
func ReleaseInWindow(rel domain.Release, w domain.DateWindow) bool {
	ts := rel.PrimaryTimestamp()
	if ts == nil {
		return false
	}
	return w.Contains(*ts)
}

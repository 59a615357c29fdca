package domain

import "strings"

// RecordBundle groups normalized records by kind. Bundles are value
// types: merging copies records, so no two units ever alias the same
// backing slices.
type RecordBundle struct {
	PullRequests []PullRequest
	Reviews      []Review
	Commits      []Commit
	Releases     []Release
	Issues       []Issue
}

// Merge appends every record from other into b. Order within a kind
// follows append order; there is no cross-unit ordering guarantee.
func (b *RecordBundle) Merge(other RecordBundle) {
	b.PullRequests = append(b.PullRequests, other.PullRequests...)
	b.Reviews = append(b.Reviews, other.Reviews...)
	b.Commits = append(b.Commits, other.Commits...)
	b.Releases = append(b.Releases, other.Releases...)
	b.Issues = append(b.Issues, other.Issues...)
}

// Count returns the total number of records across all kinds
func (b *RecordBundle) Count() int {
	return len(b.PullRequests) + len(b.Reviews) + len(b.Commits) +
		len(b.Releases) + len(b.Issues)
}

// Empty reports whether the bundle holds no records at all
func (b *RecordBundle) Empty() bool {
	return b.Count() == 0
}

// FilterByMembers keeps only records attributable to the given members:
// pull requests by author, reviews by reviewer or PR author, commits by
// author or PR author, issues by assignee. Releases always pass through
// since they are team-wide facts. An empty member set disables filtering.
// Identity comparison is case-insensitive.
func (b RecordBundle) FilterByMembers(members []string) RecordBundle {
	if len(members) == 0 {
		return b
	}
	set := make(map[string]struct{}, len(members))
	for _, m := range members {
		set[strings.ToLower(m)] = struct{}{}
	}
	in := func(identity string) bool {
		if identity == "" {
			return false
		}
		_, ok := set[strings.ToLower(identity)]
		return ok
	}

	out := RecordBundle{Releases: b.Releases}
	for _, pr := range b.PullRequests {
		if in(pr.Author) {
			out.PullRequests = append(out.PullRequests, pr)
		}
	}
	for _, rv := range b.Reviews {
		if in(rv.Reviewer) || in(rv.PRAuthor) {
			out.Reviews = append(out.Reviews, rv)
		}
	}
	for _, c := range b.Commits {
		if in(c.Author) || in(c.PRAuthor) {
			out.Commits = append(out.Commits, c)
		}
	}
	for _, is := range b.Issues {
		if in(is.Assignee) {
			out.Issues = append(out.Issues, is)
		}
	}
	return out
}

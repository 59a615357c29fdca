package domain

import "time"

// SourceKind identifies which remote API a request or record belongs to
type SourceKind string

const (
	SourceGitHub SourceKind = "github"
	SourceJira   SourceKind = "jira"
)

// DateWindow is a half-open collection window [Since, Until)
type DateWindow struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether t falls inside the window
func (w DateWindow) Contains(t time.Time) bool {
	return !t.Before(w.Since) && t.Before(w.Until)
}

// CollectionRequest describes one unit of collection work. It is built
// once by the fan-out coordinator and never mutated afterwards.
type CollectionRequest struct {
	Source     SourceKind
	Unit       string // repository full name or saved filter id
	Window     DateWindow
	Members    []string // optional team-member identity filter
	IncludeAux bool     // expensive per-item expansions (changelog, nested lists)
}

package domain

import "time"

// UnitResult is the outcome of collecting a single unit. Success is an
// explicit boolean: a unit that collected zero records without error is
// still successful. Partial marks a unit whose earlier pages survived a
// later failure; its records are kept but the unit counts as failed.
type UnitResult struct {
	Unit    string
	Success bool
	Partial bool
	Err     string
	Records RecordBundle
}

// CollectionStatus aggregates per-unit outcomes of one collection run.
// It exists so callers can tell "succeeded with nothing to report" from
// "failed to report": the former is cacheable, the latter is not.
type CollectionStatus struct {
	Successful  []string `json:"successful"`
	Failed      []string `json:"failed"`
	Partial     []string `json:"partial"`
	RecordCount int      `json:"record_count"`
}

// Unreliable reports whether failures outnumber successes, in which case
// the run likely hit a systemic API failure and should not be cached.
func (s *CollectionStatus) Unreliable() bool {
	return len(s.Failed) > len(s.Successful)
}

// Quiet reports whether the run succeeded somewhere yet produced no
// records, which is legitimate low activity rather than a fault.
func (s *CollectionStatus) Quiet() bool {
	return len(s.Successful) > 0 && s.RecordCount == 0
}

// CollectionRun is the persisted trace of one engine run
type CollectionRun struct {
	ID         string           `json:"id"`
	Org        string           `json:"org"`
	Window     DateWindow       `json:"window"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Status     CollectionStatus `json:"status"`
	Reliable   bool             `json:"reliable"`
}

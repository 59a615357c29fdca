package domain

import "time"

// CachedWorkingSet is a resolved unit list held in the resolver's side
// cache. Entries are overwritten on refresh, never merged.
type CachedWorkingSet struct {
	Key        string    `json:"key"`
	Units      []string  `json:"units"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Expired reports whether the entry is older than ttl at the given time
func (ws *CachedWorkingSet) Expired(ttl time.Duration, now time.Time) bool {
	return now.Sub(ws.ResolvedAt) >= ttl
}

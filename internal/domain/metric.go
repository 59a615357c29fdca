package domain

import "time"

// TimeRange represents a time range for metrics
type TimeRange struct {
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Granularity string    `json:"granularity"` // "day", "week", "month"
}

// OrgSummary represents aggregated activity for an organization
type OrgSummary struct {
	Org                string    `json:"org"`
	Window             TimeRange `json:"window"`
	PullRequests       int       `json:"pull_requests"`
	MergedPullRequests int       `json:"merged_pull_requests"`
	Reviews            int       `json:"reviews"`
	Commits            int       `json:"commits"`
	Releases           int       `json:"releases"`
	ProductionReleases int       `json:"production_releases"`
	StagingReleases    int       `json:"staging_releases"`
	Issues             int       `json:"issues"`
	ResolvedIssues     int       `json:"resolved_issues"`
	Additions          int       `json:"additions"`
	Deletions          int       `json:"deletions"`
	MedianPRCycleHours float64   `json:"median_pr_cycle_hours"`
}

// MemberMetrics represents aggregated activity for a member
type MemberMetrics struct {
	Member       string `json:"member"`
	PullRequests int    `json:"pull_requests"`
	Reviews      int    `json:"reviews"`
	Commits      int    `json:"commits"`
	Issues       int    `json:"issues"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
}

// TimeSeriesPoint represents a single data point in a time series
type TimeSeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     int       `json:"value"`
}

// TimeSeriesData represents time series data for a record kind
type TimeSeriesData struct {
	Kind        RecordKind        `json:"kind"`
	Granularity string            `json:"granularity"`
	DataPoints  []TimeSeriesPoint `json:"data_points"`
}

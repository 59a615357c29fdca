package collector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
)

const jiraSearchPath = "/rest/api/2/search"

// jiraTimeLayout is Jira's issue timestamp format. Some deployments
// serve plain RFC 3339, so parsing falls back to that.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

type jiraTime struct {
	time.Time
}

func (t *jiraTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	parsed, err := time.Parse(jiraTimeLayout, s)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
	}
	t.Time = parsed
	return nil
}

type jiraUser struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

// identity picks the most stable identifier the instance exposes:
// server usernames first, then cloud email, then display name.
func (u *jiraUser) identity() string {
	if u == nil {
		return ""
	}
	if u.Name != "" {
		return u.Name
	}
	if u.EmailAddress != "" {
		return u.EmailAddress
	}
	return u.DisplayName
}

type jiraFixVersion struct {
	Name        string `json:"name"`
	Released    bool   `json:"released"`
	ReleaseDate string `json:"releaseDate"`
}

type jiraIssue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary   string `json:"summary"`
		IssueType struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Status struct {
			Name           string `json:"name"`
			StatusCategory struct {
				Key string `json:"key"`
			} `json:"statusCategory"`
		} `json:"status"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Project struct {
			Key string `json:"key"`
		} `json:"project"`
		Assignee       *jiraUser        `json:"assignee"`
		Reporter       *jiraUser        `json:"reporter"`
		Created        jiraTime         `json:"created"`
		Updated        *jiraTime        `json:"updated"`
		ResolutionDate *jiraTime        `json:"resolutiondate"`
		FixVersions    []jiraFixVersion `json:"fixVersions"`
	} `json:"fields"`
}

type jiraSearchResponse struct {
	StartAt    int               `json:"startAt"`
	MaxResults int               `json:"maxResults"`
	Total      int               `json:"total"`
	Issues     []json.RawMessage `json:"issues"`
}

var jiraIssueFields = []string{
	"summary", "issuetype", "status", "priority", "project",
	"assignee", "reporter", "created", "updated", "resolutiondate",
	"fixVersions",
}

// JiraCollector collects issues for one unit per call through the REST
// search API. A unit is either a saved filter ("filter:12345" or a
// bare numeric id) or a project key. Fix versions on the returned
// issues double as deployment records.
type JiraCollector struct {
	exec    Executor
	retrier *Retrier
	baseURL string
	auth    string
	sizing  SizingConfig
	log     *slog.Logger
}

// NewJiraCollector creates a Jira collector authenticating with email
// and API token over basic auth
func NewJiraCollector(exec Executor, retrier *Retrier, baseURL, email, token string, sizing SizingConfig, log *slog.Logger) *JiraCollector {
	creds := base64.StdEncoding.EncodeToString([]byte(email + ":" + token))
	return &JiraCollector{
		exec:    exec,
		retrier: retrier,
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    "Basic " + creds,
		sizing:  sizing,
		log:     log,
	}
}

// Source implements SourceCollector
func (c *JiraCollector) Source() domain.SourceKind {
	return domain.SourceJira
}

// Collect implements SourceCollector for one filter or project unit
func (c *JiraCollector) Collect(ctx context.Context, req domain.CollectionRequest) (domain.RecordBundle, error) {
	var bundle domain.RecordBundle
	jql := buildJQL(req)

	pager := &OffsetPager{
		Sizing: c.sizing,
		Probe: func(ctx context.Context) (int, error) {
			return c.probeTotal(ctx, jql)
		},
		Fetch: func(ctx context.Context, offset, limit int, includeAux bool) (Page, error) {
			return c.fetchPage(ctx, jql, offset, limit, includeAux && req.IncludeAux)
		},
		Log: c.log,
	}

	raw, walkErr := pager.Run(ctx)

	// Extract whatever came back even when the walk broke off; the
	// fan-out layer decides what a partial unit is worth.
	seenVersions := make(map[string]struct{})
	for _, msg := range raw {
		var issue jiraIssue
		if err := json.Unmarshal(msg, &issue); err != nil {
			c.log.Warn("skipping undecodable issue", "unit", req.Unit, "error", err)
			continue
		}
		bundle.Issues = append(bundle.Issues, extractIssue(issue))
		bundle.Releases = append(bundle.Releases, extractFixVersionReleases(issue, req.Window, seenVersions)...)
	}

	if walkErr == nil {
		c.log.Debug("unit collected",
			"unit", req.Unit,
			"issues", len(bundle.Issues),
			"releases", len(bundle.Releases),
		)
	}
	return bundle, walkErr
}

func (c *JiraCollector) probeTotal(ctx context.Context, jql string) (int, error) {
	payload, err := c.post(ctx, "issue count probe", map[string]any{
		"jql":        jql,
		"maxResults": 0,
		"fields":     []string{"created"},
	})
	if err != nil {
		return 0, err
	}
	var resp jiraSearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return 0, apperrors.NewRetryableError("decoding issue count probe", err)
	}
	return resp.Total, nil
}

func (c *JiraCollector) fetchPage(ctx context.Context, jql string, offset, limit int, includeAux bool) (Page, error) {
	body := map[string]any{
		"jql":     jql,
		"startAt": offset,
		"fields":  jiraIssueFields,
	}
	if limit > 0 {
		body["maxResults"] = limit
	}
	if includeAux {
		body["expand"] = []string{"changelog"}
	}

	payload, err := c.post(ctx, "issue page", body)
	if err != nil {
		return Page{}, err
	}
	var resp jiraSearchResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return Page{}, apperrors.NewRetryableError("decoding issue page", err)
	}
	return Page{
		Records: resp.Issues,
		Total:   resp.Total,
		HasMore: resp.StartAt+len(resp.Issues) < resp.Total,
	}, nil
}

func (c *JiraCollector) post(ctx context.Context, op string, body map[string]any) ([]byte, error) {
	header := make(http.Header)
	header.Set("Authorization", c.auth)
	return c.retrier.Do(ctx, op, func(ctx context.Context) ([]byte, error) {
		return c.exec.Execute(ctx, &Request{
			Method: http.MethodPost,
			URL:    c.baseURL + jiraSearchPath,
			Body:   body,
			Header: header,
		})
	})
}

// buildJQL assembles the unit scope, the window clause, and the
// optional member clause into one query, newest first.
func buildJQL(req domain.CollectionRequest) string {
	clauses := []string{unitClause(req.Unit), windowClause(req.Window)}
	if len(req.Members) > 0 {
		quoted := make([]string, len(req.Members))
		for i, m := range req.Members {
			quoted[i] = strconv.Quote(m)
		}
		clauses = append(clauses, fmt.Sprintf("assignee in (%s)", strings.Join(quoted, ", ")))
	}
	return strings.Join(clauses, " AND ") + " ORDER BY created DESC"
}

func unitClause(unit string) string {
	if id, ok := strings.CutPrefix(unit, "filter:"); ok {
		return "filter = " + id
	}
	if _, err := strconv.Atoi(unit); err == nil {
		return "filter = " + unit
	}
	return fmt.Sprintf("project = %q", unit)
}

// windowClause matches issues with activity in the window without
// dragging in every stale ticket that merely exists: created in the
// window, resolved in the window, or still open and touched in the
// window.
func windowClause(w domain.DateWindow) string {
	since := w.Since.Format("2006-01-02")
	until := w.Until.Format("2006-01-02")
	return fmt.Sprintf(
		`((created >= %q AND created < %q) OR (resolved >= %q AND resolved < %q) OR (statusCategory != Done AND updated >= %q AND updated < %q))`,
		since, until, since, until, since, until,
	)
}

func extractIssue(issue jiraIssue) domain.Issue {
	out := domain.Issue{
		Source:         domain.SourceJira,
		Project:        issue.Fields.Project.Key,
		Key:            issue.Key,
		Summary:        issue.Fields.Summary,
		Type:           issue.Fields.IssueType.Name,
		Status:         issue.Fields.Status.Name,
		StatusCategory: issue.Fields.Status.StatusCategory.Key,
		Assignee:       issue.Fields.Assignee.identity(),
		Reporter:       issue.Fields.Reporter.identity(),
		CreatedAt:      issue.Fields.Created.Time,
	}
	if issue.Fields.Priority != nil {
		out.Priority = issue.Fields.Priority.Name
	}
	if issue.Fields.Updated != nil && !issue.Fields.Updated.IsZero() {
		t := issue.Fields.Updated.Time
		out.UpdatedAt = &t
	}
	if issue.Fields.ResolutionDate != nil && !issue.Fields.ResolutionDate.IsZero() {
		t := issue.Fields.ResolutionDate.Time
		out.ResolvedAt = &t
	}
	return out
}

// extractFixVersionReleases turns parseable fix versions into
// deployment records, one per distinct version name per unit walk
func extractFixVersionReleases(issue jiraIssue, w domain.DateWindow, seen map[string]struct{}) []domain.Release {
	var releases []domain.Release
	project := issue.Fields.Project.Key
	for _, fv := range issue.Fields.FixVersions {
		info, ok := ParseFixVersion(fv.Name)
		if !ok {
			continue
		}
		if !w.Contains(info.Date) {
			continue
		}
		key := project + "/" + fv.Name
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		ts := info.Date
		releases = append(releases, domain.Release{
			Source:      domain.SourceJira,
			Org:         project,
			Repo:        project,
			Tag:         fv.Name,
			Name:        fv.Name,
			Environment: info.Environment,
			PublishedAt: &ts,
		})
	}
	return releases
}

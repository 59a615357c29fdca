package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
)

// GitHubCollector collects pull requests and releases for one
// repository per call through the GraphQL API. The first page fetches
// both kinds in a single round trip; each side then continues on its
// own cursor, newest first, stopping at the window edge.
type GitHubCollector struct {
	exec    Executor
	retrier *Retrier
	url     string
	sizing  SizingConfig
	log     *slog.Logger
}

// NewGitHubCollector creates a GitHub collector. The executor's HTTP
// client must already carry the bearer token.
func NewGitHubCollector(exec Executor, retrier *Retrier, graphqlURL string, sizing SizingConfig, log *slog.Logger) *GitHubCollector {
	return &GitHubCollector{
		exec:    exec,
		retrier: retrier,
		url:     graphqlURL,
		sizing:  sizing,
		log:     log,
	}
}

// Source implements SourceCollector
func (c *GitHubCollector) Source() domain.SourceKind {
	return domain.SourceGitHub
}

// Collect implements SourceCollector for one repository unit. The
// GraphQL documents have no author filter, so member scoping happens
// client-side on the collected bundle, partial walks included.
func (c *GitHubCollector) Collect(ctx context.Context, req domain.CollectionRequest) (domain.RecordBundle, error) {
	bundle, err := c.walk(ctx, req)
	if len(req.Members) > 0 {
		bundle = bundle.FilterByMembers(req.Members)
	}
	return bundle, err
}

func (c *GitHubCollector) walk(ctx context.Context, req domain.CollectionRequest) (domain.RecordBundle, error) {
	var bundle domain.RecordBundle

	owner, name, err := splitRepoName(req.Unit)
	if err != nil {
		return bundle, err
	}

	pageSize := githubPageMax
	includeAux := req.IncludeAux

	prTotal, relTotal, err := c.probeCounts(ctx, owner, name)
	switch {
	case apperrors.IsFatal(err):
		return bundle, err
	case err != nil:
		// Best-effort walk with defaults; a broken probe must not
		// abort the unit.
		c.log.Warn("activity count probe failed, walking with defaults", "repo", req.Unit, "error", err)
	case prTotal == 0 && relTotal == 0:
		return bundle, nil
	default:
		largest := prTotal
		if relTotal > largest {
			largest = relTotal
		}
		plan := PlanFetch(largest, c.sizing)
		includeAux = req.IncludeAux && plan.IncludeAux
		if plan.BatchSize < pageSize {
			pageSize = plan.BatchSize
		}
	}

	payload, err := c.post(ctx, "repository activity", githubActivityQuery(includeAux), map[string]any{
		"owner":    owner,
		"name":     name,
		"pageSize": pageSize,
	})
	if err != nil {
		return bundle, err
	}

	var first ghRepositoryPayload
	if err := json.Unmarshal(payload, &first); err != nil {
		return bundle, apperrors.NewQueryFailedError("decoding repository activity payload", err)
	}
	if first.Data.Repository == nil {
		return bundle, apperrors.NewQueryFailedError(fmt.Sprintf("repository %s not found or inaccessible", req.Unit), nil)
	}

	prConn := first.Data.Repository.PullRequests
	prStop := c.appendPullRequests(&bundle, req, owner, name, includeAux, prConn.Nodes)
	for !prStop && prConn.PageInfo.HasNextPage {
		payload, err := c.post(ctx, "pull request page", githubPRPageQuery(includeAux), map[string]any{
			"owner":    owner,
			"name":     name,
			"pageSize": pageSize,
			"cursor":   prConn.PageInfo.EndCursor,
		})
		if err != nil {
			return bundle, err
		}
		var page ghRepositoryPayload
		if err := json.Unmarshal(payload, &page); err != nil {
			return bundle, apperrors.NewQueryFailedError("decoding pull request page", err)
		}
		if page.Data.Repository == nil {
			return bundle, apperrors.NewQueryFailedError(fmt.Sprintf("repository %s disappeared mid-walk", req.Unit), nil)
		}
		prConn = page.Data.Repository.PullRequests
		prStop = c.appendPullRequests(&bundle, req, owner, name, includeAux, prConn.Nodes)
	}

	relConn := first.Data.Repository.Releases
	relStop := c.appendReleases(&bundle, req, owner, name, relConn.Nodes)
	for !relStop && relConn.PageInfo.HasNextPage {
		payload, err := c.post(ctx, "release page", githubReleasePageQuery(), map[string]any{
			"owner":    owner,
			"name":     name,
			"pageSize": pageSize,
			"cursor":   relConn.PageInfo.EndCursor,
		})
		if err != nil {
			return bundle, err
		}
		var page ghRepositoryPayload
		if err := json.Unmarshal(payload, &page); err != nil {
			return bundle, apperrors.NewQueryFailedError("decoding release page", err)
		}
		if page.Data.Repository == nil {
			return bundle, apperrors.NewQueryFailedError(fmt.Sprintf("repository %s disappeared mid-walk", req.Unit), nil)
		}
		relConn = page.Data.Repository.Releases
		relStop = c.appendReleases(&bundle, req, owner, name, relConn.Nodes)
	}

	c.log.Debug("repository collected",
		"repo", req.Unit,
		"pull_requests", len(bundle.PullRequests),
		"reviews", len(bundle.Reviews),
		"commits", len(bundle.Commits),
		"releases", len(bundle.Releases),
	)
	return bundle, nil
}

// appendPullRequests extracts in-window nodes and reports whether the
// walk crossed the window edge. Nodes arrive newest first, so the
// first node older than the window ends the walk.
func (c *GitHubCollector) appendPullRequests(bundle *domain.RecordBundle, req domain.CollectionRequest, owner, name string, includeAux bool, nodes []ghPRNode) bool {
	for _, node := range nodes {
		if node.CreatedAt.Before(req.Window.Since) {
			return true
		}
		if !req.Window.Contains(node.CreatedAt) {
			// Newer than the window; keep walking back in time.
			continue
		}
		pr := extractPullRequest(owner, name, node)
		bundle.PullRequests = append(bundle.PullRequests, pr)
		if includeAux {
			bundle.Reviews = append(bundle.Reviews, extractReviews(owner, name, pr, node.Reviews.Nodes, req.Window)...)
			bundle.Commits = append(bundle.Commits, extractCommits(owner, name, pr, node.Commits.Nodes, req.Window)...)
		}
	}
	return false
}

func (c *GitHubCollector) appendReleases(bundle *domain.RecordBundle, req domain.CollectionRequest, owner, name string, nodes []ghReleaseNode) bool {
	for _, node := range nodes {
		rel := extractRelease(owner, name, node)
		ts := rel.PrimaryTimestamp()
		if ts == nil {
			continue
		}
		if ts.Before(req.Window.Since) {
			return true
		}
		if !ReleaseInWindow(rel, req.Window) {
			continue
		}
		bundle.Releases = append(bundle.Releases, rel)
	}
	return false
}

func (c *GitHubCollector) probeCounts(ctx context.Context, owner, name string) (int, int, error) {
	payload, err := c.post(ctx, "activity count probe", githubCountsQuery, map[string]any{
		"owner": owner,
		"name":  name,
	})
	if err != nil {
		return 0, 0, err
	}
	var counts ghCountsPayload
	if err := json.Unmarshal(payload, &counts); err != nil {
		return 0, 0, apperrors.NewRetryableError("decoding count probe payload", err)
	}
	if counts.Data.Repository == nil {
		return 0, 0, apperrors.NewQueryFailedError(fmt.Sprintf("repository %s/%s not found or inaccessible", owner, name), nil)
	}
	return counts.Data.Repository.PullRequests.TotalCount, counts.Data.Repository.Releases.TotalCount, nil
}

// post runs one GraphQL document through the retry controller
func (c *GitHubCollector) post(ctx context.Context, op, query string, vars map[string]any) ([]byte, error) {
	return c.retrier.Do(ctx, op, func(ctx context.Context) ([]byte, error) {
		return c.exec.Execute(ctx, &Request{
			Method: http.MethodPost,
			URL:    c.url,
			Body: map[string]any{
				"query":     query,
				"variables": vars,
			},
		})
	})
}

func splitRepoName(full string) (string, string, error) {
	owner, name, ok := strings.Cut(full, "/")
	if !ok || owner == "" || name == "" {
		return "", "", apperrors.NewInvalidInputError(fmt.Sprintf("invalid repository name %q, want owner/name", full))
	}
	return owner, name, nil
}

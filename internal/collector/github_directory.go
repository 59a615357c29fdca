package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/go-github/v55/github"
	"golang.org/x/sync/errgroup"

	"github.com/devpulse-io/devpulse/internal/domain"
	apperrors "github.com/devpulse-io/devpulse/internal/errors"
)

// teamFanOutLimit bounds concurrent team directory queries
const teamFanOutLimit = 4

// ResolveRepositories lists the repository units for a scope. With no
// teams it walks the whole organization; otherwise it queries each
// team in parallel and merges the union. The result keeps each unit
// once even when several teams share a repository.
func (c *GitHubCollector) ResolveRepositories(ctx context.Context, scope Scope) ([]string, error) {
	if len(scope.Teams) == 0 {
		return c.orgRepositories(ctx, scope.Org)
	}

	results := make([][]string, len(scope.Teams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(teamFanOutLimit)
	for i, team := range scope.Teams {
		i, team := i, team
		g.Go(func() error {
			repos, err := c.teamRepositories(gctx, scope.Org, team)
			if err != nil {
				return fmt.Errorf("listing repositories of team %s: %w", team, err)
			}
			results[i] = repos
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var units []string
	for _, repos := range results {
		for _, repo := range repos {
			if _, ok := seen[repo]; ok {
				continue
			}
			seen[repo] = struct{}{}
			units = append(units, repo)
		}
	}
	sort.Strings(units)
	c.log.Debug("resolved repositories", "org", scope.Org, "teams", len(scope.Teams), "units", len(units))
	return units, nil
}

func (c *GitHubCollector) orgRepositories(ctx context.Context, org string) ([]string, error) {
	var units []string
	vars := map[string]any{"org": org}
	for {
		payload, err := c.post(ctx, "organization repositories", githubOrgReposQuery, vars)
		if err != nil {
			return nil, err
		}
		var page ghOrgReposPayload
		if err := json.Unmarshal(payload, &page); err != nil {
			return nil, apperrors.NewQueryFailedError("decoding organization repositories", err)
		}
		if page.Data.Organization == nil {
			return nil, apperrors.NewQueryFailedError(fmt.Sprintf("organization %s not found or inaccessible", org), nil)
		}
		conn := page.Data.Organization.Repositories
		for _, node := range conn.Nodes {
			units = append(units, node.NameWithOwner)
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		vars = map[string]any{"org": org, "cursor": conn.PageInfo.EndCursor}
	}
	return units, nil
}

func (c *GitHubCollector) teamRepositories(ctx context.Context, org, team string) ([]string, error) {
	var units []string
	vars := map[string]any{"org": org, "team": team}
	for {
		payload, err := c.post(ctx, "team repositories", githubTeamReposQuery, vars)
		if err != nil {
			return nil, err
		}
		var page ghTeamReposPayload
		if err := json.Unmarshal(payload, &page); err != nil {
			return nil, apperrors.NewQueryFailedError("decoding team repositories", err)
		}
		if page.Data.Organization == nil {
			return nil, apperrors.NewQueryFailedError(fmt.Sprintf("organization %s not found or inaccessible", org), nil)
		}
		if page.Data.Organization.Team == nil {
			return nil, apperrors.NewQueryFailedError(fmt.Sprintf("team %s not found in %s", team, org), nil)
		}
		conn := page.Data.Organization.Team.Repositories
		for _, node := range conn.Nodes {
			units = append(units, node.NameWithOwner)
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		vars = map[string]any{"org": org, "team": team, "cursor": conn.PageInfo.EndCursor}
	}
	return units, nil
}

// MemberDirectory lists organization and team members over the REST
// API. Member lookups are small and rare, so they ride the go-github
// client instead of the GraphQL walker.
type MemberDirectory struct {
	gh  *github.Client
	log *slog.Logger
}

// NewMemberDirectory creates a member directory backed by an
// authenticated go-github client
func NewMemberDirectory(gh *github.Client, log *slog.Logger) *MemberDirectory {
	return &MemberDirectory{gh: gh, log: log}
}

// Members lists the distinct members of the given teams, or of the
// whole organization when teams is empty
func (d *MemberDirectory) Members(ctx context.Context, org string, teams []string) ([]domain.Member, error) {
	if len(teams) == 0 {
		return d.orgMembers(ctx, org)
	}

	seen := make(map[string]struct{})
	var members []domain.Member
	for _, team := range teams {
		opts := &github.TeamListTeamMembersOptions{
			ListOptions: github.ListOptions{PerPage: 100},
		}
		for {
			users, resp, err := d.gh.Teams.ListTeamMembersBySlug(ctx, org, team, opts)
			if err != nil {
				return nil, fmt.Errorf("listing members of team %s: %w", team, err)
			}
			for _, u := range users {
				login := u.GetLogin()
				key := strings.ToLower(login)
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				members = append(members, domain.Member{
					Org:         org,
					Username:    login,
					DisplayName: u.GetName(),
				})
			}
			if resp.NextPage == 0 {
				break
			}
			opts.Page = resp.NextPage
		}
	}
	d.log.Debug("resolved members", "org", org, "teams", len(teams), "members", len(members))
	return members, nil
}

func (d *MemberDirectory) orgMembers(ctx context.Context, org string) ([]domain.Member, error) {
	var members []domain.Member
	opts := &github.ListMembersOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}
	for {
		users, resp, err := d.gh.Organizations.ListMembers(ctx, org, opts)
		if err != nil {
			return nil, fmt.Errorf("listing members of %s: %w", org, err)
		}
		for _, u := range users {
			members = append(members, domain.Member{
				Org:         org,
				Username:    u.GetLogin(),
				DisplayName: u.GetName(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return members, nil
}

package collector

import (
	"regexp"
	"strings"
	"time"

	"github.com/devpulse-io/devpulse/internal/domain"
)

// bareSemverRe matches production-shaped tags: vMAJOR.MINOR.PATCH or
// MAJOR.MINOR.PATCH with no suffix of any kind.
var bareSemverRe = regexp.MustCompile(`^v?\d+\.\d+\.\d+$`)

// ClassifyReleaseEnvironment decides where a release landed from its
// tag text and prerelease flag. The prerelease flag always wins: a
// production-shaped tag marked prerelease is still staging. Suffixed
// tags (-rc, -beta, -alpha, -dev, -preview, -snapshot and anything
// else) and non-semver tags default to staging.
func ClassifyReleaseEnvironment(tag string, prerelease bool) domain.Environment {
	if prerelease {
		return domain.EnvironmentStaging
	}
	if bareSemverRe.MatchString(strings.TrimSpace(tag)) {
		return domain.EnvironmentProduction
	}
	return domain.EnvironmentStaging
}

type ghPageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

type ghActor struct {
	Login string `json:"login"`
}

type ghReviewNode struct {
	State       string     `json:"state"`
	SubmittedAt *time.Time `json:"submittedAt"`
	Author      *ghActor   `json:"author"`
}

type ghCommitNode struct {
	Commit struct {
		OID           string    `json:"oid"`
		CommittedDate time.Time `json:"committedDate"`
		Additions     int       `json:"additions"`
		Deletions     int       `json:"deletions"`
		Author        struct {
			Name string   `json:"name"`
			User *ghActor `json:"user"`
		} `json:"author"`
	} `json:"commit"`
}

type ghPRNode struct {
	Number       int        `json:"number"`
	Title        string     `json:"title"`
	State        string     `json:"state"`
	CreatedAt    time.Time  `json:"createdAt"`
	MergedAt     *time.Time `json:"mergedAt"`
	ClosedAt     *time.Time `json:"closedAt"`
	Additions    int        `json:"additions"`
	Deletions    int        `json:"deletions"`
	ChangedFiles int        `json:"changedFiles"`
	Author       *ghActor   `json:"author"`
	Reviews      struct {
		TotalCount int            `json:"totalCount"`
		Nodes      []ghReviewNode `json:"nodes"`
	} `json:"reviews"`
	Commits struct {
		TotalCount int            `json:"totalCount"`
		Nodes      []ghCommitNode `json:"nodes"`
	} `json:"commits"`
}

type ghReleaseNode struct {
	TagName      string     `json:"tagName"`
	Name         string     `json:"name"`
	IsPrerelease bool       `json:"isPrerelease"`
	PublishedAt  *time.Time `json:"publishedAt"`
	CreatedAt    *time.Time `json:"createdAt"`
	Author       *ghActor   `json:"author"`
}

type ghPRConnection struct {
	TotalCount int        `json:"totalCount"`
	PageInfo   ghPageInfo `json:"pageInfo"`
	Nodes      []ghPRNode `json:"nodes"`
}

type ghReleaseConnection struct {
	TotalCount int             `json:"totalCount"`
	PageInfo   ghPageInfo      `json:"pageInfo"`
	Nodes      []ghReleaseNode `json:"nodes"`
}

type ghRepositoryPayload struct {
	Data struct {
		Repository *struct {
			PullRequests ghPRConnection      `json:"pullRequests"`
			Releases     ghReleaseConnection `json:"releases"`
		} `json:"repository"`
	} `json:"data"`
}

type ghCountsPayload struct {
	Data struct {
		Repository *struct {
			PullRequests struct {
				TotalCount int `json:"totalCount"`
			} `json:"pullRequests"`
			Releases struct {
				TotalCount int `json:"totalCount"`
			} `json:"releases"`
		} `json:"repository"`
	} `json:"data"`
}

type ghRepoNode struct {
	Name          string `json:"name"`
	NameWithOwner string `json:"nameWithOwner"`
	IsPrivate     bool   `json:"isPrivate"`
}

type ghRepoConnection struct {
	PageInfo ghPageInfo   `json:"pageInfo"`
	Nodes    []ghRepoNode `json:"nodes"`
}

type ghOrgReposPayload struct {
	Data struct {
		Organization *struct {
			Repositories ghRepoConnection `json:"repositories"`
		} `json:"organization"`
	} `json:"data"`
}

type ghTeamReposPayload struct {
	Data struct {
		Organization *struct {
			Team *struct {
				Repositories ghRepoConnection `json:"repositories"`
			} `json:"team"`
		} `json:"organization"`
	} `json:"data"`
}

// actorLogin defaults a deleted or anonymized account to empty
func actorLogin(a *ghActor) string {
	if a == nil {
		return ""
	}
	return a.Login
}

func extractPullRequest(org, repo string, node ghPRNode) domain.PullRequest {
	return domain.PullRequest{
		Source:       domain.SourceGitHub,
		Org:          org,
		Repo:         repo,
		Number:       node.Number,
		Title:        node.Title,
		Author:       actorLogin(node.Author),
		State:        node.State,
		CreatedAt:    node.CreatedAt,
		MergedAt:     node.MergedAt,
		ClosedAt:     node.ClosedAt,
		Additions:    node.Additions,
		Deletions:    node.Deletions,
		ChangedFiles: node.ChangedFiles,
		ReviewCount:  node.Reviews.TotalCount,
		CommitCount:  node.Commits.TotalCount,
	}
}

// extractReviews keeps only reviews whose own submission time lies in
// the window; the parent PR being in the window is not enough.
func extractReviews(org, repo string, pr domain.PullRequest, nodes []ghReviewNode, w domain.DateWindow) []domain.Review {
	var reviews []domain.Review
	for _, node := range nodes {
		if node.SubmittedAt == nil || !w.Contains(*node.SubmittedAt) {
			continue
		}
		reviews = append(reviews, domain.Review{
			Source:      domain.SourceGitHub,
			Org:         org,
			Repo:        repo,
			PRNumber:    pr.Number,
			PRAuthor:    pr.Author,
			Reviewer:    actorLogin(node.Author),
			State:       node.State,
			SubmittedAt: node.SubmittedAt,
		})
	}
	return reviews
}

func extractCommits(org, repo string, pr domain.PullRequest, nodes []ghCommitNode, w domain.DateWindow) []domain.Commit {
	var commits []domain.Commit
	for _, node := range nodes {
		if !w.Contains(node.Commit.CommittedDate) {
			continue
		}
		author := actorLogin(node.Commit.Author.User)
		if author == "" {
			author = node.Commit.Author.Name
		}
		commits = append(commits, domain.Commit{
			Source:      domain.SourceGitHub,
			Org:         org,
			Repo:        repo,
			PRNumber:    pr.Number,
			PRAuthor:    pr.Author,
			SHA:         node.Commit.OID,
			Author:      author,
			CommittedAt: node.Commit.CommittedDate,
			Additions:   node.Commit.Additions,
			Deletions:   node.Commit.Deletions,
		})
	}
	return commits
}

func extractRelease(org, repo string, node ghReleaseNode) domain.Release {
	return domain.Release{
		Source:      domain.SourceGitHub,
		Org:         org,
		Repo:        repo,
		Tag:         node.TagName,
		Name:        node.Name,
		Environment: ClassifyReleaseEnvironment(node.TagName, node.IsPrerelease),
		Prerelease:  node.IsPrerelease,
		Author:      actorLogin(node.Author),
		PublishedAt: node.PublishedAt,
		CreatedAt:   node.CreatedAt,
	}
}

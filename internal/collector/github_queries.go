package collector

import "fmt"

// githubPageMax is the GraphQL connection page-size ceiling
const githubPageMax = 100

const githubPRCoreFields = `number title state createdAt mergedAt closedAt additions deletions changedFiles author { login }`

const githubPRAuxFields = `
          reviews(first: 50) {
            totalCount
            nodes { state submittedAt author { login } }
          }
          commits(first: 100) {
            totalCount
            nodes { commit { oid committedDate additions deletions author { name user { login } } } }
          }`

// Counts without nodes stay cheap even on huge repositories.
const githubPRAuxCountsOnly = `
          reviews { totalCount }
          commits { totalCount }`

const githubReleaseFields = `tagName name isPrerelease publishedAt createdAt author { login }`

func githubPRFields(includeAux bool) string {
	if includeAux {
		return githubPRCoreFields + githubPRAuxFields
	}
	return githubPRCoreFields + githubPRAuxCountsOnly
}

// githubActivityQuery fetches the first page of pull requests and
// releases in a single round trip, newest first.
func githubActivityQuery(includeAux bool) string {
	return fmt.Sprintf(`query repoActivity($owner: String!, $name: String!, $pageSize: Int!) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: $pageSize, orderBy: {field: CREATED_AT, direction: DESC}) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes { %s }
    }
    releases(first: $pageSize, orderBy: {field: CREATED_AT, direction: DESC}) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes { %s }
    }
  }
}`, githubPRFields(includeAux), githubReleaseFields)
}

// githubPRPageQuery continues the pull request walk from a cursor
func githubPRPageQuery(includeAux bool) string {
	return fmt.Sprintf(`query repoPullRequests($owner: String!, $name: String!, $pageSize: Int!, $cursor: String!) {
  repository(owner: $owner, name: $name) {
    pullRequests(first: $pageSize, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes { %s }
    }
  }
}`, githubPRFields(includeAux))
}

// githubReleasePageQuery continues the release walk from a cursor
func githubReleasePageQuery() string {
	return fmt.Sprintf(`query repoReleases($owner: String!, $name: String!, $pageSize: Int!, $cursor: String!) {
  repository(owner: $owner, name: $name) {
    releases(first: $pageSize, after: $cursor, orderBy: {field: CREATED_AT, direction: DESC}) {
      totalCount
      pageInfo { hasNextPage endCursor }
      nodes { %s }
    }
  }
}`, githubReleaseFields)
}

// githubCountsQuery is the cheap probe behind the sizing policy
const githubCountsQuery = `query repoActivityCounts($owner: String!, $name: String!) {
  repository(owner: $owner, name: $name) {
    pullRequests { totalCount }
    releases { totalCount }
  }
}`

// githubOrgReposQuery pages through an organization's repositories
const githubOrgReposQuery = `query orgRepositories($org: String!, $cursor: String) {
  organization(login: $org) {
    repositories(first: 100, after: $cursor, orderBy: {field: NAME, direction: ASC}) {
      pageInfo { hasNextPage endCursor }
      nodes { name nameWithOwner isPrivate }
    }
  }
}`

// githubTeamReposQuery pages through one team's repositories
const githubTeamReposQuery = `query teamRepositories($org: String!, $team: String!, $cursor: String) {
  organization(login: $org) {
    team(slug: $team) {
      repositories(first: 100, after: $cursor) {
        pageInfo { hasNextPage endCursor }
        nodes { name nameWithOwner isPrivate }
      }
    }
  }
}`

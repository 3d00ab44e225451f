package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/shurcooL/githubv4"

	"github.com/naka-gawa/llvm-gh/internal/domain"
)

// searchDateLayout is the timestamp format used inside search qualifiers.
const searchDateLayout = "2006-01-02T15:04:05"

type pageInfo struct {
	HasNextPage bool
	EndCursor   githubv4.String
}

type organizationIDQuery struct {
	Organization struct {
		ID githubv4.ID
	} `graphql:"organization(login: $org)"`
}

type userIDQuery struct {
	User struct {
		ID githubv4.ID
	} `graphql:"user(login: $user)"`
}

type issueContributionsQuery struct {
	User struct {
		ContributionsCollection struct {
			IssueContributions struct {
				TotalCount int
				PageInfo   pageInfo
				Nodes      []struct {
					Issue struct {
						URL string
					}
				}
			} `graphql:"issueContributions(first: 100, after: $cursor)"`
		} `graphql:"contributionsCollection(organizationID: $org, from: $from, to: $to)"`
	} `graphql:"user(login: $user)"`
}

type pullRequestContributionsQuery struct {
	User struct {
		ContributionsCollection struct {
			PullRequestContributions struct {
				TotalCount int
				PageInfo   pageInfo
				Nodes      []struct {
					PullRequest struct {
						URL string
					}
				}
			} `graphql:"pullRequestContributions(first: 100, after: $cursor)"`
		} `graphql:"contributionsCollection(organizationID: $org, from: $from, to: $to)"`
	} `graphql:"user(login: $user)"`
}

type issueCommentsQuery struct {
	Search struct {
		IssueCount int
		PageInfo   pageInfo
		Nodes      []struct {
			Issue struct {
				URL      string
				Comments struct {
					TotalCount int
					Nodes      []struct {
						URL    string
						Author struct {
							Login string
						}
					}
				} `graphql:"comments(first: 100)"`
			} `graphql:"... on Issue"`
		}
	} `graphql:"search(query: $query, type: ISSUE, first: 100, after: $cursor)"`
}

type commitHistory struct {
	TotalCount int
	PageInfo   pageInfo
	Nodes      []struct {
		URL string
	}
}

type organizationCommitsQuery struct {
	Organization struct {
		Repositories struct {
			PageInfo pageInfo
			Nodes    []struct {
				Name string
				Ref  struct {
					Target struct {
						Commit struct {
							History commitHistory `graphql:"history(first: 100, since: $since, until: $until, author: $author)"`
						} `graphql:"... on Commit"`
					}
				} `graphql:"ref(qualifiedName: $branch)"`
			}
		} `graphql:"repositories(first: 100, after: $cursor)"`
	} `graphql:"organization(login: $org)"`
}

type repositoryHistoryQuery struct {
	Repository struct {
		Ref struct {
			Target struct {
				Commit struct {
					History commitHistory `graphql:"history(first: 100, after: $cursor, since: $since, until: $until, author: $author)"`
				} `graphql:"... on Commit"`
			}
		} `graphql:"ref(qualifiedName: $branch)"`
	} `graphql:"repository(owner: $org, name: $name)"`
}

func (g *GitHubGateway) query(ctx context.Context, name string, q interface{}, variables map[string]interface{}) error {
	if err := g.graphqlClient.Query(ctx, q, variables); err != nil {
		return &QueryError{Query: name, Err: err}
	}
	return nil
}

// FetchOrganizationID resolves an organization login to its node ID.
func (g *GitHubGateway) FetchOrganizationID(ctx context.Context, org string) (githubv4.ID, error) {
	var q organizationIDQuery
	if err := g.query(ctx, "organization id", &q, map[string]interface{}{"org": githubv4.String(org)}); err != nil {
		return nil, err
	}
	return q.Organization.ID, nil
}

// FetchUserID resolves a user login to its node ID.
func (g *GitHubGateway) FetchUserID(ctx context.Context, user string) (githubv4.ID, error) {
	var q userIDQuery
	if err := g.query(ctx, "user id", &q, map[string]interface{}{"user": githubv4.String(user)}); err != nil {
		return nil, err
	}
	return q.User.ID, nil
}

// FetchContributions returns the issues and pull requests user opened in org
// between from and to.
func (g *GitHubGateway) FetchContributions(ctx context.Context, user, org string, from, to time.Time) (*domain.Contributions, error) {
	g.logger.Info("[1/3] Fetching issue and pull request contributions...")
	orgID, err := g.FetchOrganizationID(ctx, org)
	if err != nil {
		return nil, err
	}
	variables := map[string]interface{}{
		"user":   githubv4.String(user),
		"org":    githubv4.NewID(orgID),
		"from":   githubv4.DateTime{Time: from},
		"to":     githubv4.DateTime{Time: to},
		"cursor": (*githubv4.String)(nil),
	}

	contributions := &domain.Contributions{}
	for {
		var q issueContributionsQuery
		if err := g.query(ctx, "issue contributions", &q, variables); err != nil {
			return nil, err
		}
		conn := q.User.ContributionsCollection.IssueContributions
		for _, node := range conn.Nodes {
			contributions.Issues = append(contributions.Issues, node.Issue.URL)
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(conn.PageInfo.EndCursor)
		g.logger.Debug("  Fetching next page of issue contributions...")
	}

	variables["cursor"] = (*githubv4.String)(nil)
	for {
		var q pullRequestContributionsQuery
		if err := g.query(ctx, "pull request contributions", &q, variables); err != nil {
			return nil, err
		}
		conn := q.User.ContributionsCollection.PullRequestContributions
		for _, node := range conn.Nodes {
			contributions.PullRequests = append(contributions.PullRequests, node.PullRequest.URL)
		}
		if !conn.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(conn.PageInfo.EndCursor)
		g.logger.Debug("  Fetching next page of pull request contributions...")
	}
	g.logger.Info("Completed fetching contributions.")
	return contributions, nil
}

// FetchIssueComments returns the URLs of comments user left on issues in org
// that were created between from and to. Issues with more comments than fit
// in one page are reported by their own URL instead.
func (g *GitHubGateway) FetchIssueComments(ctx context.Context, user, org string, from, to time.Time) ([]string, error) {
	g.logger.Info("[2/3] Fetching issue comments...")
	query := fmt.Sprintf("type:issue org:%s commenter:%s created:%s..%s",
		org, user, from.Format(searchDateLayout), to.Format(searchDateLayout))
	variables := map[string]interface{}{
		"query":  githubv4.String(query),
		"cursor": (*githubv4.String)(nil),
	}

	var urls []string
	for {
		var q issueCommentsQuery
		if err := g.query(ctx, "issue comments", &q, variables); err != nil {
			return nil, err
		}
		if q.Search.IssueCount > maxSearchResults {
			return nil, fmt.Errorf("%w: %d commented issues, please specify a shorter time-period", ErrTooManyResults, q.Search.IssueCount)
		}
		for _, node := range q.Search.Nodes {
			issue := node.Issue
			if issue.Comments.TotalCount > 100 {
				urls = append(urls, issue.URL)
				continue
			}
			for _, c := range issue.Comments.Nodes {
				if c.Author.Login == user {
					urls = append(urls, c.URL)
				}
			}
		}
		if !q.Search.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Search.PageInfo.EndCursor)
		g.logger.Debug("  Fetching next page of commented issues...")
	}
	g.logger.Infof("Completed fetching issue comments for query: %s", query)
	return urls, nil
}

// FetchCommits returns the URLs of the commits user authored on branch of
// every repository in org between from and to.
func (g *GitHubGateway) FetchCommits(ctx context.Context, user, org, branch string, from, to time.Time) ([]string, error) {
	g.logger.Info("[3/3] Fetching commits...")
	userID, err := g.FetchUserID(ctx, user)
	if err != nil {
		return nil, err
	}
	variables := map[string]interface{}{
		"org":    githubv4.String(org),
		"branch": githubv4.String(branch),
		"since":  githubv4.GitTimestamp{Time: from},
		"until":  githubv4.GitTimestamp{Time: to},
		"author": githubv4.CommitAuthor{ID: githubv4.NewID(userID)},
		"cursor": (*githubv4.String)(nil),
	}

	var urls []string
	for {
		var q organizationCommitsQuery
		if err := g.query(ctx, "organization commits", &q, variables); err != nil {
			return nil, err
		}
		for _, repo := range q.Organization.Repositories.Nodes {
			history := repo.Ref.Target.Commit.History
			if history.TotalCount > maxSearchResults {
				return nil, fmt.Errorf("%w: %d commits in %s/%s, please specify a shorter time-period", ErrTooManyResults, history.TotalCount, org, repo.Name)
			}
			for _, c := range history.Nodes {
				urls = append(urls, c.URL)
			}
			if history.PageInfo.HasNextPage {
				rest, err := g.fetchRemainingHistory(ctx, repo.Name, history.PageInfo.EndCursor, variables)
				if err != nil {
					return nil, err
				}
				urls = append(urls, rest...)
			}
		}
		if !q.Organization.Repositories.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(q.Organization.Repositories.PageInfo.EndCursor)
		g.logger.Debug("  Fetching next page of repositories...")
	}
	g.logger.Info("Completed fetching commits.")
	return urls, nil
}

// fetchRemainingHistory follows a single repository's commit history from cursor.
func (g *GitHubGateway) fetchRemainingHistory(ctx context.Context, name string, cursor githubv4.String, shared map[string]interface{}) ([]string, error) {
	variables := map[string]interface{}{
		"org":    shared["org"],
		"name":   githubv4.String(name),
		"branch": shared["branch"],
		"since":  shared["since"],
		"until":  shared["until"],
		"author": shared["author"],
		"cursor": githubv4.NewString(cursor),
	}
	var urls []string
	for {
		var q repositoryHistoryQuery
		if err := g.query(ctx, "repository history", &q, variables); err != nil {
			return nil, err
		}
		history := q.Repository.Ref.Target.Commit.History
		for _, c := range history.Nodes {
			urls = append(urls, c.URL)
		}
		if !history.PageInfo.HasNextPage {
			break
		}
		variables["cursor"] = githubv4.NewString(history.PageInfo.EndCursor)
		g.logger.Debugf("  Fetching next page of commits in %s...", name)
	}
	return urls, nil
}

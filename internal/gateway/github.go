// Package gateway provides a gateway to the GitHub API,
// abstracting away the underlying REST and GraphQL clients.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/shurcooL/githubv4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/naka-gawa/llvm-gh/internal/domain"
)

// ActivityFetcher fetches what a user did inside an organization.
type ActivityFetcher interface {
	FetchContributions(ctx context.Context, user, org string, from, to time.Time) (*domain.Contributions, error)
	FetchIssueComments(ctx context.Context, user, org string, from, to time.Time) ([]string, error)
	FetchCommits(ctx context.Context, user, org, branch string, from, to time.Time) ([]string, error)
}

// PullRequestFetcher fetches the pull-request details the mailer needs.
type PullRequestFetcher interface {
	ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error)
	FetchPatch(ctx context.Context, owner, repo string, number int) (string, error)
	FetchDisplayName(ctx context.Context, login string) (string, error)
}

// GitHubGateway implements both fetchers on top of one authenticated client.
type GitHubGateway struct {
	restClient    *github.Client
	graphqlClient *githubv4.Client
	logger        logrus.FieldLogger
}

// NewGitHubGateway creates a gateway authenticated with token. An empty token
// yields an anonymous client, which is enough for public REST lookups.
func NewGitHubGateway(token string, logger logrus.FieldLogger) (*GitHubGateway, error) {
	rateLimitWaiter, err := github_ratelimit.NewRateLimitWaiter(nil, github_ratelimit.WithSingleSleepLimit(1*time.Hour, nil))
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit waiter: %w", err)
	}
	var transport http.RoundTripper = &globalIDTransport{
		base: &retryOnceTransport{
			base:   newQuotaGuard(rateLimitWaiter, logger),
			logger: logger,
		},
	}
	if token != "" {
		transport = &oauth2.Transport{
			Base:   transport,
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}
	httpClient := &http.Client{Transport: transport}
	return &GitHubGateway{
		restClient:    github.NewClient(httpClient),
		graphqlClient: githubv4.NewClient(httpClient),
		logger:        logger,
	}, nil
}

// ListChangedFiles returns the path of every file touched by a pull request.
func (g *GitHubGateway) ListChangedFiles(ctx context.Context, owner, repo string, number int) ([]string, error) {
	g.logger.Debugf("Listing files of %s/%s#%d...", owner, repo, number)
	opts := &github.ListOptions{PerPage: 100}
	var files []string
	for {
		page, resp, err := g.restClient.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to list files of %s/%s#%d: %w", owner, repo, number, err)
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
		g.logger.Debug("  Fetching next page of changed files...")
	}
	return files, nil
}

// FetchPatch returns the pull request in git format-patch form.
func (g *GitHubGateway) FetchPatch(ctx context.Context, owner, repo string, number int) (string, error) {
	patch, _, err := g.restClient.PullRequests.GetRaw(ctx, owner, repo, number, github.RawOptions{Type: github.Patch})
	if err != nil {
		return "", fmt.Errorf("failed to fetch patch of %s/%s#%d: %w", owner, repo, number, err)
	}
	return patch, nil
}

// FetchDisplayName returns the user's profile name, or the login when the
// profile has none.
func (g *GitHubGateway) FetchDisplayName(ctx context.Context, login string) (string, error) {
	user, _, err := g.restClient.Users.Get(ctx, login)
	if err != nil {
		return "", fmt.Errorf("failed to get user %s: %w", login, err)
	}
	if name := user.GetName(); name != "" {
		return name, nil
	}
	return login, nil
}

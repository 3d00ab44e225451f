// Package usecase contains the business logic of the application.
package usecase

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/naka-gawa/llvm-gh/internal/domain"
	"github.com/naka-gawa/llvm-gh/internal/gateway"
)

// Report section names, in output order.
const (
	SectionCreatedIssues = "Created Issues"
	SectionIssueComments = "Issue Comments"
	SectionPullRequests  = "Created Pull Requests"
	SectionCommits       = "Commits"
)

// Reporter is the use case for building a user's activity report.
type Reporter struct {
	fetcher gateway.ActivityFetcher
	logger  logrus.FieldLogger
	org     string
	branch  string
}

// NewReporter creates a Reporter for org. Commits are read from branch.
func NewReporter(fetcher gateway.ActivityFetcher, logger logrus.FieldLogger, org, branch string) *Reporter {
	return &Reporter{
		fetcher: fetcher,
		logger:  logger,
		org:     org,
		branch:  branch,
	}
}

// Report fetches the contributions, issue comments and commits of user
// concurrently and assembles them. Any failure aborts the whole report.
func (r *Reporter) Report(ctx context.Context, user string, from, to time.Time) (*domain.ActivityReport, error) {
	r.logger.Info("Usecase: Starting activity report...")

	var contributions *domain.Contributions
	var comments, commits []string

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		contributions, err = r.fetcher.FetchContributions(egCtx, user, r.org, from, to)
		return err
	})
	eg.Go(func() error {
		var err error
		comments, err = r.fetcher.FetchIssueComments(egCtx, user, r.org, from, to)
		return err
	})
	eg.Go(func() error {
		var err error
		commits, err = r.fetcher.FetchCommits(egCtx, user, r.org, r.branch, from, to)
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	r.logger.Info("Usecase: All activity fetched successfully.")

	report := &domain.ActivityReport{
		User:          user,
		Organization:  r.org,
		From:          from,
		To:            to,
		CreatedIssues: nonNil(contributions.Issues),
		IssueComments: nonNil(comments),
		PullRequests:  nonNil(contributions.PullRequests),
		Commits:       nonNil(commits),
	}
	return report, nil
}

// Summarize fills in the per-repository summary of report.
func Summarize(report *domain.ActivityReport) {
	report.Summary = []domain.SectionSummary{
		summarize(SectionCreatedIssues, report.CreatedIssues),
		summarize(SectionIssueComments, report.IssueComments),
		summarize(SectionPullRequests, report.PullRequests),
		summarize(SectionCommits, report.Commits),
	}
}

func summarize(section string, urls []string) domain.SectionSummary {
	summary := domain.SectionSummary{Section: section, Total: len(urls)}
	perRepo := make(map[string]int)
	for _, u := range urls {
		perRepo[repositoryOf(u)]++
	}
	if len(perRepo) == 0 {
		return summary
	}

	repos := make([]string, 0, len(perRepo))
	for repo := range perRepo {
		repos = append(repos, repo)
	}
	sort.Strings(repos)
	counts := make(stats.Float64Data, 0, len(repos))
	for _, repo := range repos {
		counts = append(counts, float64(perRepo[repo]))
		if summary.BusiestRepository == "" || perRepo[repo] > perRepo[summary.BusiestRepository] {
			summary.BusiestRepository = repo
		}
	}
	summary.Repositories = len(repos)
	// Both only fail on empty input, which is ruled out above.
	summary.MedianPerRepo, _ = stats.Median(counts)
	summary.MaxPerRepo, _ = stats.Max(counts)
	return summary
}

// repositoryOf extracts "owner/name" from a github.com URL.
func repositoryOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 3)
	if len(parts) < 2 {
		return u.Path
	}
	return parts[0] + "/" + parts[1]
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

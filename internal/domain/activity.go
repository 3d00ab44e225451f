// Package domain contains the core data structures shared by the reporter
// and the pull-request mailer.
package domain

import "time"

// ActivityReport holds the URLs of everything a user did in an organization
// over a period. Each list keeps the order in which GitHub returned it.
type ActivityReport struct {
	User          string           `json:"user"`
	Organization  string           `json:"organization"`
	From          time.Time        `json:"from"`
	To            time.Time        `json:"to"`
	CreatedIssues []string         `json:"created_issues"`
	IssueComments []string         `json:"issue_comments"`
	PullRequests  []string         `json:"pull_requests"`
	Commits       []string         `json:"commits"`
	Summary       []SectionSummary `json:"summary,omitempty"`
}

// Contributions is the result of a contributionsCollection lookup.
type Contributions struct {
	Issues       []string
	PullRequests []string
}

// SectionSummary describes how the items of one report section are spread
// across repositories.
type SectionSummary struct {
	Section           string  `json:"section"`
	Total             int     `json:"total"`
	Repositories      int     `json:"repositories"`
	MedianPerRepo     float64 `json:"median_per_repository"`
	MaxPerRepo        float64 `json:"max_per_repository"`
	BusiestRepository string  `json:"busiest_repository,omitempty"`
}

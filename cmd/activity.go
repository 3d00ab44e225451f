package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/llvm-gh/internal/domain"
	"github.com/naka-gawa/llvm-gh/internal/gateway"
	"github.com/naka-gawa/llvm-gh/internal/usecase"
)

// activityDateLayout is the accepted --start-date/--end-date format.
const activityDateLayout = "2006-01-02T15:04:05"

var activityCmd = &cobra.Command{
	Use:   "activity <user>",
	Short: "Lists a user's issues, comments, pull requests and commits",
	Long: `Lists the URLs of the issues and pull requests a user created, the issue
comments they wrote and the commits they authored in a GitHub organization
between two dates. The period defaults to the last 365 days.`,
	Example: "  llvm-gh activity jdoe --start-date 2024-04-02T17:00:00 --end-date 2024-04-03T14:00:00",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newCLILogger(cmd)

		token, _ := cmd.Flags().GetString("token")
		if token == "" {
			token = os.Getenv("GITHUB_TOKEN")
		}
		if token == "" {
			return errors.New("a token is required: pass --token or set GITHUB_TOKEN")
		}
		org, _ := cmd.Flags().GetString("org")
		branch, _ := cmd.Flags().GetString("branch")
		output, _ := cmd.Flags().GetString("output")
		summary, _ := cmd.Flags().GetBool("summary")
		startStr, _ := cmd.Flags().GetString("start-date")
		endStr, _ := cmd.Flags().GetString("end-date")
		if output != "text" && output != "json" {
			return fmt.Errorf("invalid --output %q: use text or json", output)
		}

		from, to, err := parseDateRange(startStr, endStr, time.Now())
		if err != nil {
			return err
		}

		githubGateway, err := gateway.NewGitHubGateway(token, logger)
		if err != nil {
			return fmt.Errorf("failed to create GitHub gateway: %w", err)
		}
		reporter := usecase.NewReporter(githubGateway, logger, org, branch)
		report, err := reporter.Report(cmd.Context(), args[0], from, to)
		if err != nil {
			if errors.Is(err, gateway.ErrTooManyResults) {
				return err
			}
			return fmt.Errorf("failed to build activity report: %w", err)
		}
		if summary {
			usecase.Summarize(report)
		}

		if output == "json" {
			jsonData, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to marshal report to JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(jsonData))
			return nil
		}
		printReport(cmd.OutOrStdout(), report)
		return nil
	},
}

// parseDateRange parses the optional start and end dates in local time. The
// end defaults to now and the start to a year before the end.
func parseDateRange(startStr, endStr string, now time.Time) (time.Time, time.Time, error) {
	end := now
	if endStr != "" {
		t, err := time.ParseInLocation(activityDateLayout, endStr, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end-date, please use YYYY-MM-DDTHH:MM:SS: %w", err)
		}
		end = t
	}
	start := end.AddDate(0, 0, -365)
	if startStr != "" {
		t, err := time.ParseInLocation(activityDateLayout, startStr, time.Local)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start-date, please use YYYY-MM-DDTHH:MM:SS: %w", err)
		}
		start = t
	}
	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--start-date %s is after --end-date %s", start.Format(activityDateLayout), end.Format(activityDateLayout))
	}
	return start, end, nil
}

func printReport(w io.Writer, report *domain.ActivityReport) {
	sections := []struct {
		title string
		urls  []string
	}{
		{usecase.SectionCreatedIssues, report.CreatedIssues},
		{usecase.SectionIssueComments, report.IssueComments},
		{usecase.SectionPullRequests, report.PullRequests},
		{usecase.SectionCommits, report.Commits},
	}
	for _, s := range sections {
		fmt.Fprintf(w, "%s:\n", s.title)
		for _, u := range s.urls {
			fmt.Fprintln(w, u)
		}
	}
	if len(report.Summary) == 0 {
		return
	}
	fmt.Fprintln(w, "Summary:")
	for _, s := range report.Summary {
		fmt.Fprintf(w, "  %s: %d across %d repositories (median %.1f, max %.0f per repository", s.Section, s.Total, s.Repositories, s.MedianPerRepo, s.MaxPerRepo)
		if s.BusiestRepository != "" {
			fmt.Fprintf(w, ", most in %s", s.BusiestRepository)
		}
		fmt.Fprintln(w, ")")
	}
}

func init() {
	rootCmd.AddCommand(activityCmd)
	activityCmd.Flags().String("token", "", "GitHub token (defaults to $GITHUB_TOKEN)")
	activityCmd.Flags().String("start-date", "", "Start of the period (YYYY-MM-DDTHH:MM:SS, local time)")
	activityCmd.Flags().String("end-date", "", "End of the period (YYYY-MM-DDTHH:MM:SS, local time)")
	activityCmd.Flags().StringP("org", "o", "llvm", "GitHub organization to report on")
	activityCmd.Flags().String("branch", "main", "Branch whose history is searched for commits")
	activityCmd.Flags().String("output", "text", "Output format: text or json")
	activityCmd.Flags().Bool("summary", false, "Append a per-repository summary")
}

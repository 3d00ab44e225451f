package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/go-github/v62/github"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/llvm-gh/internal/config"
	"github.com/naka-gawa/llvm-gh/internal/handlers"
)

var notifyCmd = &cobra.Command{
	Use:   "notify",
	Short: "Processes one saved pull_request webhook payload",
	Long: `Reads a pull_request webhook payload from a file (or standard input with
"-") and sends the notifications the server would send for it. Combine with
DRY_RUN=true or MAIL_TO_OVERRIDE to try out a delivery safely.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
			cfg.Mail.DryRun = true
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := newServerLogger(cmd, cfg.LogLevel, verbose)

		path, _ := cmd.Flags().GetString("event")
		payload, err := readPayload(cmd.InOrStdin(), path)
		if err != nil {
			return err
		}
		var event github.PullRequestEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			return fmt.Errorf("failed to parse pull_request payload: %w", err)
		}

		notifier, err := newNotifier(cfg, logger)
		if err != nil {
			return err
		}
		result, err := notifier.Notify(cmd.Context(), handlers.FromPullRequestEvent(&event))
		if err != nil {
			return err
		}
		for _, to := range result.Sent {
			fmt.Fprintf(cmd.OutOrStdout(), "sent: %s\n", to)
		}
		for _, to := range result.Failed {
			fmt.Fprintf(cmd.OutOrStdout(), "failed: %s\n", to)
		}
		if !result.OK() {
			return errors.New("notification was not delivered")
		}
		return nil
	},
}

func readPayload(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read event file: %w", err)
	}
	return payload, nil
}

func init() {
	rootCmd.AddCommand(notifyCmd)
	notifyCmd.Flags().StringP("event", "e", "", "Path to the webhook payload, or - for standard input (required)")
	notifyCmd.MarkFlagRequired("event")
	notifyCmd.Flags().Bool("dry-run", false, "Log the messages instead of sending them")
}

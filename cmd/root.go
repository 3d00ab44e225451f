// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "llvm-gh",
	Short: "GitHub automation for the LLVM project.",
	Long: `llvm-gh bundles two tools: a webhook server that cross-posts pull
requests to the mailing lists of the sub-projects they touch, and a report of
a user's issues, comments, pull requests and commits over a date range.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}

// newCLILogger discards everything unless --verbose is set, in which case
// debug output goes to standard error.
func newCLILogger(cmd *cobra.Command) *logrus.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(io.Discard)
	if verbose {
		logger.SetOutput(cmd.ErrOrStderr())
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

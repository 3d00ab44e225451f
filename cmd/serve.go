package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/naka-gawa/llvm-gh/internal/config"
	"github.com/naka-gawa/llvm-gh/internal/gateway"
	"github.com/naka-gawa/llvm-gh/internal/handlers"
	"github.com/naka-gawa/llvm-gh/internal/mailer"
	"github.com/naka-gawa/llvm-gh/internal/routing"
	"github.com/naka-gawa/llvm-gh/internal/usecase"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Runs the pull-request mailer webhook server",
	Long: `Listens for GitHub pull_request webhooks and emails each update to the
mailing lists of the sub-projects it touches. Settings come from the
environment (SMTPHOST, SMTPPORT, SMTP_USERNAME, SMTP_PASSWORD, ORIGIN,
GH_TOKEN, ...) and an optional .env file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Port = addr
		}
		verbose, _ := cmd.Flags().GetBool("verbose")
		logger := newServerLogger(cmd, cfg.LogLevel, verbose)

		notifier, err := newNotifier(cfg, logger)
		if err != nil {
			return err
		}

		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		handlers.NewWebhookHandler(notifier, cfg.Server.AllowedOrigins, cfg.Server.WebhookSecret, logger).Register(router)

		server := &http.Server{
			Addr:              listenAddr(cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			logger.Infof("Server starting on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-cmd.Context().Done():
		}

		logger.Info("Shutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shut down server: %w", err)
		}
		logger.Info("Server stopped")
		return nil
	},
}

// newNotifier wires the pull-request mailer from cfg.
func newNotifier(cfg *config.Config, logger logrus.FieldLogger) (*usecase.Notifier, error) {
	table, err := routing.LoadTable(cfg.Mail.RoutesFile)
	if err != nil {
		return nil, err
	}
	githubGateway, err := gateway.NewGitHubGateway(cfg.GitHub.Token, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub gateway: %w", err)
	}
	sender := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
	})
	opts := usecase.NotifierOptions{
		From:     cfg.Mail.From,
		Override: cfg.Mail.Override,
		DryRun:   cfg.Mail.DryRun,
	}
	return usecase.NewNotifier(githubGateway, sender, table, opts, logger), nil
}

// newServerLogger writes JSON lines to standard error at level.
func newServerLogger(cmd *cobra.Command, level string, verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	if verbose {
		lvl = logrus.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// listenAddr accepts either a bare port or a host:port address.
func listenAddr(port string) string {
	for _, r := range port {
		if r < '0' || r > '9' {
			return port
		}
	}
	return ":" + port
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Listen address or port (defaults to $PORT or 8080)")
}

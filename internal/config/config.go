// Package config loads the webhook server's settings from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	SMTP     SMTPConfig
	GitHub   GitHubConfig
	Mail     MailConfig
	LogLevel string
}

type ServerConfig struct {
	Port string
	// AllowedOrigins is empty when any origin is accepted.
	AllowedOrigins []string
	WebhookSecret  string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
}

type GitHubConfig struct {
	Token string
}

type MailConfig struct {
	From       string
	Override   string
	DryRun     bool
	RoutesFile string
}

// Load reads a .env file when one exists, then the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return FromEnv(), nil
}

// FromEnv builds the configuration from environment variables alone.
func FromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			AllowedOrigins: splitList(os.Getenv("ORIGIN")),
			WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTPHOST", "localhost"),
			Port:     getEnvAsInt("SMTPPORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		GitHub: GitHubConfig{
			Token: os.Getenv("GH_TOKEN"),
		},
		Mail: MailConfig{
			From:       os.Getenv("MAIL_FROM"),
			Override:   os.Getenv("MAIL_TO_OVERRIDE"),
			DryRun:     getEnvAsBool("DRY_RUN", false),
			RoutesFile: os.Getenv("ROUTES_FILE"),
		},
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// splitList splits a comma-separated value, dropping blanks.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

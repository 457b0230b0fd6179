package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Environment variable overrides. Secrets are usually supplied this way
// rather than through the config file.
const (
	EnvGithubToken        = "GHCALSYNC_GITHUB_TOKEN"
	EnvWebhookSecret      = "GHCALSYNC_WEBHOOK_SECRET"
	EnvGoogleClientID     = "GHCALSYNC_GOOGLE_CLIENT_ID"
	EnvGoogleClientSecret = "GHCALSYNC_GOOGLE_CLIENT_SECRET"
)

// Config represents the application configuration.
type Config struct {
	// GitHub API token for authentication (can be set via GHCALSYNC_GITHUB_TOKEN)
	GitHubToken string `json:"github_token"`

	// Organizations whose open issues are synced
	Organizations []string `json:"organizations"`

	// Repositories to sync in the format "owner/name"
	Repositories []string `json:"repositories"`

	// Label allowlist; empty means no label restriction
	Labels []string `json:"labels"`

	// Assignee allowlist; empty means no assignee restriction
	Assignees []string `json:"assignees"`

	// Google OAuth client credentials
	GoogleClientID     string `json:"google_client_id"`
	GoogleClientSecret string `json:"google_client_secret"`
	GoogleRedirectURI  string `json:"google_redirect_uri"`

	// Target calendar; defaults to "primary"
	CalendarID string `json:"calendar_id"`

	// Secret for GitHub webhook signature verification. Empty disables
	// verification, which is only acceptable in development.
	WebhookSecret string `json:"webhook_secret"`

	// Path to the SQLite database holding project selections
	DatabasePath string `json:"database_path"`

	// Directory where the Google OAuth token is persisted
	TokensDir string `json:"tokens_dir"`

	// Cron expression driving the scheduled full sync
	SyncSchedule string `json:"sync_schedule"`

	// Address the HTTP server listens on
	ListenAddr string `json:"listen_addr"`
}

// LoadConfig loads the configuration from a JSON file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)
	applyDefaults(&config, filepath.Dir(path))

	return &config, nil
}

func applyEnvOverrides(config *Config) {
	if v := os.Getenv(EnvGithubToken); v != "" {
		config.GitHubToken = v
	}
	if v := os.Getenv(EnvWebhookSecret); v != "" {
		config.WebhookSecret = v
	}
	if v := os.Getenv(EnvGoogleClientID); v != "" {
		config.GoogleClientID = v
	}
	if v := os.Getenv(EnvGoogleClientSecret); v != "" {
		config.GoogleClientSecret = v
	}
}

func applyDefaults(config *Config, configDir string) {
	if config.CalendarID == "" {
		config.CalendarID = "primary"
	}
	if config.SyncSchedule == "" {
		config.SyncSchedule = "0 */6 * * *"
	}
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.DatabasePath == "" {
		config.DatabasePath = "ghcalsync.db"
	}
	if config.TokensDir == "" {
		config.TokensDir = "tokens"
	}
	if !filepath.IsAbs(config.DatabasePath) {
		config.DatabasePath = filepath.Join(configDir, config.DatabasePath)
	}
	if !filepath.IsAbs(config.TokensDir) {
		config.TokensDir = filepath.Join(configDir, config.TokensDir)
	}
}

// Validate checks that the settings required at startup are present.
func (c *Config) Validate() error {
	var missing []string
	if c.GitHubToken == "" {
		missing = append(missing, "github_token")
	}
	if c.GoogleClientID == "" {
		missing = append(missing, "google_client_id")
	}
	if c.GoogleClientSecret == "" {
		missing = append(missing, "google_client_secret")
	}
	if c.GoogleRedirectURI == "" {
		missing = append(missing, "google_redirect_uri")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// SaveConfig saves the configuration to a JSON file.
func SaveConfig(config *Config, path string) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// CreateDefaultConfig creates a default configuration file if it doesn't exist.
func CreateDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, don't overwrite
	}

	config := &Config{
		Organizations: []string{},
		Repositories:  []string{"example/repo"},
		CalendarID:    "primary",
		DatabasePath:  "ghcalsync.db",
		TokensDir:     "tokens",
		SyncSchedule:  "0 */6 * * *",
		ListenAddr:    ":8080",
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return SaveConfig(config, path)
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	DBPath      string `envconfig:"DB_PATH" default:"buffr.db"`

	// HTTP API
	AuthMode       string `envconfig:"API_AUTH_MODE" default:"api-key"` // "api-key" or "none"
	APIKey         string `envconfig:"API_KEY"`
	RateLimitRPS   int    `envconfig:"API_RATE_LIMIT_RPS" default:"20"`
	RateLimitBurst int    `envconfig:"API_RATE_LIMIT_BURST" default:"40"`
	CORSOrigins    string `envconfig:"API_CORS_ORIGINS"`

	// LLM (Anthropic Messages API)
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	LLMModel        string        `envconfig:"LLM_MODEL" default:"claude-sonnet-4-5"`
	LLMMaxTokens    int           `envconfig:"LLM_MAX_TOKENS" default:"2048"`
	LLMTimeout      time.Duration `envconfig:"LLM_TIMEOUT" default:"90s"`

	// GitHub: personal token, or GitHub App credentials
	GitHubToken          string `envconfig:"GITHUB_TOKEN"`
	GitHubAppID          int64  `envconfig:"GITHUB_APP_ID"`
	GitHubInstallationID int64  `envconfig:"GITHUB_INSTALLATION_ID"`
	GitHubPrivateKeyPath string `envconfig:"GITHUB_PRIVATE_KEY_PATH"`

	// Notion
	NotionToken      string `envconfig:"NOTION_TOKEN"`
	NotionDatabaseID string `envconfig:"NOTION_DATABASE_ID"`

	// Jira (basic auth with API token)
	JiraBaseURL    string `envconfig:"JIRA_BASE_URL"`
	JiraAPIEmail   string `envconfig:"JIRA_API_EMAIL"`
	JiraAPIToken   string `envconfig:"JIRA_API_TOKEN"`
	JiraProjectKey string `envconfig:"JIRA_PROJECT_KEY"`

	// Slack incoming webhook for session recaps (optional)
	SlackWebhookURL string `envconfig:"SLACK_WEBHOOK_URL"`

	// Tool execution
	ToolTimeout       time.Duration `envconfig:"TOOL_TIMEOUT" default:"20s"`
	ToolConcurrency   int           `envconfig:"TOOL_CONCURRENCY" default:"4"`
	WorkItemCacheTTL  time.Duration `envconfig:"WORK_ITEM_CACHE_TTL" default:"60s"`
	WorkItemCacheSize int           `envconfig:"WORK_ITEM_CACHE_SIZE" default:"256"`
}

// LLMEnabled returns true if an LLM API key is configured.
func (c *Config) LLMEnabled() bool {
	return c.AnthropicAPIKey != ""
}

// GitHubAppEnabled returns true if GitHub App credentials are configured.
func (c *Config) GitHubAppEnabled() bool {
	return c.GitHubAppID > 0 && c.GitHubInstallationID > 0 && c.GitHubPrivateKeyPath != ""
}

// JiraEnabled returns true if Jira base URL and credentials are configured.
func (c *Config) JiraEnabled() bool {
	return c.JiraBaseURL != "" && c.JiraAPIEmail != "" && c.JiraAPIToken != ""
}

// SlackEnabled returns true if a Slack webhook is configured.
func (c *Config) SlackEnabled() bool {
	return c.SlackWebhookURL != ""
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateTools()
}

func (c *Config) validateAuth() error {
	switch c.AuthMode {
	case "none":
	case "api-key":
		if c.APIKey == "" {
			return fmt.Errorf("API_KEY is required when API_AUTH_MODE=api-key")
		}
	default:
		return fmt.Errorf("invalid API_AUTH_MODE %q (want api-key or none)", c.AuthMode)
	}
	return nil
}

func (c *Config) validateTools() error {
	if c.ToolConcurrency < 1 {
		return fmt.Errorf("TOOL_CONCURRENCY must be >= 1")
	}
	if c.WorkItemCacheSize < 1 {
		return fmt.Errorf("WORK_ITEM_CACHE_SIZE must be >= 1")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	return LoadWithPrefix("")
}

// LoadWithPrefix reads configuration with a prefix. Unprefixed variables are
// still honored as a fallback.
func LoadWithPrefix(prefix string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// LoadOffline reads configuration for commands that do not serve the API.
// Auth settings are not checked.
func LoadOffline() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validateTools(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

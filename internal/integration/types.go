// Package integration stores per-service credentials and user-defined HTTP
// integrations, and resolves the credentials adapters run with.
package integration

import (
	"strings"
	"time"
)

// Services with first-class adapters.
const (
	ServiceGitHub = "github"
	ServiceNotion = "notion"
	ServiceJira   = "jira"
)

// Services lists the configurable services.
var Services = []string{ServiceGitHub, ServiceNotion, ServiceJira}

// ValidService reports whether s names a configurable service.
func ValidService(s string) bool {
	for _, known := range Services {
		if s == known {
			return true
		}
	}
	return false
}

// Credential sources reported in masked views.
const (
	SourceStored = "stored"
	SourceEnv    = "env"
	SourceNone   = "none"
)

// ToolConfig holds the credentials for one service.
// DefaultRef is the default Notion database id or Jira project key.
type ToolConfig struct {
	Service    string    `json:"service"`
	Token      string    `json:"token,omitempty"`
	BaseURL    string    `json:"baseUrl,omitempty"`
	Email      string    `json:"email,omitempty"`
	DefaultRef string    `json:"defaultRef,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Configured reports whether the config carries enough to call the service.
func (c ToolConfig) Configured() bool {
	switch c.Service {
	case ServiceJira:
		return c.Token != "" && c.BaseURL != "" && c.Email != ""
	default:
		return c.Token != ""
	}
}

// ConfigInput is the body of a tool config update. An empty Token keeps the
// stored one.
type ConfigInput struct {
	Token      string `json:"token"`
	BaseURL    string `json:"baseUrl"`
	Email      string `json:"email"`
	DefaultRef string `json:"defaultRef"`
}

// ConfigView is the API shape of a ToolConfig. It never carries the secret.
type ConfigView struct {
	Service     string     `json:"service"`
	Configured  bool       `json:"configured"`
	Source      string     `json:"source"`
	TokenMasked string     `json:"tokenMasked,omitempty"`
	BaseURL     string     `json:"baseUrl,omitempty"`
	Email       string     `json:"email,omitempty"`
	DefaultRef  string     `json:"defaultRef,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

// CustomIntegration is a user-defined HTTP endpoint exposed as a tool.
type CustomIntegration struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	BaseURL     string            `json:"baseUrl"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ToolName is the registry name of the integration's tool.
func (c *CustomIntegration) ToolName() string { return ToolName(c.Name) }

// ToolName returns the tool name for a custom integration name.
func ToolName(name string) string { return "custom_" + name }

// Masked returns a copy with header values hidden.
func (c *CustomIntegration) Masked() *CustomIntegration {
	cp := *c
	if len(c.Headers) > 0 {
		cp.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			cp.Headers[k] = Mask(v)
		}
	}
	return &cp
}

// IntegrationInput is the body for creating or replacing a custom integration.
type IntegrationInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	BaseURL     string            `json:"baseUrl"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
}

// Mask hides all but the last four characters of a secret.
func Mask(secret string) string {
	if secret == "" {
		return ""
	}
	r := []rune(secret)
	if len(r) <= 8 {
		return strings.Repeat("•", 8)
	}
	return strings.Repeat("•", 8) + string(r[len(r)-4:])
}

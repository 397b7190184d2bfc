package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/retry"
	"github.com/p-blackswan/buffr/internal/tool"
)

// CredentialSource resolves the current Jira credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, service string) (integration.ToolConfig, error)
}

// Service builds clients from the current credentials on every call, so
// config changes apply without a restart.
type Service struct {
	creds      CredentialSource
	httpClient HTTPClient
	retry      *retry.Config
	logger     zerolog.Logger
}

// NewService creates a Jira service.
func NewService(creds CredentialSource, logger zerolog.Logger) *Service {
	return &Service{creds: creds, logger: logger}
}

// SetHTTPClient sets the HTTP client used by every built client (for testing).
func (s *Service) SetHTTPClient(hc HTTPClient) { s.httpClient = hc }

// SetRetry overrides the retry policy of built clients.
func (s *Service) SetRetry(cfg retry.Config) { s.retry = &cfg }

// Client returns a client for the configured instance and the config it used.
func (s *Service) Client(ctx context.Context) (*Client, integration.ToolConfig, error) {
	cfg, err := s.creds.Credentials(ctx, integration.ServiceJira)
	if err != nil {
		return nil, cfg, err
	}
	var auth Authenticator = &BearerAuth{Token: cfg.Token}
	if cfg.Email != "" {
		auth = &BasicAuth{Email: cfg.Email, APIToken: cfg.Token}
	}
	c := NewClient(cfg.BaseURL, auth, s.logger)
	if s.httpClient != nil {
		c.SetHTTPClient(s.httpClient)
	}
	if s.retry != nil {
		c.SetRetry(*s.retry)
	}
	return c, cfg, nil
}

// Summary is the compact issue shape returned by tools.
type Summary struct {
	Key         string   `json:"key"`
	Title       string   `json:"title"`
	Status      string   `json:"status,omitempty"`
	Category    string   `json:"statusCategory,omitempty"`
	Type        string   `json:"type,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Assignee    string   `json:"assignee,omitempty"`
	Labels      []string `json:"labels"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
}

// Summarize converts an issue to its compact form.
func Summarize(c *Client, is Issue) Summary {
	s := Summary{
		Key:    is.Key,
		Title:  is.Fields.Summary,
		Labels: is.Fields.Labels,
		URL:    c.BrowseURL(is.Key),
	}
	if s.Labels == nil {
		s.Labels = []string{}
	}
	if st := is.Fields.Status; st != nil {
		s.Status = st.Name
		if st.StatusCategory != nil {
			s.Category = st.StatusCategory.Key
		}
	}
	if is.Fields.IssueType != nil {
		s.Type = is.Fields.IssueType.Name
	}
	if is.Fields.Priority != nil {
		s.Priority = is.Fields.Priority.Name
	}
	if is.Fields.Assignee != nil {
		s.Assignee = is.Fields.Assignee.DisplayName
	}
	return s
}

func projectKey(ctx context.Context, p tool.Params, cfg integration.ToolConfig) (string, error) {
	key := strings.ToUpper(p.String("project", ""))
	if key == "" {
		key = strings.ToUpper(tool.ScopeFrom(ctx).JiraProjectKey)
	}
	if key == "" {
		key = strings.ToUpper(cfg.DefaultRef)
	}
	if key == "" {
		return "", perrors.Invalid("project is required (no Jira project linked)")
	}
	if !ValidProjectKey(key) {
		return "", perrors.Invalid("project %q is not a valid Jira key", key)
	}
	return key, nil
}

// IssuesTool searches a project's issues.
type IssuesTool struct{ svc *Service }

// NewIssuesTool creates the jira_issues tool.
func NewIssuesTool(svc *Service) *IssuesTool { return &IssuesTool{svc: svc} }

func (t *IssuesTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "jira_issues",
		Description: "List Jira issues of a project. Defaults to the project's linked Jira key and unresolved issues.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"project": "Jira project key, e.g. OPS",
			"status":  "open (default), done or all",
			"jql":     "Raw JQL; overrides project and status",
			"limit":   "Maximum issues to return (1-50, default 20)",
		}),
	}
}

func (t *IssuesTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("jira_issues: %v", err)
	}
	client, cfg, err := t.svc.Client(ctx)
	if err != nil {
		return "", err
	}

	jql := p.String("jql", "")
	if jql == "" {
		key, err := projectKey(ctx, p, cfg)
		if err != nil {
			return "", err
		}
		jql = StatusFilterJQL(key, strings.ToLower(p.String("status", "open")))
	}

	res, err := client.SearchIssues(ctx, jql, p.Int("limit", 20, 50))
	if err != nil {
		return "", err
	}
	out := make([]Summary, 0, len(res.Issues))
	for _, is := range res.Issues {
		out = append(out, Summarize(client, is))
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("jira_issues: encode: %w", err)
	}
	return string(b), nil
}

// IssueTool fetches one issue with its description.
type IssueTool struct{ svc *Service }

// NewIssueTool creates the jira_issue tool.
func NewIssueTool(svc *Service) *IssueTool { return &IssueTool{svc: svc} }

func (t *IssueTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "jira_issue",
		Description: "Fetch one Jira issue by key, including its description as plain text.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"key": "Issue key, e.g. OPS-42",
		}, "key"),
	}
}

func (t *IssueTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("jira_issue: %v", err)
	}
	key := strings.ToUpper(p.String("key", p.String("value", "")))
	if !ValidIssueKey(key) {
		return "", perrors.Invalid("jira_issue: key %q is not a valid issue key", key)
	}
	client, _, err := t.svc.Client(ctx)
	if err != nil {
		return "", err
	}
	is, err := client.GetIssue(ctx, key)
	if err != nil {
		return "", err
	}
	s := Summarize(client, *is)
	s.Description = PlainText(is.Fields.Description)
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("jira_issue: encode: %w", err)
	}
	return string(b), nil
}

package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/retry"
	"github.com/p-blackswan/buffr/internal/tool"
)

// CredentialSource resolves the current Notion credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, service string) (integration.ToolConfig, error)
}

// Service builds a client from the current credentials on every call.
type Service struct {
	creds      CredentialSource
	httpClient *http.Client
	retry      *retry.Config
	logger     zerolog.Logger
}

// NewService creates a Notion service.
func NewService(creds CredentialSource, logger zerolog.Logger) *Service {
	return &Service{creds: creds, logger: logger}
}

// SetHTTPClient sets the HTTP client of built clients (for testing).
func (s *Service) SetHTTPClient(hc *http.Client) { s.httpClient = hc }

// SetRetry overrides the retry policy of built clients.
func (s *Service) SetRetry(cfg retry.Config) { s.retry = &cfg }

// Client returns a client and the config it was built from.
func (s *Service) Client(ctx context.Context) (*Client, integration.ToolConfig, error) {
	cfg, err := s.creds.Credentials(ctx, integration.ServiceNotion)
	if err != nil {
		return nil, cfg, err
	}
	c := NewClient(cfg.Token, cfg.BaseURL, s.logger)
	if s.httpClient != nil {
		c.SetHTTPClient(s.httpClient)
	}
	if s.retry != nil {
		c.SetRetry(*s.retry)
	}
	return c, cfg, nil
}

// Tasks returns up to limit pages of a database, most recently edited
// first. Unless all is set, archived and finished pages are skipped.
func (s *Service) Tasks(ctx context.Context, databaseID string, all bool, limit int) ([]Object, error) {
	c, _, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	params := QueryParams{
		Sorts:    []Sort{{Timestamp: "last_edited_time", Direction: "descending"}},
		PageSize: min(limit*2, 100),
	}
	out := make([]Object, 0, limit)
	for len(out) < limit {
		res, err := c.QueryDatabase(ctx, databaseID, params)
		if err != nil {
			return nil, fmt.Errorf("querying database %s: %w", databaseID, err)
		}
		for _, page := range res.Results {
			if !all && (page.Archived || IsDone(page.Status())) {
				continue
			}
			out = append(out, page)
			if len(out) == limit {
				break
			}
		}
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		params.StartCursor = res.NextCursor
	}
	return out, nil
}

// TaskSummary is the compact page shape returned by tools.
type TaskSummary struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Status     string   `json:"status,omitempty"`
	Labels     []string `json:"labels"`
	URL        string   `json:"url"`
	LastEdited string   `json:"lastEdited,omitempty"`
}

// Summarize converts a page to its compact form.
func Summarize(o Object) TaskSummary {
	return TaskSummary{
		ID:         o.ID,
		Title:      o.GetTitle(),
		Status:     o.Status(),
		Labels:     o.Labels(),
		URL:        o.URL,
		LastEdited: o.LastEditedTime,
	}
}

func databaseParam(ctx context.Context, p tool.Params, cfg integration.ToolConfig) (string, error) {
	id := p.String("database", p.String("value", ""))
	if id == "" {
		id = tool.ScopeFrom(ctx).NotionDatabaseID
	}
	if id == "" {
		id = cfg.DefaultRef
	}
	if id == "" {
		return "", perrors.Invalid("database is required (no Notion database linked)")
	}
	if !ValidID(id) {
		return "", perrors.Invalid("database %q is not a valid Notion id", id)
	}
	return NormalizeID(id), nil
}

// TasksTool lists pages of a task database.
type TasksTool struct{ svc *Service }

// NewTasksTool creates the notion_tasks tool.
func NewTasksTool(svc *Service) *TasksTool { return &TasksTool{svc: svc} }

func (t *TasksTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "notion_tasks",
		Description: "List pages of a Notion task database, most recently edited first. Defaults to the project's linked database and unfinished tasks.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"database": "Notion database id",
			"status":   "open (default) or all",
			"limit":    "Maximum pages to return (1-100, default 20)",
		}),
	}
}

func (t *TasksTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("notion_tasks: %v", err)
	}
	_, cfg, err := t.svc.Client(ctx)
	if err != nil {
		return "", err
	}
	db, err := databaseParam(ctx, p, cfg)
	if err != nil {
		return "", err
	}
	var all bool
	switch status := strings.ToLower(p.String("status", "open")); status {
	case "open":
	case "all":
		all = true
	default:
		return "", perrors.Invalid("status %q must be open or all", status)
	}

	pages, err := t.svc.Tasks(ctx, db, all, p.Int("limit", 20, 100))
	if err != nil {
		return "", err
	}
	out := make([]TaskSummary, 0, len(pages))
	for _, page := range pages {
		out = append(out, Summarize(page))
	}
	return encode("notion_tasks", out)
}

// SearchTool searches the workspace.
type SearchTool struct{ svc *Service }

// NewSearchTool creates the notion_search tool.
func NewSearchTool(svc *Service) *SearchTool { return &SearchTool{svc: svc} }

func (t *SearchTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "notion_search",
		Description: "Search Notion pages shared with the integration by title.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"query": "Text to search for",
			"limit": "Maximum results (1-50, default 10)",
		}, "query"),
	}
}

func (t *SearchTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("notion_search: %v", err)
	}
	query := p.String("query", p.String("value", ""))
	if query == "" {
		return "", perrors.Invalid("notion_search: query is required")
	}
	c, _, err := t.svc.Client(ctx)
	if err != nil {
		return "", err
	}
	res, err := c.Search(ctx, SearchParams{
		Query:    query,
		Filter:   &SearchFilter{Property: "object", Value: "page"},
		Sort:     &SearchSort{Direction: "descending", Timestamp: "last_edited_time"},
		PageSize: p.Int("limit", 10, 50),
	})
	if err != nil {
		return "", err
	}
	out := make([]TaskSummary, 0, len(res.Results))
	for _, o := range res.Results {
		out = append(out, Summarize(o))
	}
	return encode("notion_search", out)
}

func encode(name string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: encode: %w", name, err)
	}
	return string(b), nil
}

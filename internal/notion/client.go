// Package notion is a minimal Notion API client plus the notion_* tools.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/retry"
)

const (
	defaultBaseURL = "https://api.notion.com/v1"
	notionVersion  = "2022-06-28"
)

// Client is a Notion API client
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     zerolog.Logger
}

// NewClient creates a client with an integration token. An empty baseURL
// means the public API.
func NewClient(token, baseURL string, logger zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		token:      token,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "notion").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc *http.Client) { c.httpClient = hc }

// SetRetry overrides the retry policy.
func (c *Client) SetRetry(cfg retry.Config) { c.retry = cfg }

// ErrorResponse is a Notion API error
type ErrorResponse struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// request makes an authenticated request and decodes the response into out
func (c *Client) request(ctx context.Context, method, path string, body, out any) error {
	var data []byte
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var rdr io.Reader
		if data != nil {
			rdr = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Notion-Version", notionVersion)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w: %v", perrors.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			msg := strings.TrimSpace(string(respBody))
			var errResp ErrorResponse
			if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
				msg = errResp.Code + ": " + errResp.Message
			}
			c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("notion request failed")
			return perrors.NewAPIError("notion", resp.StatusCode, msg)
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	})
}

// SearchParams for the search endpoint
type SearchParams struct {
	Query       string        `json:"query,omitempty"`
	Filter      *SearchFilter `json:"filter,omitempty"`
	Sort        *SearchSort   `json:"sort,omitempty"`
	StartCursor string        `json:"start_cursor,omitempty"`
	PageSize    int           `json:"page_size,omitempty"`
}

type SearchFilter struct {
	Property string `json:"property"`
	Value    string `json:"value"` // "page" or "database"
}

type SearchSort struct {
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

// QueryParams for querying a database
type QueryParams struct {
	Filter      any    `json:"filter,omitempty"`
	Sorts       []Sort `json:"sorts,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
	PageSize    int    `json:"page_size,omitempty"`
}

type Sort struct {
	Property  string `json:"property,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Direction string `json:"direction"`
}

// ListResult is a page of search or query results.
type ListResult struct {
	Object     string   `json:"object"`
	Results    []Object `json:"results"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// Search searches pages and databases shared with the integration.
func (c *Client) Search(ctx context.Context, params SearchParams) (*ListResult, error) {
	if params.PageSize == 0 {
		params.PageSize = 20
	}
	var result ListResult
	if err := c.request(ctx, http.MethodPost, "/search", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// QueryDatabase queries a database with optional filter and sort.
func (c *Client) QueryDatabase(ctx context.Context, databaseID string, params QueryParams) (*ListResult, error) {
	if !ValidID(databaseID) {
		return nil, perrors.Invalid("notion database id %q is not valid", databaseID)
	}
	if params.PageSize == 0 {
		params.PageSize = 100
	}
	var result ListResult
	if err := c.request(ctx, http.MethodPost, "/databases/"+NormalizeID(databaseID)+"/query", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPage retrieves a page by ID.
func (c *Client) GetPage(ctx context.Context, pageID string) (*Object, error) {
	if !ValidID(pageID) {
		return nil, perrors.Invalid("notion page id %q is not valid", pageID)
	}
	var page Object
	if err := c.request(ctx, http.MethodGet, "/pages/"+NormalizeID(pageID), nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

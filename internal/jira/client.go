// Package jira is a small Jira Cloud REST client plus the jira_* tools.
package jira

import (
	"bytes"
	"context"
	"encoding/base64"
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

// HTTPClient abstracts HTTP calls for testing.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Authenticator applies authentication to requests.
type Authenticator interface {
	Apply(req *http.Request) error
}

// BasicAuth authenticates with account email + API token (Jira Cloud).
type BasicAuth struct {
	Email    string
	APIToken string
}

func (b *BasicAuth) Apply(req *http.Request) error {
	cred := base64.StdEncoding.EncodeToString([]byte(b.Email + ":" + b.APIToken))
	req.Header.Set("Authorization", "Basic "+cred)
	return nil
}

// BearerAuth authenticates with a personal access token (Jira Data Center).
type BearerAuth struct {
	Token string
}

func (b *BearerAuth) Apply(req *http.Request) error {
	if b.Token == "" {
		return fmt.Errorf("no access token available")
	}
	req.Header.Set("Authorization", "Bearer "+b.Token)
	return nil
}

// Client wraps the Jira REST API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	auth       Authenticator
	retry      retry.Config
	logger     zerolog.Logger
}

// NewClient creates a new Jira API client.
func NewClient(baseURL string, auth Authenticator, logger zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		auth:       auth,
		retry:      retry.DefaultConfig(),
		logger:     logger.With().Str("component", "jira").Logger(),
	}
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(hc HTTPClient) {
	c.httpClient = hc
}

// SetRetry overrides the retry policy.
func (c *Client) SetRetry(cfg retry.Config) {
	c.retry = cfg
}

// BaseURL returns the base URL of the Jira instance.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BrowseURL returns the web URL of an issue.
func (c *Client) BrowseURL(key string) string {
	return c.baseURL + "/browse/" + key
}

// do executes an authenticated API request with retries and decodes the
// JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var rdr io.Reader
		if body != nil {
			rdr = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		if err := c.auth.Apply(req); err != nil {
			return fmt.Errorf("applying auth: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request: %w: %v", perrors.ErrUnavailable, err)
		}
		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			c.logger.Debug().Int("status", resp.StatusCode).Str("path", path).Msg("jira request failed")
			return perrors.NewAPIError("jira", resp.StatusCode, strings.TrimSpace(string(respBody)))
		}
		return decodeResponse(resp, out)
	})
}

// decodeResponse reads and decodes a JSON response.
func decodeResponse(resp *http.Response, v interface{}) error {
	defer resp.Body.Close()
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

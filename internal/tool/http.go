package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
)

// HTTPSpec describes an outbound HTTP endpoint exposed as a tool.
type HTTPSpec struct {
	Name        string
	Description string
	BaseURL     string
	Method      string
	Headers     map[string]string
}

// HTTPTool calls a user-configured HTTP endpoint.
//
// Input keys "path" and "body" are reserved: path is appended to the base
// URL and body is sent verbatim. Remaining params become query parameters
// for GET/DELETE and a JSON object body for other methods.
type HTTPTool struct {
	spec    HTTPSpec
	client  *http.Client
	maxBody int64
	logger  zerolog.Logger
}

// NewHTTPTool creates an HTTPTool. A nil client gets a 30s default.
func NewHTTPTool(spec HTTPSpec, client *http.Client, logger zerolog.Logger) *HTTPTool {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	spec.Method = strings.ToUpper(strings.TrimSpace(spec.Method))
	if spec.Method == "" {
		spec.Method = http.MethodGet
	}
	return &HTTPTool{
		spec:    spec,
		client:  client,
		maxBody: 64 * 1024,
		logger:  logger.With().Str("component", "http_tool").Str("tool", spec.Name).Logger(),
	}
}

func (t *HTTPTool) Schema() Schema {
	desc := t.spec.Description
	if desc == "" {
		desc = fmt.Sprintf("Call %s %s", t.spec.Method, t.spec.BaseURL)
	}
	return Schema{
		Name:        t.spec.Name,
		Description: desc,
		InputSchema: MustSchema(map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]string{
					"type":        "string",
					"description": "Optional path appended to the base URL",
				},
				"body": map[string]string{
					"type":        "string",
					"description": "Optional raw request body",
				},
			},
			"additionalProperties": map[string]string{"type": "string"},
		}),
	}
}

func (t *HTTPTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	params, err := DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("%s: %v", t.spec.Name, err)
	}

	target, err := t.buildURL(params.String("path", ""))
	if err != nil {
		return "", err
	}

	rest := make(map[string]string)
	for k := range params {
		if k == "path" || k == "body" {
			continue
		}
		rest[k] = params.String(k, "")
	}

	var body io.Reader
	contentType := ""
	switch {
	case params.String("body", "") != "":
		body = strings.NewReader(params.String("body", ""))
	case t.spec.Method == http.MethodGet || t.spec.Method == http.MethodDelete:
		q := target.Query()
		keys := make([]string, 0, len(rest))
		for k := range rest {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, rest[k])
		}
		target.RawQuery = q.Encode()
	case len(rest) > 0:
		b, _ := json.Marshal(rest)
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, t.spec.Method, target.String(), body)
	if err != nil {
		return "", fmt.Errorf("%s: create request: %w", t.spec.Name, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range t.spec.Headers {
		req.Header.Set(k, v)
	}

	t.logger.Debug().Str("method", t.spec.Method).Str("url", target.Redacted()).Msg("calling custom integration")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %v", t.spec.Name, perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody))
	if err != nil {
		return "", fmt.Errorf("%s: read body: %w", t.spec.Name, err)
	}
	if resp.StatusCode >= 400 {
		return "", perrors.NewAPIError(t.spec.Name, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return string(raw), nil
}

func (t *HTTPTool) buildURL(path string) (*url.URL, error) {
	base := t.spec.BaseURL
	if path != "" {
		base = strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, perrors.Invalid("%s: bad url %q", t.spec.Name, base)
	}
	return u, nil
}

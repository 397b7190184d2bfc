package llm

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
	anthropicAPIBase    = "https://api.anthropic.com/v1"
	anthropicAPIVersion = "2023-06-01"
	defaultMaxTokens    = 2048
	defaultModel        = "claude-sonnet-4-5"
)

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	client    *http.Client
	retry     retry.Config
	logger    zerolog.Logger
}

// AnthropicOption configures the provider.
type AnthropicOption func(*AnthropicProvider)

func WithModel(model string) AnthropicOption {
	return func(p *AnthropicProvider) {
		if model != "" {
			p.model = model
		}
	}
}

func WithMaxTokens(n int) AnthropicOption {
	return func(p *AnthropicProvider) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

func WithHTTPClient(c *http.Client) AnthropicOption {
	return func(p *AnthropicProvider) { p.client = c }
}

func WithBaseURL(u string) AnthropicOption {
	return func(p *AnthropicProvider) { p.baseURL = strings.TrimRight(u, "/") }
}

func WithRetry(cfg retry.Config) AnthropicOption {
	return func(p *AnthropicProvider) { p.retry = cfg }
}

func WithLogger(l zerolog.Logger) AnthropicOption {
	return func(p *AnthropicProvider) { p.logger = l.With().Str("component", "llm").Logger() }
}

// NewAnthropicProvider constructs a new Anthropic provider.
func NewAnthropicProvider(apiKey string, opts ...AnthropicOption) *AnthropicProvider {
	p := &AnthropicProvider{
		apiKey:    apiKey,
		baseURL:   anthropicAPIBase,
		model:     defaultModel,
		maxTokens: defaultMaxTokens,
		client:    &http.Client{Timeout: 120 * time.Second},
		retry:     retry.DefaultConfig(),
		logger:    zerolog.Nop(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *AnthropicProvider) ModelID() string { return p.model }

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Model      string                  `json:"model"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *anthropicError `json:"error,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (p *AnthropicProvider) buildRequest(req CompletionRequest) anthropicRequest {
	ar := anthropicRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      req.SystemPrompt,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	if req.Model != "" {
		ar.Model = req.Model
	}
	if req.MaxTokens > 0 {
		ar.MaxTokens = req.MaxTokens
	}
	return ar
}

// Complete sends a blocking completion request, retrying transient failures.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("anthropic: %w", perrors.ErrNotConfigured)
	}
	if len(req.Messages) == 0 {
		return nil, perrors.Invalid("completion request has no messages")
	}

	ar := p.buildRequest(req)
	body, err := json.Marshal(ar)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	cfg := p.retry
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		p.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying completion")
	}

	var out *CompletionResponse
	err = retry.Do(ctx, cfg, func(ctx context.Context) error {
		var callErr error
		out, callErr = p.do(ctx, body)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug().
		Str("model", out.Model).
		Str("stop_reason", out.StopReason).
		Int("in_tokens", out.InputTokens).
		Int("out_tokens", out.OutputTokens).
		Msg("anthropic complete")
	return out, nil
}

func (p *AnthropicProvider) do(ctx context.Context, body []byte) (*CompletionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("anthropic: %w: %v", perrors.ErrTimeout, err)
		}
		return nil, fmt.Errorf("anthropic http: %w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var parsed anthropicResponse
	decodeErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 400 {
		msg := strings.TrimSpace(string(raw))
		if decodeErr == nil && parsed.Error != nil {
			msg = parsed.Error.Type + ": " + parsed.Error.Message
		}
		return nil, perrors.NewAPIError("anthropic", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("unmarshal response: %w", decodeErr)
	}
	if parsed.Error != nil {
		return nil, perrors.NewAPIError("anthropic", resp.StatusCode, parsed.Error.Type+": "+parsed.Error.Message)
	}

	out := &CompletionResponse{
		StopReason:   parsed.StopReason,
		Model:        parsed.Model,
		InputTokens:  parsed.Usage.InputTokens,
		OutputTokens: parsed.Usage.OutputTokens,
	}
	var sb strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	out.Text = sb.String()
	return out, nil
}

// Package chain runs a resolved prompt through the LLM and parses the
// structured answer.
package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/llm"
)

// SystemPrompt asks the model for a single JSON object.
const SystemPrompt = `You are buffr, an assistant for a developer picking up their own project work.
Answer the user's prompt helpfully and concisely.

Respond with exactly one JSON object and nothing else:
{"text": "<your answer in Markdown>", "suggestedActions": [{"label": "<short imperative>", "kind": "prompt|session|link|task", "value": "<prompt id, session goal, URL or task text>"}]}

Rules:
- "text" is required and holds the whole answer.
- "suggestedActions" is optional; include at most 5 concrete follow-ups.
- "kind" is "prompt" to run another prompt, "session" to log a work session, "link" to open a URL, "task" for a to-do.
- Do not wrap the JSON in code fences.`

// MaxActions caps the suggested actions of an answer.
const MaxActions = 5

// Action kinds.
const (
	KindPrompt  = "prompt"
	KindSession = "session"
	KindLink    = "link"
	KindTask    = "task"
)

// Action is a follow-up the model proposes.
type Action struct {
	Label string `json:"label"`
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
}

// Output is a parsed completion.
type Output struct {
	Text             string   `json:"text"`
	SuggestedActions []Action `json:"suggestedActions"`
	Fallback         bool     `json:"fallback"`
	Model            string   `json:"model,omitempty"`
	InputTokens      int      `json:"inputTokens,omitempty"`
	OutputTokens     int      `json:"outputTokens,omitempty"`
	Truncated        bool     `json:"truncated,omitempty"`
}

// Recorder receives LLM usage and run outcomes.
type Recorder interface {
	RecordLLM(model, status string, inputTokens, outputTokens int)
	RecordPromptRun(outcome string)
}

// Chain wraps a provider with the fixed system prompt.
type Chain struct {
	provider  llm.Provider
	maxTokens int
	recorder  Recorder
	logger    zerolog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithMaxTokens caps completion length.
func WithMaxTokens(n int) Option { return func(c *Chain) { c.maxTokens = n } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option { return func(c *Chain) { c.recorder = r } }

// New creates a Chain. provider may be nil when no LLM is configured.
func New(provider llm.Provider, logger zerolog.Logger, opts ...Option) *Chain {
	c := &Chain{
		provider: provider,
		logger:   logger.With().Str("component", "chain").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run sends prompt to the model and parses its answer.
func (c *Chain) Run(ctx context.Context, prompt string) (*Output, error) {
	if c.provider == nil {
		c.outcome("not_configured")
		return nil, fmt.Errorf("%w: no LLM API key", perrors.ErrNotConfigured)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, perrors.Invalid("prompt resolved to empty text")
	}

	req := llm.UserPrompt(SystemPrompt, prompt)
	req.MaxTokens = c.maxTokens
	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		status := "error"
		if errors.Is(err, perrors.ErrNotConfigured) {
			status = "not_configured"
		}
		c.usage(c.provider.ModelID(), status, 0, 0)
		c.outcome(status)
		return nil, fmt.Errorf("completing prompt: %w", err)
	}

	model := resp.Model
	if model == "" {
		model = c.provider.ModelID()
	}
	c.usage(model, "ok", resp.InputTokens, resp.OutputTokens)

	text, actions, fallback := Parse(resp.Text)
	out := &Output{
		Text:             text,
		SuggestedActions: actions,
		Fallback:         fallback,
		Model:            model,
		InputTokens:      resp.InputTokens,
		OutputTokens:     resp.OutputTokens,
		Truncated:        resp.StopReason == llm.StopReasonMaxTokens,
	}
	switch {
	case out.Truncated:
		c.outcome("truncated")
		c.logger.Warn().
			Str("model", model).
			Int("max_tokens", c.maxTokens).
			Int("output_tokens", resp.OutputTokens).
			Bool("fallback", fallback).
			Msg("completion hit the token limit")
	case fallback:
		c.outcome("fallback")
		c.logger.Debug().Str("model", model).Msg("completion was not JSON; using raw text")
	default:
		c.outcome("ok")
	}
	return out, nil
}

func (c *Chain) usage(model, status string, in, out int) {
	if c.recorder != nil {
		c.recorder.RecordLLM(model, status, in, out)
	}
}

func (c *Chain) outcome(o string) {
	if c.recorder != nil {
		c.recorder.RecordPromptRun(o)
	}
}

type answer struct {
	Text             string   `json:"text"`
	SuggestedActions []Action `json:"suggestedActions"`
}

// Parse extracts text and actions from a completion. When the completion
// holds no decodable object with a non-empty text, the whole trimmed
// completion is the text and fallback is true.
//
// Fences inside the answer text belong to the Markdown, so the raw
// completion is tried before fence stripping unless it opens with a fence.
func Parse(raw string) (text string, actions []Action, fallback bool) {
	trimmed := strings.TrimSpace(raw)
	candidates := []string{trimmed, stripFences(trimmed)}
	if strings.HasPrefix(trimmed, "```") {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, c := range candidates {
		if a, ok := decode(c); ok {
			return strings.TrimSpace(a.Text), normalizeActions(a.SuggestedActions), false
		}
	}
	return trimmed, []Action{}, true
}

func decode(s string) (answer, bool) {
	var a answer
	body := outermostObject(s)
	if body == "" || json.Unmarshal([]byte(body), &a) != nil || strings.TrimSpace(a.Text) == "" {
		return answer{}, false
	}
	return a, true
}

func stripFences(s string) string {
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	inner := s[start+3:]
	if end := strings.LastIndex(inner, "```"); end >= 0 {
		inner = inner[:end]
	}
	// drop a language tag such as json
	if nl := strings.Index(inner, "\n"); nl >= 0 && !strings.HasPrefix(strings.TrimSpace(inner[:nl]), "{") {
		inner = inner[nl+1:]
	}
	return strings.TrimSpace(inner)
}

func outermostObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func validKind(k string) bool {
	switch k {
	case KindPrompt, KindSession, KindLink, KindTask:
		return true
	}
	return false
}

// normalizeActions trims actions, drops unlabelled or unknown kinds,
// dedupes by label and caps the list.
func normalizeActions(in []Action) []Action {
	out := make([]Action, 0, min(len(in), MaxActions))
	seen := make(map[string]bool)
	for _, a := range in {
		a.Label = strings.TrimSpace(a.Label)
		a.Kind = strings.ToLower(strings.TrimSpace(a.Kind))
		a.Value = strings.TrimSpace(a.Value)
		key := strings.ToLower(a.Label)
		if a.Label == "" || !validKind(a.Kind) || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
		if len(out) == MaxActions {
			break
		}
	}
	return out
}

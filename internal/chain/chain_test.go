package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/llm"
)

type fakeProvider struct {
	text string
	stop string
	err  error
	got  llm.CompletionRequest
}

func (f *fakeProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Text: f.text, StopReason: f.stop, InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeProvider) ModelID() string { return "fake-model" }

type fakeRecorder struct {
	llm  []string
	runs []string
}

func (r *fakeRecorder) RecordLLM(model, status string, in, out int) {
	r.llm = append(r.llm, fmt.Sprintf("%s/%s/%d/%d", model, status, in, out))
}

func (r *fakeRecorder) RecordPromptRun(outcome string) { r.runs = append(r.runs, outcome) }

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantText     string
		wantActions  int
		wantFallback bool
	}{
		{"plain json", `{"text":"hello"}`, "hello", 0, false},
		{"fenced", "```json\n{\"text\":\"hi\",\"suggestedActions\":[{\"label\":\"Log it\",\"kind\":\"session\"}]}\n```", "hi", 1, false},
		{"fence without tag", "```\n{\"text\":\"hi\"}\n```", "hi", 0, false},
		{"prose around", "Sure! Here you go: {\"text\":\"answer\"} Hope that helps.", "answer", 0, false},
		{"not json", "Just some text", "Just some text", 0, true},
		{"broken json", `{"text": "unterminated`, `{"text": "unterminated`, 0, true},
		{"empty text", `{"text":"  ","suggestedActions":[{"label":"x","kind":"task"}]}`, `{"text":"  ","suggestedActions":[{"label":"x","kind":"task"}]}`, 0, true},
		{"nested braces", `{"text":"use {{tool:x}} here"}`, "use {{tool:x}} here", 0, false},
		{
			"code block in text",
			"{\"text\":\"Run this:\\n```go\\nfmt.Println(1)\\n```\",\"suggestedActions\":[{\"label\":\"Log it\",\"kind\":\"session\"}]}",
			"Run this:\n```go\nfmt.Println(1)\n```", 1, false,
		},
		{
			"fenced with code block in text",
			"```json\n{\"text\":\"See:\\n```sh\\nmake\\n```\"}\n```",
			"See:\n```sh\nmake\n```", 0, false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, actions, fallback := Parse(tt.raw)
			assert.Equal(t, tt.wantText, text)
			assert.Len(t, actions, tt.wantActions)
			assert.NotNil(t, actions)
			assert.Equal(t, tt.wantFallback, fallback)
		})
	}
}

func TestNormalizeActions(t *testing.T) {
	in := []Action{
		{Label: " Log a session ", Kind: "Session", Value: " fix login "},
		{Label: "log a session", Kind: "task"},
		{Label: "", Kind: "task"},
		{Label: "Dance", Kind: "party"},
		{Label: "Open PR", Kind: "link", Value: "https://github.com/acme/api/pull/1"},
		{Label: "A", Kind: "task"},
		{Label: "B", Kind: "task"},
		{Label: "C", Kind: "prompt"},
		{Label: "D", Kind: "task"},
	}
	out := normalizeActions(in)
	require.Len(t, out, MaxActions)
	assert.Equal(t, Action{Label: "Log a session", Kind: "session", Value: "fix login"}, out[0])
	assert.Equal(t, "Open PR", out[1].Label)
	assert.Equal(t, "C", out[4].Label)
}

func TestRun_StructuredAnswer(t *testing.T) {
	p := &fakeProvider{text: `{"text":"Do X","suggestedActions":[{"label":"Start","kind":"session","value":"X"}]}`}
	rec := &fakeRecorder{}
	c := New(p, zerolog.Nop(), WithRecorder(rec), WithMaxTokens(512))

	out, err := c.Run(context.Background(), "what next?")
	require.NoError(t, err)
	assert.Equal(t, "Do X", out.Text)
	assert.False(t, out.Fallback)
	require.Len(t, out.SuggestedActions, 1)
	assert.Equal(t, "fake-model", out.Model)

	assert.Equal(t, SystemPrompt, p.got.SystemPrompt)
	assert.Equal(t, 512, p.got.MaxTokens)
	require.Len(t, p.got.Messages, 1)
	assert.Equal(t, "what next?", p.got.Messages[0].Content)

	assert.Equal(t, []string{"fake-model/ok/10/5"}, rec.llm)
	assert.Equal(t, []string{"ok"}, rec.runs)
}

func TestRun_Fallback(t *testing.T) {
	rec := &fakeRecorder{}
	c := New(&fakeProvider{text: "no json here"}, zerolog.Nop(), WithRecorder(rec))

	out, err := c.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.Equal(t, "no json here", out.Text)
	assert.Empty(t, out.SuggestedActions)
	assert.Equal(t, []string{"fallback"}, rec.runs)
}

func TestRun_Truncated(t *testing.T) {
	rec := &fakeRecorder{}
	c := New(&fakeProvider{text: `{"text": "partial answ`, stop: llm.StopReasonMaxTokens}, zerolog.Nop(), WithRecorder(rec))

	out, err := c.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.True(t, out.Truncated)
	assert.True(t, out.Fallback)
	assert.Equal(t, []string{"truncated"}, rec.runs)

	rec = &fakeRecorder{}
	c = New(&fakeProvider{text: `{"text":"done"}`, stop: llm.StopReasonEndTurn}, zerolog.Nop(), WithRecorder(rec))
	out, err = c.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.False(t, out.Truncated)
	assert.Equal(t, []string{"ok"}, rec.runs)
}

func TestRun_ProviderError(t *testing.T) {
	rec := &fakeRecorder{}
	c := New(&fakeProvider{err: perrors.NewAPIError("anthropic", 500, "overloaded")}, zerolog.Nop(), WithRecorder(rec))

	_, err := c.Run(context.Background(), "hi")
	require.Error(t, err)
	var apiErr *perrors.APIError
	assert.True(t, errors.As(err, &apiErr))
	assert.Equal(t, []string{"fake-model/error/0/0"}, rec.llm)
	assert.Equal(t, []string{"error"}, rec.runs)
}

func TestRun_NotConfigured(t *testing.T) {
	c := New(nil, zerolog.Nop())
	_, err := c.Run(context.Background(), "hi")
	assert.ErrorIs(t, err, perrors.ErrNotConfigured)

	c = New(&fakeProvider{err: perrors.ErrNotConfigured}, zerolog.Nop())
	_, err = c.Run(context.Background(), "hi")
	assert.ErrorIs(t, err, perrors.ErrNotConfigured)
}

func TestRun_EmptyPrompt(t *testing.T) {
	c := New(&fakeProvider{}, zerolog.Nop())
	_, err := c.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

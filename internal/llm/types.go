// Package llm defines the completion client used by the prompt chain.
package llm

import "context"

// RoleUser is the Message.Role of a prompt turn.
const RoleUser = "user"

// Stop reasons reported by the provider.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonMaxTokens = "max_tokens"
)

// Message is a single turn in the conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the input to Complete.
type CompletionRequest struct {
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64
	Model        string // overrides the provider default if set
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	Text         string
	StopReason   string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider is implemented by language model backends.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	ModelID() string
}

// UserPrompt builds a single-turn request.
func UserPrompt(system, prompt string) CompletionRequest {
	return CompletionRequest{
		SystemPrompt: system,
		Messages:     []Message{{Role: RoleUser, Content: prompt}},
	}
}

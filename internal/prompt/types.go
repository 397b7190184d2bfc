// Package prompt stores user-authored prompt templates.
package prompt

import (
	"strings"
	"time"

	perrors "github.com/p-blackswan/buffr/internal/errors"
)

// ScopeGlobal marks a prompt visible to every project.
const ScopeGlobal = "global"

// Prompt is a reusable template. Body may contain {{ns.field}} variables and
// {{tool:name:params}} tokens.
type Prompt struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Tags       []string  `json:"tags"`
	Scope      string    `json:"scope"`
	UsageCount int       `json:"usageCount"`
	Builtin    bool      `json:"builtin,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// IsGlobal reports whether the prompt is visible everywhere.
func (p *Prompt) IsGlobal() bool { return p.Scope == ScopeGlobal }

// CreateInput holds the parameters for creating a prompt.
type CreateInput struct {
	Title string   `json:"title"`
	Body  string   `json:"body"`
	Tags  []string `json:"tags"`
	Scope string   `json:"scope"`
}

// UpdateInput holds the parameters for updating a prompt. Nil fields are left unchanged.
type UpdateInput struct {
	Title *string   `json:"title,omitempty"`
	Body  *string   `json:"body,omitempty"`
	Tags  *[]string `json:"tags,omitempty"`
	Scope *string   `json:"scope,omitempty"`
}

const (
	maxTitleLen = 200
	maxBodyLen  = 32 * 1024
	maxTags     = 20
)

func validateTitle(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", perrors.Invalid("title is required")
	}
	if len(s) > maxTitleLen {
		return "", perrors.Invalid("title must be at most %d characters", maxTitleLen)
	}
	return s, nil
}

func validateBody(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", perrors.Invalid("body is required")
	}
	if len(s) > maxBodyLen {
		return "", perrors.Invalid("body must be at most %d bytes", maxBodyLen)
	}
	return s, nil
}

func normalizeTags(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool)
	for _, t := range in {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) > maxTags {
		return nil, perrors.Invalid("at most %d tags allowed", maxTags)
	}
	return out, nil
}

package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Scope carries the current project's defaults so adapters can fill in
// parameters a template omitted.
type Scope struct {
	ProjectID        string `json:"projectId,omitempty"`
	GitHubRepo       string `json:"githubRepo,omitempty"`
	NotionDatabaseID string `json:"notionDatabaseId,omitempty"`
	JiraProjectKey   string `json:"jiraProjectKey,omitempty"`
}

type scopeKey struct{}

// WithScope attaches s to ctx.
func WithScope(ctx context.Context, s Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// ScopeFrom returns the scope in ctx, or the zero Scope.
func ScopeFrom(ctx context.Context) Scope {
	s, _ := ctx.Value(scopeKey{}).(Scope)
	return s
}

// Params is a decoded tool input. Values arrive as strings from template
// tokens and as any JSON type from API callers.
type Params map[string]interface{}

// DecodeParams decodes a JSON object input.
func DecodeParams(input json.RawMessage) (Params, error) {
	p := Params{}
	if len(input) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(input, &p); err != nil {
		return nil, fmt.Errorf("input must be a JSON object: %w", err)
	}
	return p, nil
}

// String returns the named param as a trimmed string, or def when absent.
func (p Params) String(name, def string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return def
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		s = string(b)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// Int returns the named param as an int clamped to [1, max], or def.
func (p Params) Int(name string, def, max int) int {
	n, err := strconv.Atoi(p.String(name, ""))
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

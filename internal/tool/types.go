// Package tool defines the Tool interface and the Registry the resolver
// dispatches {{tool:...}} tokens through.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
)

// Schema describes a tool's interface.
type Schema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"` // JSON Schema object
}

// Tool is the interface all tools must implement.
type Tool interface {
	// Schema returns the tool's name, description, and JSON Schema for inputs.
	Schema() Schema

	// Execute runs the tool with the given JSON input and returns a result string.
	Execute(ctx context.Context, input json.RawMessage) (string, error)
}

// Recorder receives one observation per execution.
type Recorder interface {
	RecordTool(name, status string, seconds float64)
}

// Registry holds all registered tools and provides lookup.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	recorder Recorder
	logger   zerolog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(reg *Registry) { reg.recorder = r }
}

// WithLogger sets the registry logger.
func WithLogger(l zerolog.Logger) Option {
	return func(reg *Registry) { reg.logger = l.With().Str("component", "tools").Logger() }
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:  make(map[string]Tool),
		logger: zerolog.Nop(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register adds a tool to the registry. Panics on duplicate name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Schema().Name
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("tool already registered: %s", name))
	}
	r.tools[name] = t
}

// Replace installs t, swapping out any tool of the same name.
func (r *Registry) Replace(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Schema().Name] = t
}

// Unregister removes a tool. It reports whether the tool was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tools[name]
	delete(r.tools, name)
	return ok
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Schemas returns all tool schemas sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	schemas := make([]Schema, 0, len(r.tools))
	for _, t := range r.tools {
		schemas = append(schemas, t.Schema())
	}
	r.mu.RUnlock()

	sort.Slice(schemas, func(i, j int) bool { return schemas[i].Name < schemas[j].Name })
	return schemas
}

// Execute runs a tool by name with JSON input. An empty input is sent as {}.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (string, error) {
	t, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", perrors.ErrUnknownTool, name)
	}
	if len(input) == 0 {
		input = json.RawMessage(`{}`)
	}

	start := time.Now()
	out, err := t.Execute(ctx, input)
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	if r.recorder != nil {
		r.recorder.RecordTool(name, status, elapsed.Seconds())
	}

	ev := r.logger.Debug()
	if err != nil {
		ev = r.logger.Warn().Err(err)
	}
	ev.Str("tool", name).Dur("duration", elapsed).Int("bytes", len(out)).Msg("tool executed")

	if err != nil {
		return "", fmt.Errorf("tool %s: %w", name, err)
	}
	return out, nil
}

// MustSchema builds a json.RawMessage from a Go value (panics on error).
func MustSchema(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("MustSchema: %v", err))
	}
	return b
}

// ObjectSchema builds a JSON Schema object whose properties are all strings.
// props maps property name to description.
func ObjectSchema(props map[string]string, required ...string) json.RawMessage {
	properties := make(map[string]interface{}, len(props))
	for name, desc := range props {
		properties[name] = map[string]string{"type": "string", "description": desc}
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return MustSchema(s)
}

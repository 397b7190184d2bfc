package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/tool"
)

const (
	DefaultCallTimeout = 20 * time.Second
	DefaultParallelism = 4
	tokenPrefix        = "{{tool:"
)

// Executor runs a tool by name. *tool.Registry implements it.
type Executor interface {
	Execute(ctx context.Context, name string, input json.RawMessage) (string, error)
}

// Token is one {{tool:...}} occurrence. Start and End are byte offsets of
// the whole token in the scanned text.
type Token struct {
	Start  int
	End    int
	Name   string
	Params string
}

// raw returns the token as written.
func (t Token) raw(text string) string { return text[t.Start:t.End] }

// Call reports one distinct tool invocation.
type Call struct {
	Name       string `json:"name"`
	Params     string `json:"params,omitempty"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// Result is a resolved template and the tool calls it took.
type Result struct {
	Text  string `json:"text"`
	Calls []Call `json:"calls"`
}

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FindTokens returns the tool tokens of text in order of position.
// Params run to the first closing braces, except that a JSON-object param
// takes further } until its braces balance.
func FindTokens(text string) []Token {
	return findTokens(text, nil)
}

// findTokens skips tokens that start inside one of the skip spans.
func findTokens(text string, skip []span) []Token {
	var out []Token
	pos := 0
	for {
		i := strings.Index(text[pos:], tokenPrefix)
		if i < 0 {
			return out
		}
		start := pos + i
		bodyStart := start + len(tokenPrefix)
		if inSpans(skip, start) {
			pos = bodyStart
			continue
		}
		j := strings.Index(text[bodyStart:], "}}")
		if j < 0 {
			return out
		}
		end := bodyStart + j
		name, params, _ := strings.Cut(text[bodyStart:end], ":")
		if strings.HasPrefix(strings.TrimSpace(params), "{") {
			for strings.Count(params, "{") > strings.Count(params, "}") && end+2 < len(text) && text[end+2] == '}' {
				end++
				name, params, _ = strings.Cut(text[bodyStart:end], ":")
			}
		}
		if !namePattern.MatchString(name) {
			pos = bodyStart
			continue
		}
		out = append(out, Token{Start: start, End: end + 2, Name: name, Params: strings.TrimSpace(params)})
		pos = end + 2
	}
}

func inSpans(spans []span, i int) bool {
	for _, s := range spans {
		if s.contains(i) {
			return true
		}
	}
	return false
}

// ParseParams converts a token's params to a JSON object input: empty is
// {}, a JSON object is kept, k=v pairs split on , or & become an object of
// strings and anything else becomes {"value": params}.
func ParseParams(params string) json.RawMessage {
	params = strings.TrimSpace(params)
	if params == "" {
		return json.RawMessage(`{}`)
	}
	if strings.HasPrefix(params, "{") {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(params), &obj); err == nil {
			return json.RawMessage(params)
		}
	}
	if strings.Contains(params, "=") {
		obj := map[string]string{}
		valid := true
		for _, pair := range strings.FieldsFunc(params, func(r rune) bool { return r == ',' || r == '&' }) {
			k, v, ok := strings.Cut(pair, "=")
			k = strings.TrimSpace(k)
			if !ok || k == "" {
				valid = false
				break
			}
			obj[k] = strings.TrimSpace(v)
		}
		if valid && len(obj) > 0 {
			b, _ := json.Marshal(obj)
			return b
		}
	}
	b, _ := json.Marshal(map[string]string{"value": params})
	return b
}

// Resolver runs both phases against a tool executor.
type Resolver struct {
	exec        Executor
	callTimeout time.Duration
	parallel    int
	logger      zerolog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithCallTimeout bounds each tool call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// WithParallelism bounds concurrent tool calls.
func WithParallelism(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// New creates a Resolver.
func New(exec Executor, logger zerolog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		exec:        exec,
		callTimeout: DefaultCallTimeout,
		parallel:    DefaultParallelism,
		logger:      logger.With().Str("component", "resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve substitutes variables, then tool tokens. Tools see the
// project's scope unless ctx already carries one.
func (r *Resolver) Resolve(ctx context.Context, tmpl string, vc Context) (Result, error) {
	if vc.Project != nil && tool.ScopeFrom(ctx) == (tool.Scope{}) {
		ctx = tool.WithScope(ctx, vc.Project.ToolScope())
	}
	text, values := resolveVariables(tmpl, vc)
	return r.resolveTools(ctx, text, values)
}

type outcome struct {
	text string
	call Call
}

// ResolveTools replaces every tool token of text with its result.
// Identical tokens run once. A failing call is replaced by a bracketed
// message; only a done ctx makes ResolveTools fail.
func (r *Resolver) ResolveTools(ctx context.Context, text string) (Result, error) {
	return r.resolveTools(ctx, text, nil)
}

func (r *Resolver) resolveTools(ctx context.Context, text string, skip []span) (Result, error) {
	tokens := findTokens(text, skip)
	if len(tokens) == 0 {
		return Result{Text: text, Calls: []Call{}}, nil
	}

	// distinct tokens in order of first appearance
	index := make(map[string]int)
	var distinct []Token
	for _, t := range tokens {
		raw := t.raw(text)
		if _, seen := index[raw]; !seen {
			index[raw] = len(distinct)
			distinct = append(distinct, t)
		}
	}

	outcomes := make([]outcome, len(distinct))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.parallel)
	for i, t := range distinct {
		g.Go(func() error {
			outcomes[i] = r.call(gctx, t)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	// splice from the end so earlier offsets stay valid
	out := text
	for i := len(tokens) - 1; i >= 0; i-- {
		t := tokens[i]
		o := outcomes[index[t.raw(text)]]
		out = out[:t.Start] + o.text + out[t.End:]
	}

	calls := make([]Call, len(outcomes))
	for i, o := range outcomes {
		calls[i] = o.call
	}
	return Result{Text: out, Calls: calls}, nil
}

func (r *Resolver) call(ctx context.Context, t Token) outcome {
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.exec.Execute(ctx, t.Name, ParseParams(t.Params))
	c := Call{Name: t.Name, Params: t.Params, DurationMs: time.Since(start).Milliseconds()}

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", perrors.ErrTimeout, r.callTimeout)
		}
		c.Error = err.Error()
		r.logger.Debug().Err(err).Str("tool", t.Name).Msg("tool call failed")
		if errors.Is(err, perrors.ErrUnknownTool) {
			return outcome{text: "[unknown tool: " + t.Name + "]", call: c}
		}
		msg := strings.TrimPrefix(err.Error(), "tool "+t.Name+": ")
		return outcome{text: "[tool " + t.Name + " failed: " + msg + "]", call: c}
	}

	c.OK = true
	return outcome{text: compactJSON(res), call: c}
}

func compactJSON(s string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, []byte(trimmed)); err != nil {
		return s
	}
	return buf.String()
}

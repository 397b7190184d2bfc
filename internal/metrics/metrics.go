// Package metrics provides Prometheus metrics for buffr.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	ToolInvocationsTotal *prometheus.CounterVec
	ToolDuration         *prometheus.HistogramVec
	LLMRequestsTotal     *prometheus.CounterVec
	LLMTokensTotal       *prometheus.CounterVec
	PromptRunsTotal      *prometheus.CounterVec
	WorkItemFetchesTotal *prometheus.CounterVec
	GitHubTokensActive   prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffr_http_requests_total",
				Help: "HTTP requests by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buffr_http_request_duration_seconds",
				Help:    "HTTP request latency by method and route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ToolInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffr_tool_invocations_total",
				Help: "Tool executions by tool name and status.",
			},
			[]string{"tool", "status"},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "buffr_tool_duration_seconds",
				Help:    "Tool execution latency by tool name.",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
			},
			[]string{"tool"},
		),
		LLMRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffr_llm_requests_total",
				Help: "LLM completion requests by model and status.",
			},
			[]string{"model", "status"},
		),
		LLMTokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffr_llm_tokens_total",
				Help: "LLM tokens consumed by model and direction (input/output).",
			},
			[]string{"model", "direction"},
		),
		PromptRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffr_prompt_runs_total",
				Help: "Prompt chain runs by outcome (structured, fallback, error).",
			},
			[]string{"outcome"},
		),
		WorkItemFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "buffr_work_item_fetches_total",
				Help: "Work item source fetches by source and result (ok, error, cached).",
			},
			[]string{"source", "result"},
		),
		GitHubTokensActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "buffr_github_tokens_active",
				Help: "Number of cached GitHub installation tokens.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ToolInvocationsTotal,
		m.ToolDuration,
		m.LLMRequestsTotal,
		m.LLMTokensTotal,
		m.PromptRunsTotal,
		m.WorkItemFetchesTotal,
		m.GitHubTokensActive,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, route, code string, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
}

// RecordTool records one tool execution.
func (m *Metrics) RecordTool(name, status string, seconds float64) {
	m.ToolInvocationsTotal.WithLabelValues(name, status).Inc()
	m.ToolDuration.WithLabelValues(name).Observe(seconds)
}

// RecordLLM records a completion and its token usage.
func (m *Metrics) RecordLLM(model, status string, inputTokens, outputTokens int) {
	m.LLMRequestsTotal.WithLabelValues(model, status).Inc()
	if inputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensTotal.WithLabelValues(model, "output").Add(float64(outputTokens))
	}
}

// RecordPromptRun increments the prompt run counter.
func (m *Metrics) RecordPromptRun(outcome string) {
	m.PromptRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordWorkItemFetch increments the work item fetch counter.
func (m *Metrics) RecordWorkItemFetch(source, result string) {
	m.WorkItemFetchesTotal.WithLabelValues(source, result).Inc()
}

// SetGitHubTokens sets the cached installation token count.
func (m *Metrics) SetGitHubTokens(count int) {
	m.GitHubTokensActive.Set(float64(count))
}

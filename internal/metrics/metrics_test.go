package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordTool("github_issues", "ok", 0.2)
	m.RecordTool("github_issues", "ok", 0.1)
	m.RecordTool("github_issues", "error", 0.1)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("github_issues", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ToolInvocationsTotal.WithLabelValues("github_issues", "error")))

	m.RecordLLM("claude", "ok", 100, 20)
	m.RecordLLM("claude", "error", 0, 0)
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("claude", "input")))
	assert.Equal(t, 20.0, testutil.ToFloat64(m.LLMTokensTotal.WithLabelValues("claude", "output")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("claude", "error")))

	m.RecordPromptRun("fallback")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PromptRunsTotal.WithLabelValues("fallback")))

	m.SetGitHubTokens(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.GitHubTokensActive))
}

func TestHandler_ExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/api/v1/projects", "200", 0.01)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), "buffr_http_requests_total")
	assert.Contains(t, string(body), `route="/api/v1/projects"`)
}

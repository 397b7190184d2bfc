package jira

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/retry"
	"github.com/p-blackswan/buffr/internal/tool"
)

type noopAuth struct{}

func (n *noopAuth) Apply(req *http.Request) error {
	req.Header.Set("Authorization", "Bearer test-token")
	return nil
}

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func setupTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, &noopAuth{}, zerolog.Nop())
	client.SetHTTPClient(server.Client())
	client.SetRetry(fastRetry())
	return client, server
}

func sampleIssue(key, summary string) Issue {
	return Issue{
		Key: key,
		Fields: IssueFields{
			Summary:   summary,
			Status:    &Status{Name: "In Progress", StatusCategory: &StatusCategory{Key: "indeterminate"}},
			IssueType: &IssueType{Name: "Bug"},
			Priority:  &Priority{Name: "High"},
			Labels:    []string{"backend"},
		},
	}
}

func TestClient_SearchIssues(t *testing.T) {
	client, server := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/rest/api/3/search/jql", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, OpenIssuesJQL("PLAT"), body["jql"])
		assert.EqualValues(t, 10, body["maxResults"])

		json.NewEncoder(w).Encode(SearchResult{
			IsLast: true,
			Issues: []Issue{sampleIssue("PLAT-1", "First"), sampleIssue("PLAT-2", "Second")},
		})
	})
	defer server.Close()

	result, err := client.SearchIssues(context.Background(), OpenIssuesJQL("PLAT"), 10)
	require.NoError(t, err)
	require.Len(t, result.Issues, 2)
	assert.Equal(t, "PLAT-1", result.Issues[0].Key)
}

func TestClient_GetIssue(t *testing.T) {
	client, server := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/PLAT-123", r.URL.Path)
		assert.Contains(t, r.URL.Query().Get("fields"), "description")
		is := sampleIssue("PLAT-123", "Test issue")
		is.Fields.Description = json.RawMessage(`{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Steps to reproduce"}]}]}`)
		json.NewEncoder(w).Encode(is)
	})
	defer server.Close()

	issue, err := client.GetIssue(context.Background(), "PLAT-123")
	require.NoError(t, err)
	assert.Equal(t, "Test issue", issue.Fields.Summary)
	assert.Equal(t, "Steps to reproduce", PlainText(issue.Fields.Description))
}

func TestClient_GetIssue_Error(t *testing.T) {
	client, server := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"errorMessages":["Issue does not exist"]}`))
	})
	defer server.Close()

	_, err := client.GetIssue(context.Background(), "NOPE-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
	assert.Contains(t, err.Error(), "Issue does not exist")
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	client, server := setupTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(SearchResult{Issues: []Issue{}})
	})
	defer server.Close()

	_, err := client.SearchIssues(context.Background(), "project = X", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestBasicAuth_Apply(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, (&BasicAuth{Email: "a@b.c", APIToken: "tok"}).Apply(req))
	user, pass, ok := req.BasicAuth()
	require.True(t, ok)
	assert.Equal(t, "a@b.c", user)
	assert.Equal(t, "tok", pass)
}

func TestBearerAuth_Apply(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	require.NoError(t, (&BearerAuth{Token: "pat"}).Apply(req))
	assert.Equal(t, "Bearer pat", req.Header.Get("Authorization"))
	assert.Error(t, (&BearerAuth{}).Apply(req))
}

func TestKeysAndJQL(t *testing.T) {
	assert.True(t, ValidProjectKey("OPS"))
	assert.False(t, ValidProjectKey(`OPS" OR 1=1`))
	assert.True(t, ValidIssueKey("OPS-12"))
	assert.False(t, ValidIssueKey("OPS"))
	assert.Contains(t, StatusFilterJQL("OPS", "done"), "statusCategory = Done")
	assert.NotContains(t, StatusFilterJQL("OPS", "all"), "statusCategory")
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "", PlainText(nil))
	assert.Equal(t, "legacy", PlainText(json.RawMessage(`"legacy"`)))
	adf := `{"type":"doc","content":[
		{"type":"paragraph","content":[{"type":"text","text":"one"},{"type":"hardBreak"},{"type":"text","text":"two"}]},
		{"type":"paragraph","content":[{"type":"text","text":"three"}]}]}`
	assert.Equal(t, "one\ntwo\nthree", PlainText(json.RawMessage(adf)))
}

type staticCreds struct {
	cfg integration.ToolConfig
	err error
}

func (s staticCreds) Credentials(context.Context, string) (integration.ToolConfig, error) {
	return s.cfg, s.err
}

func newToolService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	svc := NewService(staticCreds{cfg: integration.ToolConfig{
		Service: integration.ServiceJira, BaseURL: server.URL, Email: "a@b.c", Token: "tok", DefaultRef: "DEF",
	}}, zerolog.Nop())
	svc.SetHTTPClient(server.Client())
	svc.SetRetry(fastRetry())
	return svc
}

func TestIssuesTool_UsesScopeProject(t *testing.T) {
	var gotJQL string
	svc := newToolService(t, func(w http.ResponseWriter, r *http.Request) {
		_, _, ok := r.BasicAuth()
		assert.True(t, ok)
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		gotJQL, _ = body["jql"].(string)
		json.NewEncoder(w).Encode(SearchResult{Issues: []Issue{sampleIssue("OPS-1", "Broken deploy")}})
	})

	ctx := tool.WithScope(context.Background(), tool.Scope{JiraProjectKey: "OPS"})
	out, err := NewIssuesTool(svc).Execute(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, OpenIssuesJQL("OPS"), gotJQL)

	var items []Summary
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Broken deploy", items[0].Title)
	assert.Equal(t, "In Progress", items[0].Status)
	assert.Contains(t, items[0].URL, "/browse/OPS-1")
}

func TestIssuesTool_FallsBackToDefaultRef(t *testing.T) {
	var gotJQL string
	svc := newToolService(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		gotJQL, _ = body["jql"].(string)
		json.NewEncoder(w).Encode(SearchResult{})
	})

	_, err := NewIssuesTool(svc).Execute(context.Background(), json.RawMessage(`{"status":"all"}`))
	require.NoError(t, err)
	assert.Equal(t, StatusFilterJQL("DEF", "all"), gotJQL)
}

func TestIssuesTool_RejectsBadKey(t *testing.T) {
	svc := newToolService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not call Jira")
	})
	_, err := NewIssuesTool(svc).Execute(context.Background(), json.RawMessage(`{"project":"bad key"}`))
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestIssuesTool_NotConfigured(t *testing.T) {
	svc := NewService(staticCreds{err: perrors.ErrNotConfigured}, zerolog.Nop())
	_, err := NewIssuesTool(svc).Execute(context.Background(), nil)
	assert.ErrorIs(t, err, perrors.ErrNotConfigured)
}

func TestIssueTool_ValueParam(t *testing.T) {
	svc := newToolService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/api/3/issue/OPS-7", r.URL.Path)
		json.NewEncoder(w).Encode(sampleIssue("OPS-7", "Flaky test"))
	})

	out, err := NewIssueTool(svc).Execute(context.Background(), json.RawMessage(`{"value":"ops-7"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Flaky test")

	_, err = NewIssueTool(svc).Execute(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

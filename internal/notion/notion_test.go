package notion

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/integration"
	"github.com/p-blackswan/buffr/internal/retry"
	"github.com/p-blackswan/buffr/internal/tool"
)

const dbID = "0123456789abcdef0123456789abcdef"

type staticCreds struct {
	cfg integration.ToolConfig
	err error
}

func (s staticCreds) Credentials(context.Context, string) (integration.ToolConfig, error) {
	return s.cfg, s.err
}

func page(id, title, status string, tags ...string) map[string]any {
	props := map[string]any{
		"Name": map[string]any{"type": "title", "title": []any{map[string]any{"plain_text": title}}},
	}
	if status != "" {
		props["Status"] = map[string]any{"type": "status", "status": map[string]any{"name": status}}
	}
	if len(tags) > 0 {
		opts := []any{}
		for _, t := range tags {
			opts = append(opts, map[string]any{"name": t})
		}
		props["Tags"] = map[string]any{"type": "multi_select", "multi_select": opts}
	}
	return map[string]any{
		"object":     "page",
		"id":         id,
		"url":        "https://www.notion.so/" + id,
		"properties": props,
	}
}

func newTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	svc := NewService(staticCreds{cfg: integration.ToolConfig{
		Service: integration.ServiceNotion,
		Token:   "secret_abc",
		BaseURL: server.URL,
	}}, zerolog.Nop())
	svc.SetHTTPClient(server.Client())
	svc.SetRetry(retry.Config{MaxAttempts: 1})
	return svc
}

func TestObjectGetTitle(t *testing.T) {
	p := &Object{Properties: map[string]Property{
		"Name": {Type: "title", Title: []RichText{{PlainText: "Fix "}, {PlainText: "login"}}},
	}}
	assert.Equal(t, "Fix login", p.GetTitle())

	db := &Object{Object: "database", Title: []RichText{{PlainText: "Tasks"}}}
	assert.Equal(t, "Tasks", db.GetTitle())
}

func TestObjectGetPropertyText(t *testing.T) {
	n := 3.5
	p := &Object{Properties: map[string]Property{
		"Status":   {Type: "status", Status: &SelectOption{Name: "In Progress"}},
		"Priority": {Type: "select", Select: &SelectOption{Name: "High"}},
		"Points":   {Type: "number", Number: &n},
		"Tags":     {Type: "multi_select", MultiSelect: []SelectOption{{Name: "a"}, {Name: "b"}}},
		"Due":      {Type: "date", Date: &DateProperty{Start: "2026-05-01"}},
	}}
	assert.Equal(t, "In Progress", p.GetPropertyText("Status"))
	assert.Equal(t, "High", p.GetPropertyText("Priority"))
	assert.Equal(t, "3.5", p.GetPropertyText("Points"))
	assert.Equal(t, "a, b", p.GetPropertyText("Tags"))
	assert.Equal(t, "2026-05-01", p.GetPropertyText("Due"))
	assert.Equal(t, "", p.GetPropertyText("Missing"))
}

func TestObjectStatusAndLabels(t *testing.T) {
	p := &Object{Properties: map[string]Property{
		"Status": {Type: "select", Select: &SelectOption{Name: "Todo"}},
		"Labels": {Type: "multi_select", MultiSelect: []SelectOption{{Name: "bug"}}},
	}}
	assert.Equal(t, "Todo", p.Status())
	assert.Equal(t, []string{"bug"}, p.Labels())

	empty := &Object{}
	assert.Equal(t, "", empty.Status())
	assert.Equal(t, []string{}, empty.Labels())
}

func TestIDs(t *testing.T) {
	assert.True(t, ValidID("01234567-89ab-cdef-0123-456789abcdef"))
	assert.True(t, ValidID(dbID))
	assert.False(t, ValidID("not-an-id"))
	assert.Equal(t, dbID, NormalizeID("01234567-89AB-cdef-0123-456789abcdef"))
	assert.True(t, IsDone(" Done "))
	assert.False(t, IsDone("In progress"))
}

func TestQueryDatabase_Headers(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/databases/"+dbID+"/query", r.URL.Path)
		assert.Equal(t, "Bearer secret_abc", r.Header.Get("Authorization"))
		assert.Equal(t, notionVersion, r.Header.Get("Notion-Version"))

		var body QueryParams
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "last_edited_time", body.Sorts[0].Timestamp)

		json.NewEncoder(w).Encode(map[string]any{"object": "list", "results": []any{page("p1", "Task", "")}})
	})

	pages, err := svc.Tasks(context.Background(), dbID, false, 10)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "Task", pages[0].GetTitle())
}

func TestTasks_SkipsDoneAndPaginates(t *testing.T) {
	var calls int32
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		var body QueryParams
		json.NewDecoder(r.Body).Decode(&body)
		if atomic.AddInt32(&calls, 1) == 1 {
			assert.Empty(t, body.StartCursor)
			json.NewEncoder(w).Encode(map[string]any{
				"results":     []any{page("p1", "Write docs", "Done"), page("p2", "Fix crash", "In progress", "bug")},
				"has_more":    true,
				"next_cursor": "cur2",
			})
			return
		}
		assert.Equal(t, "cur2", body.StartCursor)
		json.NewEncoder(w).Encode(map[string]any{
			"results": []any{page("p3", "Add search", "Todo")},
		})
	})

	pages, err := svc.Tasks(context.Background(), dbID, false, 10)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "p2", pages[0].ID)
	assert.Equal(t, "p3", pages[1].ID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTasks_APIError(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"object":"error","status":404,"code":"object_not_found","message":"Could not find database"}`))
	})

	_, err := svc.Tasks(context.Background(), dbID, false, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
	assert.Contains(t, err.Error(), "object_not_found")
}

func TestQueryDatabase_InvalidID(t *testing.T) {
	c := NewClient("tok", "", zerolog.Nop())
	_, err := c.QueryDatabase(context.Background(), "nope", QueryParams{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestTasksTool_DefaultsToScope(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/databases/"+dbID+"/query", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"results": []any{page("p1", "Ship it", "Todo", "release")}})
	})

	ctx := tool.WithScope(context.Background(), tool.Scope{NotionDatabaseID: dbID})
	out, err := NewTasksTool(svc).Execute(ctx, json.RawMessage(`{}`))
	require.NoError(t, err)

	var tasks []TaskSummary
	require.NoError(t, json.Unmarshal([]byte(out), &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "Ship it", tasks[0].Title)
	assert.Equal(t, "Todo", tasks[0].Status)
	assert.Equal(t, []string{"release"}, tasks[0].Labels)
}

func TestTasksTool_Validation(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := NewTasksTool(svc).Execute(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	_, err = NewTasksTool(svc).Execute(context.Background(), json.RawMessage(`{"database":"`+dbID+`","status":"later"}`))
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestTasksTool_NotConfigured(t *testing.T) {
	svc := NewService(staticCreds{err: perrors.ErrNotConfigured}, zerolog.Nop())
	_, err := NewTasksTool(svc).Execute(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, perrors.ErrNotConfigured)
}

func TestSearchTool(t *testing.T) {
	svc := newTestService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		var body SearchParams
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "roadmap", body.Query)
		assert.Equal(t, "page", body.Filter.Value)
		json.NewEncoder(w).Encode(map[string]any{"results": []any{page("p9", "Roadmap 2026", "")}})
	})

	out, err := NewSearchTool(svc).Execute(context.Background(), json.RawMessage(`{"value":"roadmap"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "Roadmap 2026")

	_, err = NewSearchTool(svc).Execute(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/store"
	"github.com/p-blackswan/buffr/internal/tool"
)

func newTestStore(t *testing.T, defaults Defaults) *Store {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, defaults, zerolog.Nop())
}

func TestMask(t *testing.T) {
	assert.Equal(t, "", Mask(""))
	assert.Equal(t, "••••••••", Mask("short"))
	assert.Equal(t, "••••••••wxyz", Mask("ghp_abcdefghijklmnopqrstuvwxyz"))
}

func TestCredentials_EnvFallback(t *testing.T) {
	s := newTestStore(t, Defaults{ServiceGitHub: {Token: "env-token"}})
	ctx := context.Background()

	c, err := s.Credentials(ctx, ServiceGitHub)
	require.NoError(t, err)
	assert.Equal(t, "env-token", c.Token)

	_, err = s.Credentials(ctx, ServiceNotion)
	assert.ErrorIs(t, err, perrors.ErrNotConfigured)

	v, err := s.GetConfig(ctx, ServiceGitHub)
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, v.Source)
	assert.True(t, v.Configured)

	v, err = s.GetConfig(ctx, ServiceNotion)
	require.NoError(t, err)
	assert.Equal(t, SourceNone, v.Source)
	assert.False(t, v.Configured)
}

func TestPutConfig_StoredWinsAndMasks(t *testing.T) {
	s := newTestStore(t, Defaults{ServiceGitHub: {Token: "env-token"}})
	ctx := context.Background()

	v, err := s.PutConfig(ctx, ServiceGitHub, ConfigInput{Token: "stored-token-1234"})
	require.NoError(t, err)
	assert.Equal(t, SourceStored, v.Source)
	assert.Equal(t, "••••••••1234", v.TokenMasked)

	body, _ := json.Marshal(v)
	assert.NotContains(t, string(body), "stored-token-1234")

	c, err := s.Credentials(ctx, ServiceGitHub)
	require.NoError(t, err)
	assert.Equal(t, "stored-token-1234", c.Token)

	// empty token keeps the stored secret
	_, err = s.PutConfig(ctx, ServiceGitHub, ConfigInput{BaseURL: "https://ghe.example.com/api/v3/"})
	require.NoError(t, err)
	c, _ = s.Credentials(ctx, ServiceGitHub)
	assert.Equal(t, "stored-token-1234", c.Token)
	assert.Equal(t, "https://ghe.example.com/api/v3", c.BaseURL)

	require.NoError(t, s.DeleteConfig(ctx, ServiceGitHub))
	assert.ErrorIs(t, s.DeleteConfig(ctx, ServiceGitHub), perrors.ErrNotFound)
	c, _ = s.Credentials(ctx, ServiceGitHub)
	assert.Equal(t, "env-token", c.Token)
}

func TestPutConfig_Validation(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	_, err := s.PutConfig(ctx, "trello", ConfigInput{Token: "x"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = s.PutConfig(ctx, ServiceNotion, ConfigInput{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = s.PutConfig(ctx, ServiceJira, ConfigInput{Token: "x"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = s.PutConfig(ctx, ServiceJira, ConfigInput{Token: "x", BaseURL: "ftp://x", Email: "a@b"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	v, err := s.PutConfig(ctx, ServiceJira, ConfigInput{Token: "x", BaseURL: "https://acme.atlassian.net", Email: "a@b", DefaultRef: "OPS"})
	require.NoError(t, err)
	assert.True(t, v.Configured)
	assert.Equal(t, "OPS", v.DefaultRef)
}

func TestListConfigs(t *testing.T) {
	s := newTestStore(t, nil)
	list, err := s.ListConfigs(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, ServiceGitHub, list[0].Service)
}

func TestCustomIntegrations_CRUD(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	c, err := s.CreateIntegration(ctx, IntegrationInput{
		Name:    "Weather",
		BaseURL: "https://api.example.com",
		Headers: map[string]string{"Authorization": "Bearer supersecretvalue"},
	})
	require.NoError(t, err)
	assert.Equal(t, "weather", c.Name)
	assert.Equal(t, "GET", c.Method)
	assert.Equal(t, "custom_weather", c.ToolName())
	assert.Equal(t, "••••••••alue", c.Masked().Headers["Authorization"])
	assert.Equal(t, "Bearer supersecretvalue", c.Headers["Authorization"])

	_, err = s.CreateIntegration(ctx, IntegrationInput{Name: "weather", BaseURL: "https://x.example.com"})
	assert.ErrorIs(t, err, perrors.ErrConflict)

	_, err = s.CreateIntegration(ctx, IntegrationInput{Name: "bad name!", BaseURL: "https://x.example.com"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = s.CreateIntegration(ctx, IntegrationInput{Name: "ok", BaseURL: "https://x.example.com", Method: "TRACE"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	prev, next, err := s.UpdateIntegration(ctx, c.ID, IntegrationInput{Name: "forecast", BaseURL: "https://api.example.com", Method: "post"})
	require.NoError(t, err)
	assert.Equal(t, "weather", prev.Name)
	assert.Equal(t, "forecast", next.Name)
	assert.Equal(t, "POST", next.Method)

	list, err := s.ListIntegrations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	removed, err := s.DeleteIntegration(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "forecast", removed.Name)
	_, err = s.DeleteIntegration(ctx, c.ID)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestRegistrar(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	s := newTestStore(t, nil)
	ctx := context.Background()
	reg := tool.NewRegistry()
	r := NewRegistrar(s, reg, server.Client(), zerolog.Nop())

	c, err := s.CreateIntegration(ctx, IntegrationInput{Name: "ping", BaseURL: server.URL})
	require.NoError(t, err)

	n, err := r.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out, err := reg.Execute(ctx, "custom_ping", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, out)

	prev, next, err := s.UpdateIntegration(ctx, c.ID, IntegrationInput{Name: "pong", BaseURL: server.URL})
	require.NoError(t, err)
	r.Rename(prev, next)
	_, ok := reg.Get("custom_ping")
	assert.False(t, ok)
	_, ok = reg.Get("custom_pong")
	assert.True(t, ok)

	r.Remove(next)
	_, ok = reg.Get("custom_pong")
	assert.False(t, ok)
}

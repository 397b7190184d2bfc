package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/project"
)

func testRecap() (*project.Project, *project.Session) {
	p := &project.Project{ID: "p1", Name: "buffr", Phase: project.PhaseMVP, GitHubRepo: "acme/buffr"}
	s := &project.Session{
		ID:             "s1",
		ProjectID:      "p1",
		Goal:           "Fix login redirect",
		WhatChanged:    []string{"patched callback", "added test"},
		Blockers:       "staging down",
		NextStep:       "deploy to staging",
		DetectedIntent: "bugfix",
		CreatedAt:      time.Date(2026, 2, 3, 4, 5, 0, 0, time.UTC),
	}
	return p, s
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "héll…", truncate("héllo wörld", 4))
}

func TestBuildRecapBlocks(t *testing.T) {
	p, s := testRecap()
	blocks := BuildRecapBlocks(p, s)
	require.Len(t, blocks, 4)

	raw, err := json.Marshal(blocks)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "*buffr* · mvp")
	assert.Contains(t, body, "https://github.com/acme/buffr")
	assert.Contains(t, body, "• patched callback")
	assert.Contains(t, body, "*Blockers:* staging down")
	assert.Contains(t, body, "*Next:* deploy to staging")
	assert.Contains(t, body, "intent: bugfix · 2026-02-03 04:05 UTC")
}

func TestBuildRecapBlocks_Minimal(t *testing.T) {
	p := &project.Project{Name: "x", Phase: project.PhaseIdea}
	s := &project.Session{Goal: "explore"}
	blocks := BuildRecapBlocks(p, s)
	assert.Len(t, blocks, 3)
}

func TestNotifier_Disabled(t *testing.T) {
	p, s := testRecap()
	n := NewNotifier("", zerolog.Nop())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.SessionLogged(context.Background(), p, s))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestNotifier_PostsWebhook(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	p, s := testRecap()
	n := NewNotifier(server.URL, zerolog.Nop())
	n.SetHTTPClient(server.Client())
	require.NoError(t, n.SessionLogged(context.Background(), p, s))

	assert.Equal(t, "buffr: Fix login redirect", got["text"])
	assert.Len(t, got["blocks"], 4)
}

func TestNotifier_WebhookError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("invalid_token"))
	}))
	defer server.Close()

	p, s := testRecap()
	n := NewNotifier(server.URL, zerolog.Nop())
	n.SetHTTPClient(server.Client())
	err := n.SessionLogged(context.Background(), p, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, perrors.ErrUnavailable)
	assert.True(t, strings.Contains(err.Error(), "403") || strings.Contains(err.Error(), "invalid_token"))
}

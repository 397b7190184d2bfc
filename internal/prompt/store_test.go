package prompt

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/store"
)

type fakeProjects map[string]bool

func (f fakeProjects) ProjectExists(_ context.Context, id string) (bool, error) {
	return f[id], nil
}

func newTestStore(t *testing.T, projects ...string) *Store {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	known := fakeProjects{}
	for _, p := range projects {
		known[p] = true
	}
	s := NewStore(db, known, zerolog.Nop())
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestCreate(t *testing.T) {
	s := newTestStore(t, "p1")
	ctx := context.Background()

	p, err := s.Create(ctx, CreateInput{Title: " Standup ", Body: "Hi {{project.name}}", Tags: []string{"Daily", "daily", " "}})
	require.NoError(t, err)
	assert.Equal(t, "Standup", p.Title)
	assert.Equal(t, ScopeGlobal, p.Scope)
	assert.Equal(t, []string{"daily"}, p.Tags)
	assert.Zero(t, p.UsageCount)

	scoped, err := s.Create(ctx, CreateInput{Title: "x", Body: "y", Scope: "p1"})
	require.NoError(t, err)
	assert.Equal(t, "p1", scoped.Scope)
}

func TestCreate_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateInput{Title: "", Body: "b"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = s.Create(ctx, CreateInput{Title: "t", Body: "  "})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
	_, err = s.Create(ctx, CreateInput{Title: "t", Body: "b", Scope: "no-such-project"})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestList_ScopeFiltering(t *testing.T) {
	s := newTestStore(t, "p1", "p2")
	ctx := context.Background()

	g, _ := s.Create(ctx, CreateInput{Title: "global", Body: "b"})
	p1, _ := s.Create(ctx, CreateInput{Title: "one", Body: "b", Scope: "p1"})
	_, _ = s.Create(ctx, CreateInput{Title: "two", Body: "b", Scope: "p2"})

	list, err := s.List(ctx, "p1")
	require.NoError(t, err)
	ids := []string{}
	for _, p := range list {
		ids = append(ids, p.ID)
	}
	assert.ElementsMatch(t, []string{g.ID, p1.ID}, ids)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestList_OrderedByUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a, _ := s.Create(ctx, CreateInput{Title: "alpha", Body: "b"})
	b, _ := s.Create(ctx, CreateInput{Title: "beta", Body: "b"})
	_, err := s.IncrementUsage(ctx, b.ID)
	require.NoError(t, err)

	list, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.Equal(t, a.ID, list[1].ID)
	assert.Equal(t, 1, list[0].UsageCount)
}

func TestUpdateAndDelete(t *testing.T) {
	s := newTestStore(t, "p1")
	ctx := context.Background()
	p, _ := s.Create(ctx, CreateInput{Title: "t", Body: "b"})

	body := "new body"
	scope := "p1"
	updated, err := s.Update(ctx, p.ID, UpdateInput{Body: &body, Scope: &scope})
	require.NoError(t, err)
	assert.Equal(t, "new body", updated.Body)
	assert.Equal(t, "p1", updated.Scope)

	bad := "ghost"
	_, err = s.Update(ctx, p.ID, UpdateInput{Scope: &bad})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)

	require.NoError(t, s.Delete(ctx, p.ID))
	assert.ErrorIs(t, s.Delete(ctx, p.ID), perrors.ErrNotFound)
	_, err = s.Get(ctx, p.ID)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestDeleteScope(t *testing.T) {
	s := newTestStore(t, "p1")
	ctx := context.Background()
	_, _ = s.Create(ctx, CreateInput{Title: "g", Body: "b"})
	_, _ = s.Create(ctx, CreateInput{Title: "s", Body: "b", Scope: "p1"})

	n, err := s.DeleteScope(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, _ := s.List(ctx, "")
	assert.Len(t, all, 1)

	_, err = s.DeleteScope(ctx, ScopeGlobal)
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestUpdate_KeepsConcurrentUsage(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p, err := s.Create(ctx, CreateInput{Title: "Standup", Body: "hi"})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.IncrementUsage(ctx, p.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			title := fmt.Sprintf("Standup %d", i)
			_, err := s.Update(ctx, p.ID, UpdateInput{Title: &title})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.UsageCount)
}

func TestIncrementUsage_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.IncrementUsage(context.Background(), "ghost")
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

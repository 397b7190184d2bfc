package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/p-blackswan/buffr/internal/errors"
)

type doc struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_CreatesSchema(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"blobs", "meta"} {
		var count int
		err := s.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count, "table %s should exist", table)
	}

	v, err := s.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, len(migrations), v)
}

func TestNew_ReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s1, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, s1.Bucket("projects").Put(context.Background(), "p1", doc{ID: "p1"}))
	s1.Close()

	s2, err := New(path, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close()

	var got doc
	require.NoError(t, s2.Bucket("projects").Get(context.Background(), "p1", &got))
	assert.Equal(t, "p1", got.ID)
}

func TestBucket_CRUD(t *testing.T) {
	ctx := context.Background()
	b := newTestStore(t).Bucket("projects")

	require.NoError(t, b.Put(ctx, "p1", doc{ID: "p1", Name: "first"}))

	var got doc
	require.NoError(t, b.Get(ctx, "p1", &got))
	assert.Equal(t, "first", got.Name)

	// overwrite
	require.NoError(t, b.Put(ctx, "p1", doc{ID: "p1", Name: "renamed"}))
	require.NoError(t, b.Get(ctx, "p1", &got))
	assert.Equal(t, "renamed", got.Name)

	ok, err := b.Exists(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, ok)

	deleted, err := b.Delete(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = b.Delete(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, deleted)

	err = b.Get(ctx, "p1", &got)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestBucket_PutEmptyKey(t *testing.T) {
	b := newTestStore(t).Bucket("projects")
	err := b.Put(context.Background(), "", doc{})
	assert.ErrorIs(t, err, perrors.ErrInvalidInput)
}

func TestBucket_BucketsAreIsolated(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Bucket("a").Put(ctx, "k", doc{Name: "in a"}))

	var got doc
	err := s.Bucket("b").Get(ctx, "k", &got)
	assert.ErrorIs(t, err, perrors.ErrNotFound)
}

func TestBucket_PrefixListing(t *testing.T) {
	ctx := context.Background()
	b := newTestStore(t).Bucket("sessions")

	require.NoError(t, b.Put(ctx, "proj-a/s2", doc{ID: "s2"}))
	require.NoError(t, b.Put(ctx, "proj-a/s1", doc{ID: "s1"}))
	require.NoError(t, b.Put(ctx, "proj-ab/s3", doc{ID: "s3"}))
	require.NoError(t, b.Put(ctx, "proj-b/s4", doc{ID: "s4"}))

	keys, err := b.Keys(ctx, "proj-a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-a/s1", "proj-a/s2"}, keys)

	docs, err := List[doc](ctx, b, "proj-a/")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "s1", docs[0].ID)

	all, err := List[doc](ctx, b, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	n, err := b.DeletePrefix(ctx, "proj-a/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	keys, err = b.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"proj-ab/s3", "proj-b/s4"}, keys)
}

func TestBucket_PrefixWithLikeWildcards(t *testing.T) {
	ctx := context.Background()
	b := newTestStore(t).Bucket("notes")
	require.NoError(t, b.Put(ctx, "a%_/1", doc{ID: "1"}))
	require.NoError(t, b.Put(ctx, "abc/2", doc{ID: "2"}))

	keys, err := b.Keys(ctx, "a%_/")
	require.NoError(t, err)
	assert.Equal(t, []string{"a%_/1"}, keys)
}

func TestList_EmptyReturnsEmptySlice(t *testing.T) {
	docs, err := List[doc](context.Background(), newTestStore(t).Bucket("empty"), "")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

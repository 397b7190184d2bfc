package prompt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins_Parse(t *testing.T) {
	seeds, err := Builtins()
	require.NoError(t, err)
	require.NotEmpty(t, seeds)
	for _, s := range seeds {
		assert.NotEmpty(t, s.Title, s.Name)
		assert.NotContains(t, s.Body, "---\ntitle", s.Name)
	}
}

func TestParseSeed(t *testing.T) {
	seed, err := parseSeed("demo", "---\ntitle: Demo\ntags: [a, b]\n---\nHello {{project.name}}\n")
	require.NoError(t, err)
	assert.Equal(t, "Demo", seed.Title)
	assert.Equal(t, []string{"a", "b"}, seed.Tags)
	assert.Equal(t, "Hello {{project.name}}", seed.Body)

	seed, err = parseSeed("plain", "just a body")
	require.NoError(t, err)
	assert.Equal(t, "plain", seed.Title)

	_, err = parseSeed("bad", "---\ntitle: [unclosed\n---\nbody")
	assert.Error(t, err)

	_, err = parseSeed("empty", "---\ntitle: x\n---\n")
	assert.Error(t, err)
}

func TestSeedBuiltins_Once(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seeds, err := Builtins()
	require.NoError(t, err)

	added, err := s.SeedBuiltins(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(seeds), added)

	list, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, list, len(seeds))
	assert.True(t, list[0].Builtin)
	assert.True(t, list[0].IsGlobal())

	// deleted builtins stay deleted
	require.NoError(t, s.Delete(ctx, list[0].ID))
	added, err = s.SeedBuiltins(ctx)
	require.NoError(t, err)
	assert.Zero(t, added)

	list, _ = s.List(ctx, "")
	assert.Len(t, list, len(seeds)-1)
}

package prompt

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.md
var builtinFS embed.FS

type frontMatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// Seed holds one built-in prompt parsed from the embedded files.
type Seed struct {
	Name  string
	Title string
	Tags  []string
	Body  string
}

// Builtins parses the embedded prompt files.
func Builtins() ([]Seed, error) {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, fmt.Errorf("reading builtin prompts: %w", err)
	}
	var seeds []Seed
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		data, err := builtinFS.ReadFile(path.Join("builtin", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading builtin prompt %s: %w", entry.Name(), err)
		}
		seed, err := parseSeed(strings.TrimSuffix(entry.Name(), ".md"), string(data))
		if err != nil {
			return nil, fmt.Errorf("builtin prompt %s: %w", entry.Name(), err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, nil
}

func parseSeed(name, raw string) (Seed, error) {
	fm, body := splitFrontMatter(raw)
	var meta frontMatter
	if fm != "" {
		if err := yaml.Unmarshal([]byte(fm), &meta); err != nil {
			return Seed{}, fmt.Errorf("invalid front matter: %w", err)
		}
	}
	if meta.Title == "" {
		meta.Title = name
	}
	if body == "" {
		return Seed{}, fmt.Errorf("empty body")
	}
	return Seed{Name: name, Title: meta.Title, Tags: meta.Tags, Body: body}, nil
}

// splitFrontMatter separates a leading --- delimited YAML block from the body.
func splitFrontMatter(raw string) (frontmatter, body string) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "---") {
		return "", raw
	}
	before, after, ok := strings.Cut(raw[3:], "\n---")
	if !ok {
		return "", raw
	}
	return strings.TrimSpace(before), strings.TrimSpace(after)
}

// SeedBuiltins stores every built-in prompt that was never seeded before.
// A seeded prompt the user later deleted is not recreated.
func (s *Store) SeedBuiltins(ctx context.Context) (int, error) {
	seeds, err := Builtins()
	if err != nil {
		return 0, err
	}
	added := 0
	for _, seed := range seeds {
		seeded, err := s.seeds.Exists(ctx, seed.Name)
		if err != nil {
			return added, err
		}
		if seeded {
			continue
		}
		id := "builtin-" + seed.Name
		tags, err := normalizeTags(seed.Tags)
		if err != nil {
			return added, fmt.Errorf("builtin prompt %s: %w", seed.Name, err)
		}
		now := s.now()
		p := &Prompt{
			ID:        id,
			Title:     seed.Title,
			Body:      seed.Body,
			Tags:      tags,
			Scope:     ScopeGlobal,
			Builtin:   true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.bucket.Put(ctx, id, p); err != nil {
			return added, err
		}
		if err := s.seeds.Put(ctx, seed.Name, now); err != nil {
			return added, err
		}
		added++
	}
	if added > 0 {
		s.logger.Info().Int("count", added).Msg("seeded builtin prompts")
	}
	return added, nil
}

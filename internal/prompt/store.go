package prompt

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/store"
)

// Storage buckets.
const (
	Bucket      = "prompts"
	SeedsBucket = "prompt_seeds"
)

// ProjectChecker verifies project scopes.
type ProjectChecker interface {
	ProjectExists(ctx context.Context, id string) (bool, error)
}

// Store persists prompts.
type Store struct {
	bucket   *store.Bucket
	seeds    *store.Bucket
	projects ProjectChecker
	mu       sync.Mutex // serialises read-modify-write of a prompt
	now      func() time.Time
	logger   zerolog.Logger
}

// NewStore creates a prompt store.
func NewStore(db *store.Store, projects ProjectChecker, logger zerolog.Logger) *Store {
	return &Store{
		bucket:   db.Bucket(Bucket),
		seeds:    db.Bucket(SeedsBucket),
		projects: projects,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "prompt.store").Logger(),
	}
}

func (s *Store) checkScope(ctx context.Context, scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" || scope == ScopeGlobal {
		return ScopeGlobal, nil
	}
	ok, err := s.projects.ProjectExists(ctx, scope)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", perrors.Invalid("scope %q is neither %q nor an existing project", scope, ScopeGlobal)
	}
	return scope, nil
}

// Create validates in and stores a new prompt.
func (s *Store) Create(ctx context.Context, in CreateInput) (*Prompt, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	body, err := validateBody(in.Body)
	if err != nil {
		return nil, err
	}
	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return nil, err
	}
	scope, err := s.checkScope(ctx, in.Scope)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Prompt{
		ID:        uuid.NewString(),
		Title:     title,
		Body:      body,
		Tags:      tags,
		Scope:     scope,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.bucket.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("prompt_id", p.ID).Str("scope", p.Scope).Msg("prompt created")
	return p, nil
}

// Get returns a prompt by id.
func (s *Store) Get(ctx context.Context, id string) (*Prompt, error) {
	var p Prompt
	if err := s.bucket.Get(ctx, id, &p); err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return nil, perrors.NotFound("prompt", id)
		}
		return nil, err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return &p, nil
}

// List returns prompts visible to projectID: global ones plus those scoped
// to it. An empty projectID lists every prompt. Most used first.
func (s *Store) List(ctx context.Context, projectID string) ([]*Prompt, error) {
	all, err := store.List[*Prompt](ctx, s.bucket, "")
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if projectID == "" || p.IsGlobal() || p.Scope == projectID {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		return strings.ToLower(out[i].Title) < strings.ToLower(out[j].Title)
	})
	return out, nil
}

// Update applies the non-nil fields of in.
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		if p.Title, err = validateTitle(*in.Title); err != nil {
			return nil, err
		}
	}
	if in.Body != nil {
		if p.Body, err = validateBody(*in.Body); err != nil {
			return nil, err
		}
	}
	if in.Tags != nil {
		if p.Tags, err = normalizeTags(*in.Tags); err != nil {
			return nil, err
		}
	}
	if in.Scope != nil {
		if p.Scope, err = s.checkScope(ctx, *in.Scope); err != nil {
			return nil, err
		}
	}
	p.UpdatedAt = s.now()
	if err := s.bucket.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a prompt.
func (s *Store) Delete(ctx context.Context, id string) error {
	ok, err := s.bucket.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return perrors.NotFound("prompt", id)
	}
	return nil
}

// DeleteScope removes every prompt scoped to projectID and returns how many went.
func (s *Store) DeleteScope(ctx context.Context, projectID string) (int, error) {
	if projectID == "" || projectID == ScopeGlobal {
		return 0, perrors.Invalid("refusing to delete scope %q", projectID)
	}
	all, err := store.List[*Prompt](ctx, s.bucket, "")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range all {
		if p.Scope != projectID {
			continue
		}
		if _, err := s.bucket.Delete(ctx, p.ID); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// IncrementUsage bumps the usage counter and returns the updated prompt.
func (s *Store) IncrementUsage(ctx context.Context, id string) (*Prompt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.UsageCount++
	if err := s.bucket.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	return p, nil
}

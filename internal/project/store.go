package project

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/store"
)

// Bucket names.
const (
	ProjectsBucket = "projects"
	SessionsBucket = "sessions"
	NotesBucket    = "notes"
)

// Store persists projects, sessions and notes.
type Store struct {
	projects *store.Bucket
	sessions *store.Bucket
	notes    *store.Bucket
	now      func() time.Time
	logger   zerolog.Logger
}

// NewStore creates a project store on top of db.
func NewStore(db *store.Store, logger zerolog.Logger) *Store {
	return &Store{
		projects: db.Bucket(ProjectsBucket),
		sessions: db.Bucket(SessionsBucket),
		notes:    db.Bucket(NotesBucket),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "project.store").Logger(),
	}
}

func childKey(projectID, id string) string { return projectID + "/" + id }

// --- Projects ---

// CreateProject validates in and stores a new project.
func (s *Store) CreateProject(ctx context.Context, in CreateProjectInput) (*Project, error) {
	name, err := validateName(in.Name)
	if err != nil {
		return nil, err
	}
	phase, err := validatePhase(in.Phase)
	if err != nil {
		return nil, err
	}
	repo, err := NormalizeRepo(in.GitHubRepo)
	if err != nil {
		return nil, err
	}
	sources, err := normalizeSources(in.DataSources)
	if err != nil {
		return nil, err
	}

	now := s.now()
	p := &Project{
		ID:                   uuid.NewString(),
		Name:                 name,
		Stack:                strings.TrimSpace(in.Stack),
		Phase:                phase,
		GitHubRepo:           repo,
		DataSources:          sources,
		DismissedSuggestions: []string{},
		Plan:                 in.Plan,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.projects.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	s.logger.Info().Str("project_id", p.ID).Str("name", p.Name).Msg("project created")
	return p, nil
}

// GetProject returns a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	if err := s.projects.Get(ctx, id, &p); err != nil {
		if errors.Is(err, perrors.ErrNotFound) {
			return nil, perrors.NotFound("project", id)
		}
		return nil, err
	}
	if p.DataSources == nil {
		p.DataSources = []DataSource{}
	}
	if p.DismissedSuggestions == nil {
		p.DismissedSuggestions = []string{}
	}
	return &p, nil
}

// ProjectExists reports whether id names a stored project.
func (s *Store) ProjectExists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	return s.projects.Exists(ctx, id)
}

// ListProjects returns all projects, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	list, err := store.List[*Project](ctx, s.projects, "")
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].UpdatedAt.After(list[j].UpdatedAt) })
	return list, nil
}

// UpdateProject applies the non-nil fields of in.
func (s *Store) UpdateProject(ctx context.Context, id string, in UpdateProjectInput) (*Project, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		if p.Name, err = validateName(*in.Name); err != nil {
			return nil, err
		}
	}
	if in.Stack != nil {
		p.Stack = strings.TrimSpace(*in.Stack)
	}
	if in.Phase != nil {
		if *in.Phase == "" {
			return nil, perrors.Invalid("phase cannot be empty")
		}
		if p.Phase, err = validatePhase(*in.Phase); err != nil {
			return nil, err
		}
	}
	if in.GitHubRepo != nil {
		if p.GitHubRepo, err = NormalizeRepo(*in.GitHubRepo); err != nil {
			return nil, err
		}
	}
	if in.DataSources != nil {
		if p.DataSources, err = normalizeSources(*in.DataSources); err != nil {
			return nil, err
		}
	}
	if in.Plan != nil {
		p.Plan = *in.Plan
	}

	p.UpdatedAt = s.now()
	if err := s.projects.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DismissSuggestion records a dismissed suggestion id. Repeats are no-ops.
func (s *Store) DismissSuggestion(ctx context.Context, id, suggestionID string) (*Project, error) {
	suggestionID = strings.TrimSpace(suggestionID)
	if suggestionID == "" {
		return nil, perrors.Invalid("suggestion id is required")
	}
	p, err := s.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Dismissed(suggestionID) {
		return p, nil
	}
	p.DismissedSuggestions = append(p.DismissedSuggestions, suggestionID)
	p.UpdatedAt = s.now()
	if err := s.projects.Put(ctx, p.ID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// DeleteProject removes a project with its sessions and notes. Children go
// first so a failure never leaves them without their project.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	ok, err := s.projects.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return perrors.NotFound("project", id)
	}

	prefix := childKey(id, "")
	sessions, err := s.sessions.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to delete sessions of %s: %w", id, err)
	}
	notes, err := s.notes.DeletePrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("failed to delete notes of %s: %w", id, err)
	}
	if _, err := s.projects.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("project_id", id).Int64("sessions", sessions).Int64("notes", notes).Msg("project deleted")
	return nil
}

func (s *Store) touch(ctx context.Context, p *Project) {
	p.UpdatedAt = s.now()
	if err := s.projects.Put(ctx, p.ID, p); err != nil {
		s.logger.Warn().Err(err).Str("project_id", p.ID).Msg("failed to touch project")
	}
}

// --- Sessions ---

// CreateSession logs a session against an existing project. Intent and
// suggested next step are derived when the caller leaves them empty.
func (s *Store) CreateSession(ctx context.Context, projectID string, in CreateSessionInput) (*Session, error) {
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	goal := strings.TrimSpace(in.Goal)
	if goal == "" {
		return nil, perrors.Invalid("goal is required")
	}
	changed := make([]string, 0, len(in.WhatChanged))
	for _, c := range in.WhatChanged {
		if c = strings.TrimSpace(c); c != "" {
			changed = append(changed, c)
		}
	}

	sess := &Session{
		ID:                uuid.NewString(),
		ProjectID:         projectID,
		Goal:              goal,
		WhatChanged:       changed,
		NextStep:          strings.TrimSpace(in.NextStep),
		Blockers:          strings.TrimSpace(in.Blockers),
		DetectedIntent:    strings.TrimSpace(in.DetectedIntent),
		SuggestedNextStep: strings.TrimSpace(in.SuggestedNextStep),
		Phase:             p.Phase,
		CreatedAt:         s.now(),
	}
	if sess.DetectedIntent == "" {
		sess.DetectedIntent = DetectIntent(sess.Goal, sess.WhatChanged)
	}
	if sess.SuggestedNextStep == "" {
		sess.SuggestedNextStep = SuggestNextStep(sess.DetectedIntent, sess.Blockers)
	}

	if err := s.sessions.Put(ctx, childKey(projectID, sess.ID), sess); err != nil {
		return nil, err
	}
	s.touch(ctx, p)
	s.logger.Info().Str("project_id", projectID).Str("session_id", sess.ID).Str("intent", sess.DetectedIntent).Msg("session logged")
	return sess, nil
}

// ListSessions returns a project's sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, projectID string) ([]*Session, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	list, err := store.List[*Session](ctx, s.sessions, childKey(projectID, ""))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// LatestSession returns the newest session, or nil when none exist.
func (s *Store) LatestSession(ctx context.Context, projectID string) (*Session, error) {
	list, err := s.ListSessions(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// DeleteSession removes one session.
func (s *Store) DeleteSession(ctx context.Context, projectID, sessionID string) error {
	ok, err := s.sessions.Delete(ctx, childKey(projectID, sessionID))
	if err != nil {
		return err
	}
	if !ok {
		return perrors.NotFound("session", sessionID)
	}
	return nil
}

// --- Notes ---

// CreateNote stores a note against an existing project.
func (s *Store) CreateNote(ctx context.Context, projectID, content string) (*Note, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, perrors.Invalid("content is required")
	}
	n := &Note{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		Content:   content,
		CreatedAt: s.now(),
	}
	if err := s.notes.Put(ctx, childKey(projectID, n.ID), n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListNotes returns a project's notes, newest first.
func (s *Store) ListNotes(ctx context.Context, projectID string) ([]*Note, error) {
	if _, err := s.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	list, err := store.List[*Note](ctx, s.notes, childKey(projectID, ""))
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// DeleteNote removes one note.
func (s *Store) DeleteNote(ctx context.Context, projectID, noteID string) error {
	ok, err := s.notes.Delete(ctx, childKey(projectID, noteID))
	if err != nil {
		return err
	}
	if !ok {
		return perrors.NotFound("note", noteID)
	}
	return nil
}

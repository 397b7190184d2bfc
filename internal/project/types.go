// Package project holds projects, their work sessions and notes.
package project

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/tool"
)

// Phase is a project's lifecycle stage.
type Phase string

const (
	PhaseIdea   Phase = "idea"
	PhaseMVP    Phase = "mvp"
	PhasePolish Phase = "polish"
	PhaseDeploy Phase = "deploy"
)

// Phases lists every phase in lifecycle order.
var Phases = []Phase{PhaseIdea, PhaseMVP, PhasePolish, PhaseDeploy}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Next returns the phase after p, or p itself for the last phase.
func (p Phase) Next() Phase {
	for i, known := range Phases {
		if p == known && i+1 < len(Phases) {
			return Phases[i+1]
		}
	}
	return p
}

// Source kinds for data sources and work items.
const (
	SourceGitHub = "github"
	SourceNotion = "notion"
	SourceJira   = "jira"
)

// DataSource points a project at an external tracker.
// Ref is a repo (owner/name), a Notion database id or a Jira project key.
type DataSource struct {
	Type string `json:"type"`
	Ref  string `json:"ref"`
}

// Project is a tracked piece of work.
type Project struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Stack                string       `json:"stack,omitempty"`
	Phase                Phase        `json:"phase"`
	GitHubRepo           string       `json:"githubRepo,omitempty"`
	DataSources          []DataSource `json:"dataSources"`
	DismissedSuggestions []string     `json:"dismissedSuggestions"`
	Plan                 string       `json:"plan,omitempty"`
	CreatedAt            time.Time    `json:"createdAt"`
	UpdatedAt            time.Time    `json:"updatedAt"`
}

// Session is one logged work session.
type Session struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"projectId"`
	Goal              string    `json:"goal"`
	WhatChanged       []string  `json:"whatChanged"`
	NextStep          string    `json:"nextStep,omitempty"`
	Blockers          string    `json:"blockers,omitempty"`
	DetectedIntent    string    `json:"detectedIntent"`
	SuggestedNextStep string    `json:"suggestedNextStep,omitempty"`
	Phase             Phase     `json:"phase,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Note is a free-form project note.
type Note struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateProjectInput holds the parameters for creating a project.
type CreateProjectInput struct {
	Name        string       `json:"name"`
	Stack       string       `json:"stack"`
	Phase       Phase        `json:"phase"`
	GitHubRepo  string       `json:"githubRepo"`
	DataSources []DataSource `json:"dataSources"`
	Plan        string       `json:"plan"`
}

// UpdateProjectInput holds the parameters for updating a project.
// Nil fields are left unchanged.
type UpdateProjectInput struct {
	Name        *string       `json:"name,omitempty"`
	Stack       *string       `json:"stack,omitempty"`
	Phase       *Phase        `json:"phase,omitempty"`
	GitHubRepo  *string       `json:"githubRepo,omitempty"`
	DataSources *[]DataSource `json:"dataSources,omitempty"`
	Plan        *string       `json:"plan,omitempty"`
}

// CreateSessionInput holds the parameters for logging a session.
type CreateSessionInput struct {
	Goal              string   `json:"goal"`
	WhatChanged       []string `json:"whatChanged"`
	NextStep          string   `json:"nextStep"`
	Blockers          string   `json:"blockers"`
	DetectedIntent    string   `json:"detectedIntent"`
	SuggestedNextStep string   `json:"suggestedNextStep"`
}

const maxNameLen = 200

var repoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// NormalizeRepo accepts "owner/name" or a github.com URL and returns "owner/name".
func NormalizeRepo(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if strings.Contains(s, "://") || strings.HasPrefix(s, "github.com/") {
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil || !strings.EqualFold(u.Host, "github.com") {
			return "", perrors.Invalid("githubRepo %q is not a github.com repository", s)
		}
		s = strings.Trim(u.Path, "/")
	}
	s = strings.TrimSuffix(s, ".git")
	if !repoPattern.MatchString(s) {
		return "", perrors.Invalid("githubRepo %q must look like owner/name", s)
	}
	return s, nil
}

// SplitRepo splits "owner/name".
func SplitRepo(repo string) (owner, name string, err error) {
	owner, name, ok := strings.Cut(repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", perrors.Invalid("repository %q must look like owner/name", repo)
	}
	return owner, name, nil
}

func normalizeSources(in []DataSource) ([]DataSource, error) {
	out := make([]DataSource, 0, len(in))
	seen := make(map[DataSource]bool)
	for i, ds := range in {
		ds.Type = strings.ToLower(strings.TrimSpace(ds.Type))
		ds.Ref = strings.TrimSpace(ds.Ref)
		if ds.Ref == "" {
			return nil, perrors.Invalid("dataSources[%d]: ref is required", i)
		}
		switch ds.Type {
		case SourceGitHub:
			repo, err := NormalizeRepo(ds.Ref)
			if err != nil {
				return nil, fmt.Errorf("dataSources[%d]: %w", i, err)
			}
			ds.Ref = repo
		case SourceNotion:
			ds.Ref = strings.ReplaceAll(ds.Ref, "-", "")
		case SourceJira:
			ds.Ref = strings.ToUpper(ds.Ref)
		default:
			return nil, perrors.Invalid("dataSources[%d]: type %q must be github, notion or jira", i, ds.Type)
		}
		if seen[ds] {
			continue
		}
		seen[ds] = true
		out = append(out, ds)
	}
	return out, nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", perrors.Invalid("name is required")
	}
	if len(name) > maxNameLen {
		return "", perrors.Invalid("name must be at most %d characters", maxNameLen)
	}
	return name, nil
}

func validatePhase(p Phase) (Phase, error) {
	if p == "" {
		return PhaseIdea, nil
	}
	p = Phase(strings.ToLower(string(p)))
	if !p.Valid() {
		return "", perrors.Invalid("phase %q must be one of idea, mvp, polish, deploy", p)
	}
	return p, nil
}

// Sources returns the project's data sources plus its GitHub repo when that
// repo is not already listed.
func (p *Project) Sources() []DataSource {
	out := append([]DataSource(nil), p.DataSources...)
	if p.GitHubRepo == "" {
		return out
	}
	for _, ds := range out {
		if ds.Type == SourceGitHub && strings.EqualFold(ds.Ref, p.GitHubRepo) {
			return out
		}
	}
	return append(out, DataSource{Type: SourceGitHub, Ref: p.GitHubRepo})
}

// Dismissed reports whether the suggestion id was dismissed.
func (p *Project) Dismissed(id string) bool {
	for _, d := range p.DismissedSuggestions {
		if d == id {
			return true
		}
	}
	return false
}

// ToolScope returns the defaults adapters should use for this project.
func (p *Project) ToolScope() tool.Scope {
	s := tool.Scope{ProjectID: p.ID}
	for _, ds := range p.Sources() {
		switch ds.Type {
		case SourceGitHub:
			if s.GitHubRepo == "" {
				s.GitHubRepo = ds.Ref
			}
		case SourceNotion:
			if s.NotionDatabaseID == "" {
				s.NotionDatabaseID = ds.Ref
			}
		case SourceJira:
			if s.JiraProjectKey == "" {
				s.JiraProjectKey = ds.Ref
			}
		}
	}
	if p.GitHubRepo != "" {
		s.GitHubRepo = p.GitHubRepo
	}
	return s
}

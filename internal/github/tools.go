package github

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	gh "github.com/google/go-github/v60/github"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/tool"
)

// IssueSummary is the compact issue shape returned by tools.
type IssueSummary struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	Labels    []string   `json:"labels"`
	Author    string     `json:"author,omitempty"`
	Assignee  string     `json:"assignee,omitempty"`
	Comments  int        `json:"comments"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// SummarizeIssue converts an issue to its compact form.
func SummarizeIssue(is *gh.Issue) IssueSummary {
	s := IssueSummary{
		Number:   is.GetNumber(),
		Title:    is.GetTitle(),
		State:    is.GetState(),
		URL:      is.GetHTMLURL(),
		Labels:   LabelNames(is.Labels),
		Author:   is.GetUser().GetLogin(),
		Assignee: is.GetAssignee().GetLogin(),
		Comments: is.GetComments(),
	}
	if is.UpdatedAt != nil {
		t := is.UpdatedAt.Time
		s.UpdatedAt = &t
	}
	return s
}

// LabelNames returns the names of labels.
func LabelNames(labels []*gh.Label) []string {
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, l.GetName())
	}
	return out
}

// PullSummary is the compact pull request shape returned by tools.
type PullSummary struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"`
	URL       string     `json:"url"`
	Author    string     `json:"author,omitempty"`
	Draft     bool       `json:"draft"`
	Merged    bool       `json:"merged"`
	Head      string     `json:"head,omitempty"`
	Base      string     `json:"base,omitempty"`
	Labels    []string   `json:"labels"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func summarizePull(pr *gh.PullRequest) PullSummary {
	s := PullSummary{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		State:  pr.GetState(),
		URL:    pr.GetHTMLURL(),
		Author: pr.GetUser().GetLogin(),
		Draft:  pr.GetDraft(),
		Merged: pr.MergedAt != nil,
		Head:   pr.GetHead().GetRef(),
		Base:   pr.GetBase().GetRef(),
		Labels: LabelNames(pr.Labels),
	}
	if pr.UpdatedAt != nil {
		t := pr.UpdatedAt.Time
		s.UpdatedAt = &t
	}
	return s
}

// RepoSummary is the compact repository shape returned by github_repo.
type RepoSummary struct {
	FullName      string     `json:"fullName"`
	Description   string     `json:"description,omitempty"`
	URL           string     `json:"url"`
	DefaultBranch string     `json:"defaultBranch"`
	Language      string     `json:"language,omitempty"`
	Topics        []string   `json:"topics"`
	Stars         int        `json:"stars"`
	OpenIssues    int        `json:"openIssues"`
	Archived      bool       `json:"archived"`
	PushedAt      *time.Time `json:"pushedAt,omitempty"`
}

func repoParam(ctx context.Context, p tool.Params) (string, error) {
	repo := p.String("repo", p.String("value", ""))
	if repo == "" {
		repo = tool.ScopeFrom(ctx).GitHubRepo
	}
	if repo == "" {
		return "", perrors.Invalid("repo is required (no GitHub repository linked)")
	}
	return repo, nil
}

func stateParam(p tool.Params, def string) (string, error) {
	state := strings.ToLower(p.String("state", def))
	switch state {
	case "open", "closed", "all":
		return state, nil
	}
	return "", perrors.Invalid("state %q must be open, closed or all", state)
}

func labelsParam(p tool.Params) []string {
	raw := p.String("labels", "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, l := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == '|' }) {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func encode(name string, v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%s: encode: %w", name, err)
	}
	return string(b), nil
}

// IssuesTool lists repository issues.
type IssuesTool struct{ svc *Service }

// NewIssuesTool creates the github_issues tool.
func NewIssuesTool(svc *Service) *IssuesTool { return &IssuesTool{svc: svc} }

func (t *IssuesTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "github_issues",
		Description: "List GitHub issues (pull requests excluded). Defaults to the project's repository and open issues.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"repo":   "Repository as owner/name",
			"state":  "open (default), closed or all",
			"labels": "Comma-separated labels; issues must carry all of them",
			"limit":  "Maximum issues to return (1-100, default 20)",
		}),
	}
}

func (t *IssuesTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("github_issues: %v", err)
	}
	repo, err := repoParam(ctx, p)
	if err != nil {
		return "", err
	}
	state, err := stateParam(p, "open")
	if err != nil {
		return "", err
	}
	issues, err := t.svc.ListIssues(ctx, repo, state, labelsParam(p), p.Int("limit", 20, 100))
	if err != nil {
		return "", err
	}
	out := make([]IssueSummary, 0, len(issues))
	for _, is := range issues {
		out = append(out, SummarizeIssue(is))
	}
	return encode("github_issues", out)
}

// PullsTool lists pull requests.
type PullsTool struct{ svc *Service }

// NewPullsTool creates the github_pulls tool.
func NewPullsTool(svc *Service) *PullsTool { return &PullsTool{svc: svc} }

func (t *PullsTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "github_pulls",
		Description: "List GitHub pull requests, most recently updated first. Defaults to the project's repository and open PRs.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"repo":  "Repository as owner/name",
			"state": "open (default), closed or all",
			"limit": "Maximum pull requests to return (1-100, default 20)",
		}),
	}
}

func (t *PullsTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("github_pulls: %v", err)
	}
	repo, err := repoParam(ctx, p)
	if err != nil {
		return "", err
	}
	state, err := stateParam(p, "open")
	if err != nil {
		return "", err
	}
	prs, err := t.svc.ListPulls(ctx, repo, state, p.Int("limit", 20, 100))
	if err != nil {
		return "", err
	}
	out := make([]PullSummary, 0, len(prs))
	for _, pr := range prs {
		out = append(out, summarizePull(pr))
	}
	return encode("github_pulls", out)
}

// RepoTool describes a repository.
type RepoTool struct{ svc *Service }

// NewRepoTool creates the github_repo tool.
func NewRepoTool(svc *Service) *RepoTool { return &RepoTool{svc: svc} }

func (t *RepoTool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "github_repo",
		Description: "Describe a GitHub repository: default branch, language, topics, stars and open issue count.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"repo": "Repository as owner/name",
		}),
	}
}

func (t *RepoTool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("github_repo: %v", err)
	}
	repo, err := repoParam(ctx, p)
	if err != nil {
		return "", err
	}
	r, err := t.svc.GetRepo(ctx, repo)
	if err != nil {
		return "", err
	}
	s := RepoSummary{
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		URL:           r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Language:      r.GetLanguage(),
		Topics:        r.Topics,
		Stars:         r.GetStargazersCount(),
		OpenIssues:    r.GetOpenIssuesCount(),
		Archived:      r.GetArchived(),
	}
	if s.Topics == nil {
		s.Topics = []string{}
	}
	if r.PushedAt != nil {
		pushed := r.PushedAt.Time
		s.PushedAt = &pushed
	}
	return encode("github_repo", s)
}

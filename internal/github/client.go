package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v60/github"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/integration"
)

// CredentialSource resolves the current GitHub credentials.
type CredentialSource interface {
	Credentials(ctx context.Context, service string) (integration.ToolConfig, error)
}

// Service hands out go-github clients. A stored or env token wins; the App
// installation is the fallback.
type Service struct {
	creds      CredentialSource
	app        *AppAuth
	httpClient *http.Client
	apiBase    *url.URL
	logger     zerolog.Logger
}

// NewService creates a GitHub service. app may be nil.
func NewService(creds CredentialSource, app *AppAuth, logger zerolog.Logger) *Service {
	return &Service{
		creds:      creds,
		app:        app,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger.With().Str("component", "github").Logger(),
	}
}

// SetHTTPClient sets the HTTP client for API calls (for testing).
func (s *Service) SetHTTPClient(c *http.Client) { s.httpClient = c }

// SetAPIBase overrides the API root of every client (for testing).
func (s *Service) SetAPIBase(raw string) error {
	u, err := url.Parse(strings.TrimRight(raw, "/") + "/")
	if err != nil {
		return err
	}
	s.apiBase = u
	return nil
}

// Configured reports whether any auth method is available.
func (s *Service) Configured(ctx context.Context) bool {
	if s.app != nil {
		return true
	}
	_, err := s.creds.Credentials(ctx, integration.ServiceGitHub)
	return err == nil
}

// Client returns an authenticated client.
func (s *Service) Client(ctx context.Context) (*gh.Client, error) {
	cfg, err := s.creds.Credentials(ctx, integration.ServiceGitHub)
	var c *gh.Client
	switch {
	case err == nil:
		c = gh.NewClient(s.httpClient).WithAuthToken(cfg.Token)
		if cfg.BaseURL != "" {
			if c, err = c.WithEnterpriseURLs(cfg.BaseURL, cfg.BaseURL); err != nil {
				return nil, perrors.Invalid("github baseUrl: %v", err)
			}
		}
	case errors.Is(err, perrors.ErrNotConfigured) && s.app != nil:
		base := s.httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		c = gh.NewClient(&http.Client{
			Transport: &tokenTransport{app: s.app, base: base},
			Timeout:   s.httpClient.Timeout,
		})
	default:
		return nil, err
	}
	if s.apiBase != nil {
		c.BaseURL = s.apiBase
	}
	return c, nil
}

// wrapErr maps go-github errors onto buffr error kinds.
func wrapErr(op string, err error) error {
	var rl *gh.RateLimitError
	if errors.As(err, &rl) {
		return fmt.Errorf("%s: %w: resets %s", op, perrors.ErrRateLimit, rl.Rate.Reset.Format(time.RFC3339))
	}
	var abuse *gh.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return fmt.Errorf("%s: %w", op, perrors.ErrRateLimit)
	}
	var er *gh.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		return fmt.Errorf("%s: %w", op, perrors.NewAPIError("github", er.Response.StatusCode, er.Message))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ListIssues returns issues of repo, excluding pull requests.
// state is open, closed or all; labels filters by all given labels.
func (s *Service) ListIssues(ctx context.Context, repo, state string, labels []string, limit int) ([]*gh.Issue, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListByRepoOptions{
		State:       state,
		Labels:      labels,
		Sort:        "updated",
		ListOptions: gh.ListOptions{PerPage: min(limit*2, 100)},
	}
	out := make([]*gh.Issue, 0, limit)
	for len(out) < limit {
		page, resp, err := c.Issues.ListByRepo(ctx, owner, name, opts)
		if err != nil {
			return nil, wrapErr("listing issues of "+repo, err)
		}
		for _, is := range page {
			if is.IsPullRequest() {
				continue
			}
			out = append(out, is)
			if len(out) == limit {
				break
			}
		}
		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	s.logger.Debug().Str("repo", repo).Int("count", len(out)).Msg("listed issues")
	return out, nil
}

// ListPulls returns pull requests of repo, most recently updated first.
func (s *Service) ListPulls(ctx context.Context, repo, state string, limit int) ([]*gh.PullRequest, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	prs, _, err := c.PullRequests.List(ctx, owner, name, &gh.PullRequestListOptions{
		State:       state,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: limit},
	})
	if err != nil {
		return nil, wrapErr("listing pulls of "+repo, err)
	}
	return prs, nil
}

// GetRepo returns repository metadata.
func (s *Service) GetRepo(ctx context.Context, repo string) (*gh.Repository, error) {
	owner, name, err := splitRepo(repo)
	if err != nil {
		return nil, err
	}
	c, err := s.Client(ctx)
	if err != nil {
		return nil, err
	}
	r, _, err := c.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, wrapErr("getting "+repo, err)
	}
	return r, nil
}

func splitRepo(repo string) (string, string, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(repo), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", perrors.Invalid("repository %q must look like owner/name", repo)
	}
	return owner, name, nil
}

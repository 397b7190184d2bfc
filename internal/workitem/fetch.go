package workitem

import (
	"context"

	"github.com/p-blackswan/buffr/internal/github"
	"github.com/p-blackswan/buffr/internal/jira"
	"github.com/p-blackswan/buffr/internal/notion"
)

// Fetcher lists the open work items of one source ref.
type Fetcher interface {
	Fetch(ctx context.Context, ref string, limit int) ([]WorkItem, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, ref string, limit int) ([]WorkItem, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref string, limit int) ([]WorkItem, error) {
	return f(ctx, ref, limit)
}

// GitHubFetcher lists open issues of a repository.
func GitHubFetcher(svc *github.Service) Fetcher {
	return FetcherFunc(func(ctx context.Context, repo string, limit int) ([]WorkItem, error) {
		issues, err := svc.ListIssues(ctx, repo, "open", nil, limit)
		if err != nil {
			return nil, err
		}
		out := make([]WorkItem, 0, len(issues))
		for _, is := range issues {
			out = append(out, FromGitHub(repo, is))
		}
		return out, nil
	})
}

// NotionFetcher lists unfinished pages of a task database.
func NotionFetcher(svc *notion.Service) Fetcher {
	return FetcherFunc(func(ctx context.Context, databaseID string, limit int) ([]WorkItem, error) {
		pages, err := svc.Tasks(ctx, databaseID, false, limit)
		if err != nil {
			return nil, err
		}
		out := make([]WorkItem, 0, len(pages))
		for _, p := range pages {
			out = append(out, FromNotion(databaseID, p))
		}
		return out, nil
	})
}

// JiraFetcher lists unresolved issues of a project key.
func JiraFetcher(svc *jira.Service) Fetcher {
	return FetcherFunc(func(ctx context.Context, key string, limit int) ([]WorkItem, error) {
		c, _, err := svc.Client(ctx)
		if err != nil {
			return nil, err
		}
		res, err := c.SearchIssues(ctx, jira.OpenIssuesJQL(key), limit)
		if err != nil {
			return nil, err
		}
		out := make([]WorkItem, 0, len(res.Issues))
		for _, is := range res.Issues {
			out = append(out, FromJira(c, key, is))
		}
		return out, nil
	})
}

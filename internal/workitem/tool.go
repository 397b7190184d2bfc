package workitem

import (
	"context"
	"encoding/json"
	"fmt"

	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/project"
	"github.com/p-blackswan/buffr/internal/tool"
)

// ProjectSource looks up projects by id.
type ProjectSource interface {
	GetProject(ctx context.Context, id string) (*project.Project, error)
}

// Tool is the work_items tool: the aggregated open items of a project.
type Tool struct {
	agg      *Aggregator
	projects ProjectSource
}

// NewTool creates the work_items tool.
func NewTool(agg *Aggregator, projects ProjectSource) *Tool {
	return &Tool{agg: agg, projects: projects}
}

func (t *Tool) Schema() tool.Schema {
	return tool.Schema{
		Name:        "work_items",
		Description: "Open issues and tasks across the project's GitHub, Notion and Jira sources, normalized to {id,title,status,url,source,labels}.",
		InputSchema: tool.ObjectSchema(map[string]string{
			"project": "Project id; defaults to the current project",
			"source":  "Only items of this source: github, notion or jira",
			"limit":   "Maximum items to return (1-100, default 50)",
		}),
	}
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (string, error) {
	p, err := tool.DecodeParams(input)
	if err != nil {
		return "", perrors.Invalid("work_items: %v", err)
	}
	id := p.String("project", p.String("value", tool.ScopeFrom(ctx).ProjectID))
	if id == "" {
		return "", perrors.Invalid("work_items: project is required outside a project")
	}
	source := p.String("source", "")
	switch source {
	case "", project.SourceGitHub, project.SourceNotion, project.SourceJira:
	default:
		return "", perrors.Invalid("work_items: source %q must be github, notion or jira", source)
	}

	proj, err := t.projects.GetProject(ctx, id)
	if err != nil {
		return "", err
	}
	res, err := t.agg.Aggregate(ctx, proj)
	if err != nil {
		return "", err
	}

	limit := p.Int("limit", 50, 100)
	items := make([]WorkItem, 0, min(limit, len(res.Items)))
	for _, it := range res.Items {
		if source != "" && it.Source != source {
			continue
		}
		if len(items) == limit {
			break
		}
		items = append(items, it)
	}
	res.Items = items

	b, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("work_items: encode: %w", err)
	}
	return string(b), nil
}

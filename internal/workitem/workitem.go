// Package workitem normalizes GitHub issues, Notion pages and Jira issues
// into one shape and aggregates them per project.
package workitem

import (
	"strconv"
	"strings"

	gh "github.com/google/go-github/v60/github"

	"github.com/p-blackswan/buffr/internal/github"
	"github.com/p-blackswan/buffr/internal/jira"
	"github.com/p-blackswan/buffr/internal/notion"
	"github.com/p-blackswan/buffr/internal/project"
)

// WorkItem is an open issue or task from any source.
type WorkItem struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Status string   `json:"status"`
	URL    string   `json:"url"`
	Source string   `json:"source"`
	Ref    string   `json:"ref,omitempty"`
	Labels []string `json:"labels"`
}

// HasLabel reports whether the item carries any of names, ignoring case.
func (w WorkItem) HasLabel(names ...string) bool {
	for _, l := range w.Labels {
		for _, n := range names {
			if strings.EqualFold(strings.TrimSpace(l), n) {
				return true
			}
		}
	}
	return false
}

// FromGitHub normalizes an issue of repo. IDs look like owner/name#12.
func FromGitHub(repo string, is *gh.Issue) WorkItem {
	return WorkItem{
		ID:     repo + "#" + strconv.Itoa(is.GetNumber()),
		Title:  is.GetTitle(),
		Status: is.GetState(),
		URL:    is.GetHTMLURL(),
		Source: project.SourceGitHub,
		Ref:    repo,
		Labels: github.LabelNames(is.Labels),
	}
}

// FromNotion normalizes a database page.
func FromNotion(databaseID string, o notion.Object) WorkItem {
	status := o.Status()
	if status == "" {
		status = "open"
	}
	return WorkItem{
		ID:     o.ID,
		Title:  o.GetTitle(),
		Status: status,
		URL:    o.URL,
		Source: project.SourceNotion,
		Ref:    databaseID,
		Labels: o.Labels(),
	}
}

// FromJira normalizes an issue. Bugs get a "bug" label so they rank like
// labelled GitHub bugs.
func FromJira(c *jira.Client, projectKey string, is jira.Issue) WorkItem {
	s := jira.Summarize(c, is)
	labels := s.Labels
	if strings.EqualFold(s.Type, "bug") && !hasFold(labels, "bug") {
		labels = append(append([]string{}, labels...), "bug")
	}
	return WorkItem{
		ID:     s.Key,
		Title:  s.Title,
		Status: s.Status,
		URL:    s.URL,
		Source: project.SourceJira,
		Ref:    projectKey,
		Labels: labels,
	}
}

func hasFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

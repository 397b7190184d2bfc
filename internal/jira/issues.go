package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Issue represents a Jira issue.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains Jira issue field data.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"` // Atlassian Document Format
	Status      *Status         `json:"status,omitempty"`
	Assignee    *User           `json:"assignee,omitempty"`
	IssueType   *IssueType      `json:"issuetype,omitempty"`
	Priority    *Priority       `json:"priority,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	Updated     string          `json:"updated,omitempty"`
}

type Status struct {
	Name           string          `json:"name"`
	ID             string          `json:"id"`
	StatusCategory *StatusCategory `json:"statusCategory,omitempty"`
}

// StatusCategory key is one of "new", "indeterminate", "done".
type StatusCategory struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
}

type IssueType struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

type Priority struct {
	Name string `json:"name"`
	ID   string `json:"id,omitempty"`
}

// SearchResult contains JQL search results.
type SearchResult struct {
	Issues        []Issue `json:"issues"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	IsLast        bool    `json:"isLast"`
}

var searchFields = []string{"summary", "status", "assignee", "priority", "labels", "issuetype", "updated"}

// SearchIssues runs a JQL query.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) (*SearchResult, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     searchFields,
	})

	var result SearchResult
	if err := c.do(ctx, "POST", "/rest/api/3/search/jql", body, &result); err != nil {
		return nil, fmt.Errorf("searching issues: %w", err)
	}
	if result.Issues == nil {
		result.Issues = []Issue{}
	}
	return &result, nil
}

// GetIssue returns a single issue by key.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	var issue Issue
	path := "/rest/api/3/issue/" + url.PathEscape(key) + "?fields=" + strings.Join(append(searchFields, "description"), ",")
	if err := c.do(ctx, "GET", path, nil, &issue); err != nil {
		return nil, fmt.Errorf("getting issue %s: %w", key, err)
	}
	return &issue, nil
}

var (
	projectKeyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,19}$`)
	issueKeyPattern   = regexp.MustCompile(`^[A-Z][A-Z0-9_]{0,19}-[0-9]+$`)
)

// ValidProjectKey reports whether key looks like a Jira project key.
func ValidProjectKey(key string) bool { return projectKeyPattern.MatchString(key) }

// ValidIssueKey reports whether key looks like a Jira issue key.
func ValidIssueKey(key string) bool { return issueKeyPattern.MatchString(key) }

// OpenIssuesJQL selects unresolved issues of a project, most recently updated first.
func OpenIssuesJQL(projectKey string) string {
	return fmt.Sprintf(`project = "%s" AND statusCategory != Done ORDER BY updated DESC`, projectKey)
}

// StatusFilterJQL builds the JQL for a status filter: open, done or all.
func StatusFilterJQL(projectKey, status string) string {
	switch status {
	case "all":
		return fmt.Sprintf(`project = "%s" ORDER BY updated DESC`, projectKey)
	case "done":
		return fmt.Sprintf(`project = "%s" AND statusCategory = Done ORDER BY updated DESC`, projectKey)
	default:
		return OpenIssuesJQL(projectKey)
	}
}

// PlainText flattens an Atlassian Document Format value to text.
func PlainText(adf json.RawMessage) string {
	if len(adf) == 0 || string(adf) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(adf, &s) == nil {
		return s
	}
	var node adfNode
	if err := json.Unmarshal(adf, &node); err != nil {
		return ""
	}
	var b strings.Builder
	node.write(&b)
	return strings.TrimSpace(b.String())
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

func (n adfNode) write(b *strings.Builder) {
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
	case "hardBreak":
		b.WriteString("\n")
	}
	for _, child := range n.Content {
		child.write(b)
	}
	switch n.Type {
	case "paragraph", "heading", "listItem", "codeBlock", "blockquote":
		b.WriteString("\n")
	}
}

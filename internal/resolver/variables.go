// Package resolver expands prompt templates in two phases: context
// variables such as {{project.name}}, then {{tool:name:params}} calls.
package resolver

import (
	"regexp"
	"strings"
	"time"

	"github.com/p-blackswan/buffr/internal/project"
)

// Context is the data phase one reads variables from. Nil fields resolve to
// empty strings.
type Context struct {
	Project     *project.Project
	LastSession *project.Session
	Now         time.Time
}

var variablePattern = regexp.MustCompile(`\{\{\s*([A-Za-z]+)\.([A-Za-z]+)\s*\}\}`)

// ResolveVariables substitutes project, lastSession and now variables.
// Unknown namespaces are left verbatim; substituted values are not
// scanned again.
func ResolveVariables(tmpl string, vc Context) string {
	out, _ := resolveVariables(tmpl, vc)
	return out
}

// span is a byte range [start, end) of resolved text.
type span struct{ start, end int }

func (s span) contains(i int) bool { return i >= s.start && i < s.end }

// resolveVariables also reports where each substituted value sits in the
// output so the tool phase can leave tokens inside values alone.
func resolveVariables(tmpl string, vc Context) (string, []span) {
	if vc.Now.IsZero() {
		vc.Now = time.Now().UTC()
	}
	matches := variablePattern.FindAllStringSubmatchIndex(tmpl, -1)
	if len(matches) == 0 {
		return tmpl, nil
	}

	var (
		b     strings.Builder
		spans []span
		last  int
	)
	for _, m := range matches {
		b.WriteString(tmpl[last:m[0]])
		last = m[1]

		var value string
		switch ns, field := tmpl[m[2]:m[3]], tmpl[m[4]:m[5]]; ns {
		case "project":
			value = projectField(vc.Project, field)
		case "lastSession":
			value = sessionField(vc.LastSession, field)
		case "now":
			value = nowField(vc.Now, field)
		default:
			b.WriteString(tmpl[m[0]:m[1]])
			continue
		}
		if value != "" {
			spans = append(spans, span{start: b.Len(), end: b.Len() + len(value)})
		}
		b.WriteString(value)
	}
	b.WriteString(tmpl[last:])
	return b.String(), spans
}

func projectField(p *project.Project, field string) string {
	if p == nil {
		return ""
	}
	switch field {
	case "id":
		return p.ID
	case "name":
		return p.Name
	case "stack":
		return p.Stack
	case "phase":
		return string(p.Phase)
	case "githubRepo":
		return p.GitHubRepo
	case "plan":
		return p.Plan
	case "dataSources":
		refs := make([]string, 0, len(p.DataSources))
		for _, ds := range p.DataSources {
			refs = append(refs, ds.Type+":"+ds.Ref)
		}
		return strings.Join(refs, ", ")
	}
	return ""
}

func sessionField(s *project.Session, field string) string {
	if s == nil {
		return ""
	}
	switch field {
	case "goal":
		return s.Goal
	case "whatChanged":
		lines := make([]string, 0, len(s.WhatChanged))
		for _, c := range s.WhatChanged {
			lines = append(lines, "- "+c)
		}
		return strings.Join(lines, "\n")
	case "nextStep":
		return s.NextStep
	case "blockers":
		return s.Blockers
	case "detectedIntent":
		return s.DetectedIntent
	case "suggestedNextStep":
		return s.SuggestedNextStep
	case "createdAt":
		if s.CreatedAt.IsZero() {
			return ""
		}
		return s.CreatedAt.UTC().Format(time.RFC3339)
	}
	return ""
}

func nowField(now time.Time, field string) string {
	switch field {
	case "date":
		return now.Format("2006-01-02")
	case "time":
		return now.Format(time.RFC3339)
	}
	return ""
}

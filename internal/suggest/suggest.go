// Package suggest derives next actions and dismissible suggestions for a
// project from its sessions and open work items.
package suggest

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/p-blackswan/buffr/internal/project"
	"github.com/p-blackswan/buffr/internal/workitem"
)

// Priority orders items; high sorts first.
type Priority string

const (
	High   Priority = "high"
	Medium Priority = "medium"
	Low    Priority = "low"
)

func (p Priority) rank() int {
	switch p {
	case High:
		return 0
	case Medium:
		return 1
	}
	return 2
}

// Max is the length of both lists.
const Max = 5

const (
	staleDays         = 7
	veryStaleDays     = 14
	maxWorkItems      = 3
	backlogSize       = 10
	sessionsToAdvance = 5
	maxTitleLen       = 120
)

// Suggestion ids.
const (
	ConnectGitHub    = "connect-github"
	AddDataSource    = "add-data-source"
	WritePlan        = "write-plan"
	TriageBacklog    = "triage-backlog"
	RecurringBlocker = "recurring-blocker"
	AdvancePhase     = "advance-phase"
	ResumeWork       = "resume-work"
)

// Item is a next action or a suggestion. Suggestions carry an ID.
type Item struct {
	ID       string   `json:"id,omitempty"`
	Title    string   `json:"title"`
	Detail   string   `json:"detail,omitempty"`
	Priority Priority `json:"priority"`
	URL      string   `json:"url,omitempty"`

	rule int
}

var urgentLabels = []string{"bug", "urgent", "blocker", "critical"}

var phaseDefaults = map[project.Phase]string{
	project.PhaseIdea:   "Write a plan",
	project.PhaseMVP:    "Ship the core loop",
	project.PhasePolish: "Fix rough edges",
	project.PhaseDeploy: "Ship it",
}

// NextActions returns at most Max actions for p.
func NextActions(p *project.Project, sessions []*project.Session, items []workitem.WorkItem, now time.Time) []Item {
	var out []Item
	add := func(rule int, pr Priority, title, detail, url string) {
		out = append(out, Item{Title: clip(title), Detail: detail, Priority: pr, URL: url, rule: rule})
	}

	last := latest(sessions)
	if last == nil {
		add(1, High, "Log your first session", "Record what you are working on so buffr can pick up from there.", "")
	} else {
		if last.NextStep != "" {
			add(2, High, "Continue: "+firstLine(last.NextStep), "", "")
		}
		if last.Blockers != "" {
			add(3, High, "Unblock: "+firstLine(last.Blockers), "", "")
		}
		if s := strings.TrimSpace(last.SuggestedNextStep); s != "" && normalize(s) != normalize(last.NextStep) {
			add(4, Medium, s, "Suggested from your last session", "")
		}
		if days := daysSince(last.CreatedAt, now); days >= veryStaleDays {
			add(5, High, "Pick back up "+p.Name, fmt.Sprintf("Last session was %d days ago", days), "")
		} else if days >= staleDays {
			add(5, Medium, "Pick back up "+p.Name, fmt.Sprintf("Last session was %d days ago", days), "")
		}
	}

	for _, it := range pickWorkItems(items) {
		if it.HasLabel(urgentLabels...) {
			add(6, High, "Fix: "+it.Title, it.Source+" "+it.ID, it.URL)
		} else {
			add(6, Medium, "Work on: "+it.Title, it.Source+" "+it.ID, it.URL)
		}
	}

	if def, ok := phaseDefaults[p.Phase]; ok {
		add(7, Low, def, "Default step for the "+string(p.Phase)+" phase", "")
	}
	return finish(out)
}

// Suggestions returns at most Max suggestions for p, skipping the ones p
// dismissed.
func Suggestions(p *project.Project, sessions []*project.Session, items []workitem.WorkItem, now time.Time) []Item {
	var out []Item
	add := func(rule int, id string, pr Priority, title, detail string) {
		if p.Dismissed(id) {
			return
		}
		out = append(out, Item{ID: id, Title: title, Detail: detail, Priority: pr, rule: rule})
	}

	if !hasGitHub(p) {
		add(1, ConnectGitHub, Medium, "Connect a GitHub repository", "Link owner/name to pull issues into your work items.")
	}
	if len(p.DataSources) == 0 {
		add(2, AddDataSource, Low, "Add a data source", "Connect a Notion database or Jira project to track tasks.")
	}
	if (p.Phase == project.PhaseIdea || p.Phase == project.PhaseMVP) && strings.TrimSpace(p.Plan) == "" {
		add(3, WritePlan, Medium, "Write a plan", "A short plan makes the next sessions easier to start.")
	}
	if len(items) > backlogSize {
		add(4, TriageBacklog, High, "Triage the backlog", fmt.Sprintf("%d open items across your sources", len(items)))
	}

	ordered := byNewest(sessions)
	if len(ordered) >= 2 && ordered[0].Blockers != "" && ordered[1].Blockers != "" {
		add(5, RecurringBlocker, High, "Tackle the recurring blocker", "Your last two sessions both reported blockers.")
	}
	if p.Phase != project.PhaseDeploy {
		n := 0
		for _, s := range ordered {
			if s.Phase == p.Phase {
				n++
			}
		}
		if n >= sessionsToAdvance {
			add(6, AdvancePhase, Medium, "Move to "+string(p.Phase.Next()),
				fmt.Sprintf("%d sessions logged in the %s phase", n, p.Phase))
		}
	}
	if len(ordered) > 0 {
		if days := daysSince(ordered[0].CreatedAt, now); days >= staleDays {
			pr := Medium
			if days >= veryStaleDays {
				pr = High
			}
			add(7, ResumeWork, pr, "Resume work on "+p.Name, fmt.Sprintf("No session for %d days", days))
		}
	}
	return finish(out)
}

// finish dedupes by normalized title keeping the higher priority, sorts
// by priority then rule and truncates to Max.
func finish(items []Item) []Item {
	best := make(map[string]int)
	var kept []Item
	for _, it := range items {
		key := normalize(it.Title)
		if i, ok := best[key]; ok {
			if it.Priority.rank() < kept[i].Priority.rank() {
				kept[i] = it
			}
			continue
		}
		best[key] = len(kept)
		kept = append(kept, it)
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if ri, rj := kept[i].Priority.rank(), kept[j].Priority.rank(); ri != rj {
			return ri < rj
		}
		return kept[i].rule < kept[j].rule
	})
	if len(kept) > Max {
		kept = kept[:Max]
	}
	if kept == nil {
		kept = []Item{}
	}
	return kept
}

func pickWorkItems(items []workitem.WorkItem) []workitem.WorkItem {
	var urgent, rest []workitem.WorkItem
	for _, it := range items {
		if it.HasLabel(urgentLabels...) {
			urgent = append(urgent, it)
		} else {
			rest = append(rest, it)
		}
	}
	picked := append(urgent, rest...)
	if len(picked) > maxWorkItems {
		picked = picked[:maxWorkItems]
	}
	return picked
}

func hasGitHub(p *project.Project) bool {
	if p.GitHubRepo != "" {
		return true
	}
	for _, ds := range p.DataSources {
		if ds.Type == project.SourceGitHub {
			return true
		}
	}
	return false
}

func byNewest(sessions []*project.Session) []*project.Session {
	out := append([]*project.Session(nil), sessions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func latest(sessions []*project.Session) *project.Session {
	var last *project.Session
	for _, s := range sessions {
		if last == nil || s.CreatedAt.After(last.CreatedAt) {
			last = s
		}
	}
	return last
}

func daysSince(t, now time.Time) int {
	if t.IsZero() || now.Before(t) {
		return 0
	}
	return int(now.Sub(t) / (24 * time.Hour))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func clip(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxTitleLen-1]) + "…"
}

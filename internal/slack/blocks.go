package slack

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/slack-go/slack"

	"github.com/p-blackswan/buffr/internal/project"
)

// truncate shortens s to max runes, appending "…" if truncated.
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "…"
}

// RecapSummary returns the one-line fallback text of a session recap.
func RecapSummary(p *project.Project, s *project.Session) string {
	return fmt.Sprintf("%s: %s", p.Name, truncate(s.Goal, 80))
}

// BuildRecapBlocks renders a logged session as Block Kit blocks.
func BuildRecapBlocks(p *project.Project, s *project.Session) []slack.Block {
	header := fmt.Sprintf("*%s* · %s", p.Name, p.Phase)
	if p.GitHubRepo != "" {
		header += fmt.Sprintf(" · <https://github.com/%s|%s>", p.GitHubRepo, p.GitHubRepo)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Goal:* %s\n", truncate(s.Goal, 300))
	if len(s.WhatChanged) > 0 {
		b.WriteString("*What changed:*\n")
		for i, c := range s.WhatChanged {
			if i == 8 {
				fmt.Fprintf(&b, "• …and %d more\n", len(s.WhatChanged)-i)
				break
			}
			fmt.Fprintf(&b, "• %s\n", truncate(c, 200))
		}
	}
	if s.Blockers != "" {
		fmt.Fprintf(&b, "*Blockers:* %s\n", truncate(s.Blockers, 300))
	}

	next := s.NextStep
	if next == "" {
		next = s.SuggestedNextStep
	}

	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", header, false, false), nil, nil),
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", strings.TrimRight(b.String(), "\n"), false, false), nil, nil),
	}
	if next != "" {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "*Next:* "+truncate(next, 300), false, false), nil, nil))
	}
	blocks = append(blocks, slack.NewContextBlock("",
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("intent: %s · %s", s.DetectedIntent, s.CreatedAt.UTC().Format("2006-01-02 15:04 UTC")), false, false),
	))
	return blocks
}

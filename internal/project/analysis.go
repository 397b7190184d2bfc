package project

import (
	"regexp"
	"strings"
)

// Session intents.
const (
	IntentBugfix   = "bugfix"
	IntentFeature  = "feature"
	IntentRefactor = "refactor"
	IntentTesting  = "testing"
	IntentDeploy   = "deploy"
	IntentDocs     = "docs"
	IntentResearch = "research"
	IntentGeneral  = "general"
)

type intentRule struct {
	intent string
	words  *regexp.Regexp
}

// Order breaks ties: the first rule with the highest score wins.
var intentRules = []intentRule{
	{IntentBugfix, wordsRe("fix", "fixed", "fixes", "bug", "bugs", "crash", "error", "broken", "regression", "hotfix", "issue")},
	{IntentDeploy, wordsRe("deploy", "deployed", "release", "released", "ship", "shipped", "launch", "rollout", "ci", "pipeline", "prod", "production")},
	{IntentTesting, wordsRe("test", "tests", "testing", "spec", "coverage", "e2e", "unit", "integration")},
	{IntentRefactor, wordsRe("refactor", "refactored", "cleanup", "clean", "restructure", "rename", "simplify", "extract", "tidy")},
	{IntentDocs, wordsRe("doc", "docs", "documentation", "readme", "guide", "changelog", "comment", "comments")},
	{IntentResearch, wordsRe("research", "investigate", "investigated", "explore", "explored", "spike", "prototype", "evaluate", "compare", "learn")},
	{IntentFeature, wordsRe("add", "added", "implement", "implemented", "build", "built", "feature", "new", "create", "created", "support")},
}

func wordsRe(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(` + strings.Join(words, "|") + `)\b`)
}

// DetectIntent classifies a session by keyword counts over its goal and changes.
func DetectIntent(goal string, whatChanged []string) string {
	text := strings.ToLower(goal + "\n" + strings.Join(whatChanged, "\n"))
	best, bestScore := IntentGeneral, 0
	for _, r := range intentRules {
		score := len(r.words.FindAllStringIndex(text, -1))
		if score > bestScore {
			best, bestScore = r.intent, score
		}
	}
	return best
}

// SuggestNextStep proposes a follow-up for a session. Blockers take precedence.
func SuggestNextStep(intent, blockers string) string {
	if b := strings.TrimSpace(blockers); b != "" {
		return "Resolve blocker: " + firstLine(b)
	}
	switch intent {
	case IntentBugfix:
		return "Add a regression test for the fix"
	case IntentFeature:
		return "Write tests covering the new feature"
	case IntentRefactor:
		return "Run the full test suite to confirm behavior is unchanged"
	case IntentTesting:
		return "Fix any failures the new tests surfaced"
	case IntentDeploy:
		return "Verify the deployment and watch for errors"
	case IntentDocs:
		return "Have someone review the updated docs"
	case IntentResearch:
		return "Write down findings and decide on an approach"
	default:
		return "Pick the next item from the backlog"
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	r := []rune(strings.TrimSpace(s))
	if len(r) > 120 {
		return string(r[:117]) + "..."
	}
	return string(r)
}

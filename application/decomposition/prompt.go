package decomposition

import (
	"fmt"
	"strings"

	"north-backend/domain/tree"
)

// snippetsPerResult caps how many items of one research result reach the
// prompt.
const snippetsPerResult = 3

// SlotBudget is how many more ideal states one pass may propose. Items added
// earlier in the same run are given back so they are not counted twice.
func SlotBudget(maxItems, existing, added int) int {
	return max(0, maxItems-existing+added)
}

// PromptInput is the tree slice a single pass sees.
type PromptInput struct {
	Goal     *tree.Goal
	Added    map[string]bool
	Slots    int
	Pass     int
	Language string
}

// BuildPrompt renders the decomposition instruction for one pass.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Goal: %q\n", in.Goal.Content)
	b.WriteString("Current Ideal States:\n")
	if len(in.Goal.IdealStates) == 0 {
		b.WriteString("(none)\n")
	}
	for _, ideal := range in.Goal.IdealStates {
		tag := "(existing)"
		if in.Added[ideal.ID] {
			tag = "(added in previous pass)"
		}
		fmt.Fprintf(&b, "- [%s] %q %s\n", ideal.ID, ideal.Content, tag)
	}

	b.WriteString("\nResearch Context (Use this to inform your decomposition and suggestions):\n")
	if lines := researchContext(in.Goal); len(lines) > 0 {
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n")
	} else {
		b.WriteString("(No research results available)\n")
	}

	b.WriteString("\n")
	if in.Pass == 0 {
		b.WriteString("Initial evaluation: decide whether to keep or modify each existing ideal state, and add what is missing.\n")
	} else {
		fmt.Fprintf(&b, "Re-evaluation (pass %d): reconsider the previous proposal and improve it.\n", in.Pass+1)
	}

	fmt.Fprintf(&b, "\nRemaining slots for additions: %d\n", in.Slots)

	b.WriteString("\nAvailable research sources:\n")
	b.WriteString("- openalex: Academic papers (general)\n")
	b.WriteString("- semantic_scholar: Academic papers with citation analysis\n")
	b.WriteString("- arxiv: Preprints (physics, CS, math, etc.)\n")
	b.WriteString("- pubmed: Biomedical literature\n")
	b.WriteString("- wikipedia: Encyclopedia\n")
	b.WriteString("- reddit: Community discussions\n")
	b.WriteString("- sciencedaily, phys_org, mit_tech_review, ieee_spectrum, frontiers, hackaday: Tech news\n")

	b.WriteString(`
Return JSON:
{
  "existing": [
    { "id": "element-id", "action": "keep" | "modify", "newContent": "modified text if action is modify" }
  ],
  "additions": [
    {
      "ideal": "ideal state",
      "current": "current state",
      "condition": "achievement condition",
      "research": { "source": "arxiv", "keywords": ["keyword1", "keyword2"] }
    }
  ]
}
`)

	b.WriteString("\nRules:\n")
	b.WriteString("- For each existing ideal state: \"keep\" or \"modify\" (with newContent)\n")
	fmt.Fprintf(&b, "- additions: up to %d new ideal states with current state, condition, and research spec\n", in.Slots)
	fmt.Fprintf(&b, "- research.source: one of %s\n", sourceList())
	b.WriteString("- research.keywords: 2-3 specific keywords for searching\n")
	b.WriteString("- Ensure all elements are specific and actionable\n")
	b.WriteString("- Use the Research Context to verify feasibility or find better phrasing\n")
	if in.Language != "" {
		fmt.Fprintf(&b, "- Write all text values in %s\n", in.Language)
	}
	b.WriteString("- Output JSON only\n")

	return b.String()
}

func researchContext(goal *tree.Goal) []string {
	var lines []string
	for _, ideal := range goal.IdealStates {
		for _, res := range ideal.ResearchResults {
			items := res.Results
			if len(items) > snippetsPerResult {
				items = items[:snippetsPerResult]
			}
			for _, item := range items {
				snippet := item.Snippet
				if snippet == "" {
					snippet = "No snippet"
				}
				lines = append(lines, fmt.Sprintf("- (Source: %s) [Relates to: %q]: %s - %s",
					res.Source, ideal.Content, item.Title, snippet))
			}
		}
	}
	return lines
}

func sourceList() string {
	names := make([]string, len(tree.KnownSources))
	for i, s := range tree.KnownSources {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}

package refinement

import (
	"fmt"
	"strings"

	"north-backend/domain/tree"
)

const unspecified = "(Unspecified)"

func textOf(node *tree.TextNode) string {
	if node == nil || node.Content == "" {
		return unspecified
	}
	return node.Content
}

func reasonRules(language string) string {
	return fmt.Sprintf(
		"You MUST write the reason for keeping and the reason for changing in %s.\n"+
			"Do NOT include a translation or an explanation in any other language for the reasons.\n",
		language)
}

// idealPrompt asks for all three fields of an ideal state at once.
func idealPrompt(ideal *tree.IdealState, instruction, language string) string {
	var b strings.Builder
	b.WriteString("Target Element: Ideal State\n")
	fmt.Fprintf(&b, "- Content (Ideal State): %q\n", ideal.Content)
	fmt.Fprintf(&b, "- Current State: %q\n", textOf(ideal.CurrentState))
	fmt.Fprintf(&b, "- Condition: %q\n", textOf(ideal.Condition))
	fmt.Fprintf(&b, "\nUser Instruction: %q\n", instruction)
	b.WriteString("\nTask:\n")
	b.WriteString("Analyze the Ideal State, Current State, and Condition together. ")
	b.WriteString("Propose a refined version of ALL three fields based on the user's instruction.\n")
	b.WriteString("Even if a field does not need changing, you must provide the text (original or refined).\n")
	b.WriteString(reasonRules(language))
	b.WriteString(`
Output JSON:
{
  "refinedIdealState": "Refined content string",
  "refinedCurrentState": "Refined current state string (or empty if not applicable)",
  "refinedCondition": "Refined condition string (or empty if not applicable)",
  "reasonToKeep": "reason for keeping",
  "reasonToChange": "reason for changing"
}
`)
	return b.String()
}

// goalPrompt uses the suggestions-list shape.
func goalPrompt(goal *tree.Goal, instruction, language string) string {
	var b strings.Builder
	b.WriteString("Target Elements:\n")
	fmt.Fprintf(&b, "- Goal Content (content): %q\n", goal.Content)
	fmt.Fprintf(&b, "\nUser Instruction: %q\n", instruction)
	b.WriteString("\nTask:\n")
	b.WriteString("Analyze the target elements and the instruction. Propose refined versions for each relevant field.\n")
	b.WriteString(reasonRules(language))
	b.WriteString(`
Output JSON:
{
  "suggestions": [
    {
      "field": "content",
      "value": "Refined content string",
      "keepReason": "reason for keeping",
      "changeReason": "reason for changing"
    }
  ]
}
`)
	return b.String()
}

package prp

import (
	"fmt"
	"strings"
)

// Filename returns the markdown file name an artifact is stored under in
// a session's prps/ directory.
func Filename(taskID string) string {
	return taskID + ".md"
}

// Render produces the markdown form of the artifact written next to the
// session. The layout is deterministic so repeated renders of the same
// artifact are byte-identical.
func Render(a *Artifact) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# PRP: %s\n\n", a.TaskID)

	b.WriteString("## Objective\n\n")
	b.WriteString(strings.TrimSpace(a.Objective))
	b.WriteString("\n\n")

	if strings.TrimSpace(a.Context) != "" {
		b.WriteString("## Context\n\n")
		b.WriteString(strings.TrimSpace(a.Context))
		b.WriteString("\n\n")
	}

	if len(a.ImplementationSteps) > 0 {
		b.WriteString("## Implementation Steps\n\n")
		for i, step := range a.ImplementationSteps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, strings.TrimSpace(step))
		}
		b.WriteString("\n")
	}

	if len(a.ValidationGates) > 0 {
		b.WriteString("## Validation Gates\n\n")
		for _, g := range a.GatesInOrder() {
			fmt.Fprintf(&b, "### Gate %d: %s\n\n", g.Level, strings.TrimSpace(g.Description))
			if g.Runnable() {
				fmt.Fprintf(&b, "```sh\n%s\n```\n\n", g.Command)
			} else {
				b.WriteString("Manual verification.\n\n")
			}
		}
	}

	if len(a.SuccessCriteria) > 0 {
		b.WriteString("## Success Criteria\n\n")
		for _, c := range a.SuccessCriteria {
			mark := " "
			if c.Satisfied {
				mark = "x"
			}
			fmt.Fprintf(&b, "- [%s] %s\n", mark, strings.TrimSpace(c.Description))
		}
		b.WriteString("\n")
	}

	if len(a.References) > 0 {
		b.WriteString("## References\n\n")
		for _, r := range a.References {
			fmt.Fprintf(&b, "- %s\n", strings.TrimSpace(r))
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

package backlog

import (
	"fmt"
	"strings"
)

// contractPrefix opens every contract definition block.
const contractPrefix = "CONTRACT DEFINITION:"

// contractSections are the four required section headers, in order.
var contractSections = [4]string{
	"1. RESEARCH NOTE:",
	"2. INPUT:",
	"3. LOGIC:",
	"4. OUTPUT:",
}

// Contract is the parsed form of a subtask's contextScope. Each field
// holds the trimmed body of the corresponding numbered section.
type Contract struct {
	ResearchNote string
	Input        string
	Logic        string
	Output       string
}

// ParseContract parses a contract definition block. The block must start
// with the literal prefix "CONTRACT DEFINITION:" and contain the four
// numbered sections in order; a section with an empty body is invalid.
func ParseContract(raw string) (Contract, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Contract{}, fmt.Errorf("contract: empty contextScope")
	}
	if !strings.HasPrefix(text, contractPrefix) {
		return Contract{}, fmt.Errorf("contract: missing %q prefix", contractPrefix)
	}
	rest := text[len(contractPrefix):]

	// Locate all four headers first so out-of-order blocks fail with a
	// positional message instead of a misleading empty-section error.
	offsets := [4]int{}
	cursor := 0
	for i, header := range contractSections {
		idx := strings.Index(rest[cursor:], header)
		if idx < 0 {
			return Contract{}, fmt.Errorf("contract: section %q missing or out of order", header)
		}
		offsets[i] = cursor + idx
		cursor = offsets[i] + len(header)
	}

	bodies := [4]string{}
	for i, header := range contractSections {
		start := offsets[i] + len(header)
		end := len(rest)
		if i+1 < len(contractSections) {
			end = offsets[i+1]
		}
		body := strings.TrimSpace(rest[start:end])
		if body == "" {
			return Contract{}, fmt.Errorf("contract: section %q has no content", header)
		}
		bodies[i] = body
	}

	return Contract{
		ResearchNote: bodies[0],
		Input:        bodies[1],
		Logic:        bodies[2],
		Output:       bodies[3],
	}, nil
}

// FormatContract renders a Contract back into the canonical block form.
// It is the inverse of ParseContract for well-formed contracts and is
// what the planner emits when a PRD does not carry an explicit block.
func FormatContract(c Contract) string {
	var b strings.Builder
	b.WriteString(contractPrefix)
	b.WriteString("\n")
	parts := [4]string{c.ResearchNote, c.Input, c.Logic, c.Output}
	for i, header := range contractSections {
		b.WriteString(header)
		b.WriteString(" ")
		b.WriteString(strings.TrimSpace(parts[i]))
		b.WriteString("\n")
	}
	return b.String()
}

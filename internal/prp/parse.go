package prp

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var (
	titleRe     = regexp.MustCompile(`^# PRP:\s*(.+?)\s*$`)
	sectionRe   = regexp.MustCompile(`^##\s+(.+?)\s*$`)
	gateRe      = regexp.MustCompile(`^###\s+Gate\s+(\d+)\s*:\s*(.+?)\s*$`)
	stepRe      = regexp.MustCompile(`^\d+\.\s+(.+?)\s*$`)
	criterionRe = regexp.MustCompile(`^-\s+\[([ x])\]\s+(.+?)\s*$`)
	refRe       = regexp.MustCompile(`^-\s+(.+?)\s*$`)
)

// ParseFile reads a rendered PRP markdown file back into an artifact.
func ParseFile(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prp: %w", err)
	}
	return Parse(data)
}

// Parse inverts Render. Gates come back in file order, which for a
// rendered artifact is level order; non-runnable gates are restored as
// manual since the two render identically.
func Parse(data []byte) (*Artifact, error) {
	a := &Artifact{}
	var (
		section string
		prose   []string
		gate    *ValidationGate
		inFence bool
		fence   []string
	)

	flushProse := func() {
		text := strings.TrimSpace(strings.Join(prose, "\n"))
		prose = prose[:0]
		switch section {
		case "Objective":
			a.Objective = text
		case "Context":
			a.Context = text
		}
	}
	closeGate := func() {
		if gate != nil {
			a.ValidationGates = append(a.ValidationGates, *gate)
			gate = nil
		}
	}

	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimRight(raw, " \t")

		if inFence {
			if strings.HasPrefix(line, "```") {
				gate.Command = strings.Join(fence, "\n")
				inFence = false
				continue
			}
			fence = append(fence, raw)
			continue
		}

		if m := titleRe.FindStringSubmatch(line); m != nil && a.TaskID == "" {
			a.TaskID = m[1]
			continue
		}
		if m := gateRe.FindStringSubmatch(line); m != nil && section == "Validation Gates" {
			closeGate()
			level, _ := strconv.Atoi(m[1])
			gate = &ValidationGate{Level: level, Description: m[2]}
			continue
		}
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			flushProse()
			closeGate()
			section = m[1]
			switch section {
			case "Objective", "Context", "Implementation Steps",
				"Validation Gates", "Success Criteria", "References":
			default:
				return nil, fmt.Errorf("parse prp: unknown section %q", section)
			}
			continue
		}

		switch section {
		case "Objective", "Context":
			prose = append(prose, raw)
		case "Implementation Steps":
			if m := stepRe.FindStringSubmatch(line); m != nil {
				a.ImplementationSteps = append(a.ImplementationSteps, m[1])
			}
		case "Validation Gates":
			switch {
			case strings.HasPrefix(line, "```"):
				if gate == nil {
					return nil, fmt.Errorf("parse prp: command fence outside a gate")
				}
				inFence = true
				fence = fence[:0]
			case strings.TrimSpace(line) == "Manual verification." && gate != nil:
				gate.Manual = true
			}
		case "Success Criteria":
			if m := criterionRe.FindStringSubmatch(line); m != nil {
				a.SuccessCriteria = append(a.SuccessCriteria, SuccessCriterion{
					Description: m[2],
					Satisfied:   m[1] == "x",
				})
			}
		case "References":
			if m := refRe.FindStringSubmatch(line); m != nil {
				a.References = append(a.References, m[1])
			}
		}
	}
	if inFence {
		return nil, fmt.Errorf("parse prp: unterminated command fence")
	}
	flushProse()
	closeGate()

	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("parse prp: %w", err)
	}
	return a, nil
}

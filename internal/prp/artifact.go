// Package prp defines the research artifact model. A PRP (Product
// Requirement Prompt) is the per-subtask document a research agent
// produces and the implementation runtime consumes: objective, context,
// ordered implementation steps, four-level validation gates, and success
// criteria.
package prp

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Gate levels run in ascending order; level 4 is manual by convention.
const (
	GateLevelMin = 1
	GateLevelMax = 4
)

// Artifact is one generated research document, keyed by the subtask it
// belongs to. The JSON form is what agents return and what tests fixture.
type Artifact struct {
	TaskID              string             `json:"taskId"`
	Objective           string             `json:"objective"`
	Context             string             `json:"context"`
	ImplementationSteps []string           `json:"implementationSteps"`
	ValidationGates     []ValidationGate   `json:"validationGates"`
	SuccessCriteria     []SuccessCriterion `json:"successCriteria"`
	References          []string           `json:"references"`
}

// ValidationGate is one of the four ordered post-implementation checks.
// An empty command or Manual=true marks a gate that a human signs off;
// the runtime skips it.
type ValidationGate struct {
	Level       int    `json:"level"`
	Description string `json:"description"`
	Command     string `json:"command,omitempty"`
	Manual      bool   `json:"manual"`
}

// Runnable reports whether the runtime must execute and pass this gate.
func (g ValidationGate) Runnable() bool {
	return g.Command != "" && !g.Manual
}

// SuccessCriterion is a single checkable completion condition.
type SuccessCriterion struct {
	Description string `json:"description"`
	Satisfied   bool   `json:"satisfied"`
}

// Validate checks the structural rules of an artifact: a task id, a
// non-empty objective, and gate levels within [1,4].
func (a *Artifact) Validate() error {
	if strings.TrimSpace(a.TaskID) == "" {
		return fmt.Errorf("artifact: missing taskId")
	}
	if strings.TrimSpace(a.Objective) == "" {
		return fmt.Errorf("artifact %s: missing objective", a.TaskID)
	}
	for _, g := range a.ValidationGates {
		if g.Level < GateLevelMin || g.Level > GateLevelMax {
			return fmt.Errorf("artifact %s: gate level %d outside [%d,%d]",
				a.TaskID, g.Level, GateLevelMin, GateLevelMax)
		}
	}
	return nil
}

// GatesInOrder returns the validation gates sorted by ascending level,
// preserving declared order within a level.
func (a *Artifact) GatesInOrder() []ValidationGate {
	gates := make([]ValidationGate, len(a.ValidationGates))
	copy(gates, a.ValidationGates)
	sort.SliceStable(gates, func(i, j int) bool { return gates[i].Level < gates[j].Level })
	return gates
}

// FromJSON decodes and validates an artifact document.
func FromJSON(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("artifact: %w", err)
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return &a, nil
}

package agent

import (
	"context"
	"fmt"

	"prpforge/internal/backlog"
	"prpforge/internal/logging"
	"prpforge/internal/prp"
)

// StaticAgent generates artifacts offline, purely from the subtask
// contract. Every gate it emits is manual, so offline runs never
// execute commands the operator has not reviewed. Output is fully
// deterministic for a given subtask.
type StaticAgent struct{}

// NewStaticAgent returns the offline generator.
func NewStaticAgent() *StaticAgent { return &StaticAgent{} }

// Generate derives an artifact from the contract definition alone.
func (s *StaticAgent) Generate(_ context.Context, item backlog.Subtask, b backlog.Backlog) (*prp.Artifact, error) {
	contract, err := item.Contract()
	if err != nil {
		return nil, fmt.Errorf("agent: %s: %w", item.ID, err)
	}

	objective := contract.ResearchNote
	if objective == "" {
		objective = "Implement " + item.Title
	}

	ctxText := "Inputs in scope: " + contract.Input
	if path := pathTitles(b, item.ID); path != "" {
		ctxText = "Plan location: " + path + ". " + ctxText
	}

	artifact := &prp.Artifact{
		TaskID:    item.ID,
		Objective: objective,
		Context:   ctxText,
		ImplementationSteps: []string{
			"Review the inputs named by the contract: " + contract.Input,
			"Implement the contracted logic: " + contract.Logic,
			"Confirm the produced output matches: " + contract.Output,
		},
		ValidationGates: []prp.ValidationGate{
			{Level: 1, Description: "Syntax and style review of the change", Manual: true},
			{Level: 2, Description: "Unit coverage for: " + contract.Logic, Manual: true},
			{Level: 3, Description: "Integration check of: " + contract.Output, Manual: true},
			{Level: 4, Description: "Manual acceptance review", Manual: true},
		},
		SuccessCriteria: []prp.SuccessCriterion{
			{Description: "Produces " + contract.Output},
			{Description: "Honors the research note: " + contract.ResearchNote},
		},
		References: append([]string{}, item.Dependencies...),
	}

	logging.ResearchDebug("static artifact generated for %s", item.ID)
	return artifact, nil
}

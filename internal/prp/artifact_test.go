package prp

import (
	"strings"
	"testing"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		TaskID:    "P1.M1.T1.S1",
		Objective: "Implement the strict decoder.",
		Context:   "The registry file uses a closed schema.",
		ImplementationSteps: []string{
			"Define the node structs.",
			"Reject unknown fields.",
		},
		ValidationGates: []ValidationGate{
			{Level: 2, Description: "Unit tests", Command: "go test ./..."},
			{Level: 1, Description: "Build", Command: "go build ./..."},
			{Level: 4, Description: "Review by a maintainer", Manual: true},
			{Level: 3, Description: "Lint", Command: "golangci-lint run"},
		},
		SuccessCriteria: []SuccessCriterion{
			{Description: "Unknown fields rejected"},
			{Description: "Round trip is lossless", Satisfied: true},
		},
		References: []string{"docs/schema.md"},
	}
}

func TestValidate(t *testing.T) {
	a := sampleArtifact()
	if err := a.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	missing := *a
	missing.TaskID = "  "
	if err := missing.Validate(); err == nil {
		t.Error("missing taskId accepted")
	}

	noObjective := *a
	noObjective.Objective = ""
	if err := noObjective.Validate(); err == nil {
		t.Error("missing objective accepted")
	}

	badLevel := *a
	badLevel.ValidationGates = []ValidationGate{{Level: 5, Description: "x", Command: "true"}}
	if err := badLevel.Validate(); err == nil {
		t.Error("gate level 5 accepted")
	}
}

func TestGatesInOrder(t *testing.T) {
	a := sampleArtifact()
	gates := a.GatesInOrder()
	for i := 1; i < len(gates); i++ {
		if gates[i].Level < gates[i-1].Level {
			t.Fatalf("gates out of order: %v", gates)
		}
	}
	// The input order must stay untouched.
	if a.ValidationGates[0].Level != 2 {
		t.Error("GatesInOrder mutated the artifact")
	}
}

func TestRunnable(t *testing.T) {
	cases := []struct {
		gate ValidationGate
		want bool
	}{
		{ValidationGate{Level: 1, Command: "go vet ./..."}, true},
		{ValidationGate{Level: 1, Command: "go vet ./...", Manual: true}, false},
		{ValidationGate{Level: 4}, false},
	}
	for _, tc := range cases {
		if got := tc.gate.Runnable(); got != tc.want {
			t.Errorf("Runnable(%+v) = %v, want %v", tc.gate, got, tc.want)
		}
	}
}

func TestRenderSections(t *testing.T) {
	a := sampleArtifact()
	md := Render(a)

	for _, want := range []string{
		"# PRP: P1.M1.T1.S1",
		"## Objective",
		"## Context",
		"## Implementation Steps",
		"1. Define the node structs.",
		"### Gate 1: Build",
		"```sh\ngo build ./...\n```",
		"### Gate 4: Review by a maintainer",
		"Manual verification.",
		"- [ ] Unknown fields rejected",
		"- [x] Round trip is lossless",
		"## References",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("rendered markdown missing %q\n%s", want, md)
		}
	}

	if md != Render(a) {
		t.Error("render is not deterministic")
	}
}

func TestFromJSON(t *testing.T) {
	doc := `{
		"taskId": "P1.M1.T1.S2",
		"objective": "Walk the tree",
		"context": "",
		"implementationSteps": ["visit parents first"],
		"validationGates": [{"level": 1, "description": "build", "command": "go build ./...", "manual": false}],
		"successCriteria": [{"description": "order is stable", "satisfied": false}],
		"references": []
	}`
	a, err := FromJSON([]byte(doc))
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	if a.TaskID != "P1.M1.T1.S2" || len(a.ValidationGates) != 1 {
		t.Errorf("decoded artifact = %+v", a)
	}

	if _, err := FromJSON([]byte(`{"taskId": ""}`)); err == nil {
		t.Error("invalid artifact accepted")
	}
}

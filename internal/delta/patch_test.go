package delta

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"prpforge/internal/backlog"
)

func fixtureContract(note string) string {
	return "CONTRACT DEFINITION:\n" +
		"1. RESEARCH NOTE: " + note + "\n" +
		"2. INPUT: fixture input\n" +
		"3. LOGIC: fixture logic\n" +
		"4. OUTPUT: fixture output\n"
}

// completedBacklog is a single-phase tree with every item Complete:
// P1 > P1.M1 > {P1.M1.T1 > P1.M1.T1.S1, P1.M1.T2 > P1.M1.T2.S1}.
func completedBacklog() backlog.Backlog {
	sub := func(id, title string) backlog.Subtask {
		return backlog.Subtask{
			Kind: backlog.KindSubtask, ID: id, Title: title,
			Status: backlog.StatusComplete, Description: title,
			StoryPoints: 2, Dependencies: []string{},
			ContextScope: fixtureContract(title),
		}
	}
	return backlog.Backlog{Phases: []backlog.Phase{
		{
			Kind: backlog.KindPhase, ID: "P1", Title: "Foundation",
			Status: backlog.StatusComplete, Description: "Core work",
			Milestones: []backlog.Milestone{
				{
					Kind: backlog.KindMilestone, ID: "P1.M1", Title: "Model",
					Status: backlog.StatusComplete, Description: "Data model",
					Tasks: []backlog.Task{
						{
							Kind: backlog.KindTask, ID: "P1.M1.T1", Title: "Types",
							Status: backlog.StatusComplete, Description: "Type definitions",
							Subtasks: []backlog.Subtask{
								sub("P1.M1.T1.S1", "Define the variants"),
							},
						},
						{
							Kind: backlog.KindTask, ID: "P1.M1.T2", Title: "Traversal",
							Status: backlog.StatusComplete, Description: "Walk order",
							Subtasks: []backlog.Subtask{
								sub("P1.M1.T2.S1", "Pre-order walk"),
							},
						},
					},
				},
			},
		},
	}}
}

func statusOf(t *testing.T, b backlog.Backlog, id string) backlog.Status {
	t.Helper()
	it, ok := backlog.Find(b, id)
	if !ok {
		t.Fatalf("item %s not found", id)
	}
	return it.ItemStatus()
}

func TestPatchModifiedAndRemoved(t *testing.T) {
	orig := completedBacklog()
	analysis := &Analysis{Changes: []Change{
		{Kind: ChangeModified, ItemID: "P1.M1.T1.S1", Impact: ImpactLow},
		{Kind: ChangeRemoved, ItemID: "P1.M1.T2", Impact: ImpactMedium},
	}}

	patched := Patch(orig, analysis)

	if got := statusOf(t, patched, "P1.M1.T1.S1"); got != backlog.StatusPlanned {
		t.Errorf("modified item status = %s, want %s", got, backlog.StatusPlanned)
	}
	if got := statusOf(t, patched, "P1.M1.T2"); got != backlog.StatusObsolete {
		t.Errorf("removed item status = %s, want %s", got, backlog.StatusObsolete)
	}

	// Untouched items keep their status; obsoleting a task does not
	// cascade into its subtasks.
	for _, id := range []string{"P1", "P1.M1", "P1.M1.T1", "P1.M1.T2.S1"} {
		if got := statusOf(t, patched, id); got != backlog.StatusComplete {
			t.Errorf("unrelated item %s status = %s, want %s", id, got, backlog.StatusComplete)
		}
	}
}

func TestPatchDoesNotMutateInput(t *testing.T) {
	orig := completedBacklog()
	Patch(orig, &Analysis{Changes: []Change{
		{Kind: ChangeModified, ItemID: "P1.M1.T1.S1"},
		{Kind: ChangeRemoved, ItemID: "P1.M1.T2"},
	}})

	if diff := cmp.Diff(completedBacklog(), orig); diff != "" {
		t.Errorf("input backlog mutated (-want +got):\n%s", diff)
	}
}

func TestPatchAddedIsNoOp(t *testing.T) {
	orig := completedBacklog()
	patched := Patch(orig, &Analysis{Changes: []Change{
		{Kind: ChangeAdded, ItemID: "P1.M1.T3"},
	}})

	if diff := cmp.Diff(orig, patched); diff != "" {
		t.Errorf("added change altered the backlog (-orig +patched):\n%s", diff)
	}
}

func TestPatchUnknownItemIsNoOp(t *testing.T) {
	orig := completedBacklog()
	patched := Patch(orig, &Analysis{Changes: []Change{
		{Kind: ChangeModified, ItemID: "P9.M9.T9"},
	}})

	if diff := cmp.Diff(orig, patched); diff != "" {
		t.Errorf("unknown item altered the backlog (-orig +patched):\n%s", diff)
	}
}

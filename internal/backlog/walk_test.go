package backlog

import (
	"reflect"
	"testing"
)

// testContract builds a minimal valid contract block for fixtures.
func testContract(note string) string {
	return "CONTRACT DEFINITION:\n" +
		"1. RESEARCH NOTE: " + note + "\n" +
		"2. INPUT: fixture input\n" +
		"3. LOGIC: fixture logic\n" +
		"4. OUTPUT: fixture output\n"
}

func testSubtask(id, title string, deps ...string) Subtask {
	if deps == nil {
		deps = []string{}
	}
	return Subtask{
		Kind:         KindSubtask,
		ID:           id,
		Title:        title,
		Status:       StatusPlanned,
		Description:  title,
		StoryPoints:  2,
		Dependencies: deps,
		ContextScope: testContract(title),
	}
}

// twoPhaseBacklog is a two-phase, three-task hierarchy with four subtasks.
func twoPhaseBacklog() Backlog {
	return Backlog{Phases: []Phase{
		{
			Kind: KindPhase, ID: "P1", Title: "Foundation", Status: StatusPlanned,
			Description: "Core data structures",
			Milestones: []Milestone{
				{
					Kind: KindMilestone, ID: "P1.M1", Title: "Model", Status: StatusPlanned,
					Description: "Hierarchy model",
					Tasks: []Task{
						{
							Kind: KindTask, ID: "P1.M1.T1", Title: "Types", Status: StatusPlanned,
							Description: "Type definitions",
							Subtasks: []Subtask{
								testSubtask("P1.M1.T1.S1", "Define the variants"),
								testSubtask("P1.M1.T1.S2", "Strict decoding", "P1.M1.T1.S1"),
							},
						},
						{
							Kind: KindTask, ID: "P1.M1.T2", Title: "Traversal", Status: StatusPlanned,
							Description: "Walk order",
							Subtasks: []Subtask{
								testSubtask("P1.M1.T2.S1", "Pre-order walk"),
							},
						},
					},
				},
			},
		},
		{
			Kind: KindPhase, ID: "P2", Title: "Persistence", Status: StatusPlanned,
			Description: "Session store",
			Milestones: []Milestone{
				{
					Kind: KindMilestone, ID: "P2.M1", Title: "Store", Status: StatusPlanned,
					Description: "Layout and writes",
					Tasks: []Task{
						{
							Kind: KindTask, ID: "P2.M1.T1", Title: "Atomic write", Status: StatusPlanned,
							Description: "Temp file plus rename",
							Subtasks: []Subtask{
								testSubtask("P2.M1.T1.S1", "Write registry"),
							},
						},
					},
				},
			},
		},
	}}
}

func TestWalkOrder(t *testing.T) {
	b := twoPhaseBacklog()
	var ids []string
	Walk(b, func(it Item) bool {
		ids = append(ids, it.ItemID())
		return true
	})
	want := []string{
		"P1", "P1.M1", "P1.M1.T1", "P1.M1.T1.S1", "P1.M1.T1.S2",
		"P1.M1.T2", "P1.M1.T2.S1",
		"P2", "P2.M1", "P2.M1.T1", "P2.M1.T1.S1",
	}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("walk order = %v, want %v", ids, want)
	}
}

func TestWalkVisitsParentBeforeChildren(t *testing.T) {
	b := twoPhaseBacklog()
	position := map[string]int{}
	i := 0
	Walk(b, func(it Item) bool {
		position[it.ItemID()] = i
		i++
		return true
	})
	for id, pos := range position {
		if parent, ok := parentID(id); ok {
			if position[parent] >= pos {
				t.Errorf("parent %s at %d not before child %s at %d", parent, position[parent], id, pos)
			}
		}
	}
}

func parentID(id string) (string, bool) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '.' {
			return id[:i], true
		}
	}
	return "", false
}

func TestWalkEarlyStop(t *testing.T) {
	b := twoPhaseBacklog()
	var visited int
	Walk(b, func(it Item) bool {
		visited++
		return visited < 3
	})
	if visited != 3 {
		t.Errorf("visited = %d after early stop, want 3", visited)
	}
}

func TestFind(t *testing.T) {
	b := twoPhaseBacklog()

	it, ok := Find(b, "P1.M1.T2.S1")
	if !ok {
		t.Fatal("Find(P1.M1.T2.S1) not found")
	}
	if it.ItemKind() != KindSubtask || it.ItemTitle() != "Pre-order walk" {
		t.Errorf("found %s %q", it.ItemKind(), it.ItemTitle())
	}

	if _, ok := Find(b, "P1.M1.T2.S"); ok {
		t.Error("Find matched a prefix; exact match required")
	}
	if _, ok := Find(b, "P9"); ok {
		t.Error("Find matched a nonexistent id")
	}
}

func TestLeaves(t *testing.T) {
	b := twoPhaseBacklog()
	leaves := Leaves(b)
	want := []string{"P1.M1.T1.S1", "P1.M1.T1.S2", "P1.M1.T2.S1", "P2.M1.T1.S1"}
	if len(leaves) != len(want) {
		t.Fatalf("got %d leaves, want %d", len(leaves), len(want))
	}
	for i, s := range leaves {
		if s.ID != want[i] {
			t.Errorf("leaf[%d] = %s, want %s", i, s.ID, want[i])
		}
	}
}

func TestCountByStatus(t *testing.T) {
	b := twoPhaseBacklog()
	b = Update(b, "P1.M1.T1.S1", StatusComplete)
	b = Update(b, "P1.M1.T1.S2", StatusFailed)
	counts := CountByStatus(b)
	if counts[StatusComplete] != 1 || counts[StatusFailed] != 1 {
		t.Errorf("counts = %v", counts)
	}
	if counts[StatusPlanned] != 9 {
		t.Errorf("planned = %d, want 9", counts[StatusPlanned])
	}
}

package delta

import (
	"context"
	"strings"
	"testing"
)

func TestTextAnalyzerClassifiesChanges(t *testing.T) {
	b := completedBacklog()
	oldPRD := []byte(strings.Join([]string{
		"# Product",
		"",
		"P1.M1.T1.S1: define the variants",
		"P1.M1.T2: pre-order traversal",
		"",
	}, "\n"))
	newPRD := []byte(strings.Join([]string{
		"# Product",
		"",
		"P1.M1.T1.S1: define the variants and strict decoding",
		"P1.M1.T3: status tallies",
		"",
	}, "\n"))

	a, err := NewTextAnalyzer().Analyze(context.Background(), oldPRD, newPRD, b)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	kinds := make(map[string]ChangeKind)
	impacts := make(map[string]Impact)
	for _, c := range a.Changes {
		kinds[c.ItemID] = c.Kind
		impacts[c.ItemID] = c.Impact
	}

	if kinds["P1.M1.T1.S1"] != ChangeModified {
		t.Errorf("P1.M1.T1.S1 classified %s, want %s", kinds["P1.M1.T1.S1"], ChangeModified)
	}
	if kinds["P1.M1.T2"] != ChangeRemoved {
		t.Errorf("P1.M1.T2 classified %s, want %s", kinds["P1.M1.T2"], ChangeRemoved)
	}
	if kinds["P1.M1.T3"] != ChangeAdded {
		t.Errorf("P1.M1.T3 classified %s, want %s", kinds["P1.M1.T3"], ChangeAdded)
	}

	if impacts["P1.M1.T1.S1"] != ImpactLow {
		t.Errorf("subtask impact = %s, want %s", impacts["P1.M1.T1.S1"], ImpactLow)
	}
	if impacts["P1.M1.T2"] != ImpactMedium {
		t.Errorf("task impact = %s, want %s", impacts["P1.M1.T2"], ImpactMedium)
	}

	for _, want := range []string{"P1.M1.T1.S1", "P1.M1.T2", "P1.M1.T3"} {
		if !containsString(a.TaskIDs, want) {
			t.Errorf("TaskIDs %v missing %s", a.TaskIDs, want)
		}
	}
	if a.PatchInstructions == "" {
		t.Error("PatchInstructions empty")
	}
}

func TestTextAnalyzerUnchangedPRD(t *testing.T) {
	prd := []byte("P1.M1.T1.S1: define the variants\n")
	a, err := NewTextAnalyzer().Analyze(context.Background(), prd, prd, completedBacklog())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Changes) != 0 {
		t.Errorf("identical PRDs produced %d changes: %v", len(a.Changes), a.Changes)
	}
}

func TestTextAnalyzerIgnoresUnknownRemovals(t *testing.T) {
	// An id that disappears from the PRD but never existed in the backlog
	// is nothing to patch.
	a, err := NewTextAnalyzer().Analyze(context.Background(),
		[]byte("P7.M7.T7: phantom work\n"), []byte("nothing here\n"), completedBacklog())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(a.Changes) != 0 {
		t.Errorf("phantom id produced changes: %v", a.Changes)
	}
}

func TestTextAnalyzerHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewTextAnalyzer().Analyze(ctx, []byte("a"), []byte("b"), completedBacklog()); err == nil {
		t.Error("Analyze ignored cancelled context")
	}
}

func containsString(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}

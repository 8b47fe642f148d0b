package prp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRoundTrip(t *testing.T) {
	a := sampleArtifact()
	got, err := Parse([]byte(Render(a)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	want := sampleArtifact()
	// Render emits gates in level order, so the round trip comes back sorted.
	want.ValidationGates = want.GatesInOrder()

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParseMinimalArtifact(t *testing.T) {
	a := &Artifact{TaskID: "P1.M1.T1.S1", Objective: "Do the thing."}
	got, err := Parse([]byte(Render(a)))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.TaskID != a.TaskID || got.Objective != a.Objective {
		t.Errorf("parsed artifact = %+v", got)
	}
	if len(got.ValidationGates) != 0 || len(got.SuccessCriteria) != 0 {
		t.Errorf("empty sections materialized: %+v", got)
	}
}

func TestParseRejectsUnknownSection(t *testing.T) {
	md := "# PRP: X\n\n## Objective\n\nDo it.\n\n## Rollout Plan\n\nLater.\n"
	if _, err := Parse([]byte(md)); err == nil || !strings.Contains(err.Error(), "unknown section") {
		t.Fatalf("Parse error = %v, want unknown section", err)
	}
}

func TestParseRejectsUnterminatedFence(t *testing.T) {
	md := "# PRP: X\n\n## Objective\n\nDo it.\n\n## Validation Gates\n\n### Gate 1: Build\n\n```sh\ngo build ./...\n"
	if _, err := Parse([]byte(md)); err == nil || !strings.Contains(err.Error(), "unterminated") {
		t.Fatalf("Parse error = %v, want unterminated fence", err)
	}
}

func TestParseRejectsInvalidArtifact(t *testing.T) {
	md := "# PRP: X\n\n## Context\n\nNo objective here.\n"
	if _, err := Parse([]byte(md)); err == nil {
		t.Fatal("artifact without objective accepted")
	}
}

func TestParseFileMatchesRender(t *testing.T) {
	a := sampleArtifact()
	path := filepath.Join(t.TempDir(), Filename(a.TaskID))
	if err := os.WriteFile(path, []byte(Render(a)), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if got.TaskID != a.TaskID {
		t.Errorf("taskId = %q, want %q", got.TaskID, a.TaskID)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "absent.md")); err == nil {
		t.Error("missing file accepted")
	}
}

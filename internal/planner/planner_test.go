package planner

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prpforge/internal/backlog"
)

// fence markers cannot appear in a raw string literal, so fixtures
// spell them as ''' and swap before parsing.
func prd(doc string) []byte {
	return []byte(strings.ReplaceAll(doc, "'''", "```"))
}

const cacheContract = `CONTRACT DEFINITION:
1. RESEARCH NOTE: Check the eviction guidance in the caching ADR.
2. INPUT: Tokenized card references from the vault client.
3. LOGIC: Cache tokens with a bounded LRU keyed by merchant.
4. OUTPUT: A cache handle exposing Get and Put.`

const goldenPRD = `# Payments Replatform PRD

Intro prose the planner must not attach to any item.

## Phase 1: Foundations

Stand up the core payment primitives.

### Milestone 1.1: Vault

#### Task 1.1.1: Tokenization

- [ ] Vault client [3sp]
  Wraps the vault HTTP API.
- [x] Token schema
- [ ] Token cache [2sp] (after: P1.M1.T1.S1)

'''contract
CONTRACT DEFINITION:
1. RESEARCH NOTE: Check the eviction guidance in the caching ADR.
2. INPUT: Tokenized card references from the vault client.
3. LOGIC: Cache tokens with a bounded LRU keyed by merchant.
4. OUTPUT: A cache handle exposing Get and Put.
'''

## Phase 2: Checkout

### Milestone 2.1: API

#### Task 2.1.1: Endpoints

- [ ] Charge endpoint (after: P1.M1.T1.S3)
`

func goldenBacklog() backlog.Backlog {
	return backlog.Backlog{Phases: []backlog.Phase{
		{
			Kind: backlog.KindPhase, ID: "P1", Title: "Foundations",
			Status: backlog.StatusPlanned, Description: "Stand up the core payment primitives.",
			Milestones: []backlog.Milestone{{
				Kind: backlog.KindMilestone, ID: "P1.M1", Title: "Vault", Status: backlog.StatusPlanned,
				Tasks: []backlog.Task{{
					Kind: backlog.KindTask, ID: "P1.M1.T1", Title: "Tokenization", Status: backlog.StatusPlanned,
					Subtasks: []backlog.Subtask{
						{
							Kind: backlog.KindSubtask, ID: "P1.M1.T1.S1", Title: "Vault client",
							Status: backlog.StatusPlanned, Description: "Vault client Wraps the vault HTTP API.",
							StoryPoints: 3, Dependencies: []string{},
							ContextScope: skeletonContract("Vault client", nil),
						},
						{
							Kind: backlog.KindSubtask, ID: "P1.M1.T1.S2", Title: "Token schema",
							Status: backlog.StatusComplete, Description: "Token schema",
							StoryPoints: 1, Dependencies: []string{},
							ContextScope: skeletonContract("Token schema", nil),
						},
						{
							Kind: backlog.KindSubtask, ID: "P1.M1.T1.S3", Title: "Token cache",
							Status: backlog.StatusPlanned, Description: "Token cache",
							StoryPoints: 2, Dependencies: []string{"P1.M1.T1.S1"},
							ContextScope: cacheContract,
						},
					},
				}},
			}},
		},
		{
			Kind: backlog.KindPhase, ID: "P2", Title: "Checkout", Status: backlog.StatusPlanned,
			Milestones: []backlog.Milestone{{
				Kind: backlog.KindMilestone, ID: "P2.M1", Title: "API", Status: backlog.StatusPlanned,
				Tasks: []backlog.Task{{
					Kind: backlog.KindTask, ID: "P2.M1.T1", Title: "Endpoints", Status: backlog.StatusPlanned,
					Subtasks: []backlog.Subtask{{
						Kind: backlog.KindSubtask, ID: "P2.M1.T1.S1", Title: "Charge endpoint",
						Status: backlog.StatusPlanned, Description: "Charge endpoint",
						StoryPoints: 1, Dependencies: []string{"P1.M1.T1.S3"},
						ContextScope: skeletonContract("Charge endpoint", []string{"P1.M1.T1.S3"}),
					}},
				}},
			}},
		},
	}}
}

func TestParseGoldenStructure(t *testing.T) {
	got, err := Parse(prd(goldenPRD))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff(goldenBacklog(), got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseSynthesizedContractsValidate(t *testing.T) {
	b, err := Parse(prd(goldenPRD))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	for _, leaf := range backlog.Leaves(b) {
		if _, err := leaf.Contract(); err != nil {
			t.Errorf("subtask %s: contract does not parse: %v", leaf.ID, err)
		}
	}
}

func TestParseIgnoresProseSections(t *testing.T) {
	doc := `## Phase 1: Core

### Milestone 1.1: Base

#### Task 1.1.1: Setup

- [ ] Bootstrap repo

## Open Questions

Which region hosts the vault?
`
	b, err := Parse(prd(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := len(b.Phases); got != 1 {
		t.Fatalf("phases = %d, want 1", got)
	}
	sub := b.Phases[0].Milestones[0].Tasks[0].Subtasks[0]
	if sub.Description != "Bootstrap repo" {
		t.Errorf("prose after a non-structural heading leaked into description: %q", sub.Description)
	}
}

func TestParseSkipsOtherFences(t *testing.T) {
	doc := `## Phase 1: Core

'''go
## Phase 9: not a heading
- [ ] not a bullet
'''

### Milestone 1.1: Base

#### Task 1.1.1: Setup

- [ ] Bootstrap repo
`
	b, err := Parse(prd(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := len(backlog.Leaves(b)); got != 1 {
		t.Errorf("leaves = %d, want 1", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		wantLine int
		wantMsg  string
	}{
		{
			name:     "milestone outside phase",
			doc:      "### Milestone 1.1: Base\n",
			wantLine: 1,
			wantMsg:  "outside a phase",
		},
		{
			name:     "task outside milestone",
			doc:      "## Phase 1: Core\n\n#### Task 1.1.1: Setup\n",
			wantLine: 3,
			wantMsg:  "outside a milestone",
		},
		{
			name:     "bullet outside task",
			doc:      "## Phase 1: Core\n\n- [ ] Floating work\n",
			wantLine: 3,
			wantMsg:  "outside a task",
		},
		{
			name:     "milestone under wrong phase",
			doc:      "## Phase 1: Core\n\n### Milestone 2.1: Base\n",
			wantLine: 3,
			wantMsg:  "nested under phase 1",
		},
		{
			name:     "task under wrong milestone",
			doc:      "## Phase 1: Core\n\n### Milestone 1.1: Base\n\n#### Task 1.2.1: Setup\n",
			wantLine: 5,
			wantMsg:  "nested under milestone 1.1",
		},
		{
			name:     "duplicate phase",
			doc:      "## Phase 1: Core\n\n## Phase 1: Again\n",
			wantLine: 3,
			wantMsg:  "duplicate phase id P1",
		},
		{
			name:     "malformed phase heading",
			doc:      "## Phase One: Core\n",
			wantLine: 1,
			wantMsg:  "malformed phase heading",
		},
		{
			name: "unknown dependency",
			doc: "## Phase 1: Core\n\n### Milestone 1.1: Base\n\n#### Task 1.1.1: Setup\n\n" +
				"- [ ] Bootstrap repo (after: P9.M9.T9.S9)\n",
			wantLine: 7,
			wantMsg:  "unknown item",
		},
		{
			name:     "contract outside subtask",
			doc:      "## Phase 1: Core\n\n'''contract\nCONTRACT DEFINITION:\n'''\n",
			wantLine: 3,
			wantMsg:  "outside a subtask",
		},
		{
			name: "unterminated contract",
			doc: "## Phase 1: Core\n\n### Milestone 1.1: Base\n\n#### Task 1.1.1: Setup\n\n" +
				"- [ ] Bootstrap repo\n\n'''contract\nCONTRACT DEFINITION:\n",
			wantLine: 9,
			wantMsg:  "unterminated contract",
		},
		{
			name: "contract body missing sections",
			doc: "## Phase 1: Core\n\n### Milestone 1.1: Base\n\n#### Task 1.1.1: Setup\n\n" +
				"- [ ] Bootstrap repo\n\n'''contract\nCONTRACT DEFINITION:\n1. RESEARCH NOTE: n\n'''\n",
			wantLine: 9,
			wantMsg:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(prd(tt.doc))
			if err == nil {
				t.Fatal("Parse() succeeded, want error")
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error %v is not a *ParseError", err)
			}
			if pe.Line != tt.wantLine {
				t.Errorf("error line = %d, want %d (err: %v)", pe.Line, tt.wantLine, err)
			}
			if tt.wantMsg != "" && !strings.Contains(pe.Msg, tt.wantMsg) {
				t.Errorf("error %q does not mention %q", pe.Msg, tt.wantMsg)
			}
		})
	}
}

func TestParseNoPhases(t *testing.T) {
	_, err := Parse([]byte("# Just a title\n\nProse only.\n"))
	if err == nil || !strings.Contains(err.Error(), "no phase headings") {
		t.Fatalf("Parse() error = %v, want no-phase-headings error", err)
	}
}

func TestParseAnnotationOrderIrrelevant(t *testing.T) {
	doc := `## Phase 1: Core

### Milestone 1.1: Base

#### Task 1.1.1: Setup

- [ ] First thing
- [ ] Second thing (after: P1.M1.T1.S1) [5sp]
`
	b, err := Parse(prd(doc))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	sub := b.Phases[0].Milestones[0].Tasks[0].Subtasks[1]
	if sub.Title != "Second thing" {
		t.Errorf("title = %q, want %q", sub.Title, "Second thing")
	}
	if sub.StoryPoints != 5 {
		t.Errorf("story points = %d, want 5", sub.StoryPoints)
	}
	if diff := cmp.Diff([]string{"P1.M1.T1.S1"}, sub.Dependencies); diff != "" {
		t.Errorf("dependencies mismatch (-want +got):\n%s", diff)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prd.md")
	if err := os.WriteFile(path, prd(goldenPRD), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if got := len(backlog.Items(b)); got != 10 {
		t.Errorf("items = %d, want 10", got)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Error("ParseFile() on a missing path succeeded, want error")
	}
}

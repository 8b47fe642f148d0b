package backlog

import (
	"strings"
	"testing"
)

const wellFormedContract = `CONTRACT DEFINITION:
1. RESEARCH NOTE: Review the session store layout before touching paths.
2. INPUT: The plan directory root and the PRD bytes.
3. LOGIC: Derive the session id from the PRD hash and create the tree.
4. OUTPUT: A session directory with snapshot, registry, and workspaces.`

func TestParseContract(t *testing.T) {
	c, err := ParseContract(wellFormedContract)
	if err != nil {
		t.Fatalf("ParseContract returned error: %v", err)
	}
	if !strings.HasPrefix(c.ResearchNote, "Review the session store") {
		t.Errorf("research note = %q", c.ResearchNote)
	}
	if c.Input != "The plan directory root and the PRD bytes." {
		t.Errorf("input = %q", c.Input)
	}
	if !strings.Contains(c.Logic, "session id") {
		t.Errorf("logic = %q", c.Logic)
	}
	if !strings.HasSuffix(c.Output, "workspaces.") {
		t.Errorf("output = %q", c.Output)
	}
}

func TestParseContractRejects(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\t  "},
		{"missing prefix", "1. RESEARCH NOTE: a\n2. INPUT: b\n3. LOGIC: c\n4. OUTPUT: d"},
		{"missing section", "CONTRACT DEFINITION:\n1. RESEARCH NOTE: a\n2. INPUT: b\n4. OUTPUT: d"},
		{"out of order", "CONTRACT DEFINITION:\n2. INPUT: b\n1. RESEARCH NOTE: a\n3. LOGIC: c\n4. OUTPUT: d"},
		{"empty research note", "CONTRACT DEFINITION:\n1. RESEARCH NOTE:\n2. INPUT: b\n3. LOGIC: c\n4. OUTPUT: d"},
		{"empty output", "CONTRACT DEFINITION:\n1. RESEARCH NOTE: a\n2. INPUT: b\n3. LOGIC: c\n4. OUTPUT:"},
		{"whitespace section body", "CONTRACT DEFINITION:\n1. RESEARCH NOTE: a\n2. INPUT:   \n3. LOGIC: c\n4. OUTPUT: d"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseContract(tc.raw); err == nil {
				t.Errorf("ParseContract(%q) accepted invalid block", tc.raw)
			}
		})
	}
}

func TestFormatContractRoundTrip(t *testing.T) {
	in := Contract{
		ResearchNote: "Check retry semantics.",
		Input:        "A failing gate result.",
		Logic:        "Re-run the gate up to the fix budget.",
		Output:       "A final gate verdict.",
	}
	out, err := ParseContract(FormatContract(in))
	if err != nil {
		t.Fatalf("ParseContract(FormatContract(...)): %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

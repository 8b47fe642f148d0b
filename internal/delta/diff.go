package delta

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// maxSummaryLines caps how many changed lines DiffSummary quotes before
// eliding the rest.
const maxSummaryLines = 20

// DiffSummary renders a human-readable summary of the textual differences
// between two PRD revisions: a one-line tally followed by the changed
// lines, +/- prefixed, elided past maxSummaryLines.
func DiffSummary(oldPRD, newPRD []byte) string {
	if bytes.Equal(oldPRD, newPRD) {
		return "PRD unchanged (identical bytes)"
	}

	added, removed, samples := lineDiff(oldPRD, newPRD)

	var b strings.Builder
	fmt.Fprintf(&b, "PRD delta: %d line(s) added, %d line(s) removed\n", added, removed)
	for i, line := range samples {
		if i == maxSummaryLines {
			fmt.Fprintf(&b, "... (%d more changed lines)\n", len(samples)-maxSummaryLines)
			break
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// lineDiff runs a line-granularity diff and returns the added and removed
// line counts plus every changed line prefixed with "+" or "-".
func lineDiff(oldPRD, newPRD []byte) (added, removed int, samples []string) {
	dmp := diffmatchpatch.New()
	oldChars, newChars, lines := dmp.DiffLinesToChars(string(oldPRD), string(newPRD))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldChars, newChars, false), lines)

	for _, d := range diffs {
		if d.Type == diffmatchpatch.DiffEqual {
			continue
		}
		prefix := "+ "
		if d.Type == diffmatchpatch.DiffDelete {
			prefix = "- "
		}
		for _, line := range splitLines(d.Text) {
			if d.Type == diffmatchpatch.DiffInsert {
				added++
			} else {
				removed++
			}
			samples = append(samples, prefix+line)
		}
	}
	return added, removed, samples
}

func splitLines(text string) []string {
	text = strings.TrimRight(text, "\n")
	if text == "" {
		return []string{""}
	}
	return strings.Split(text, "\n")
}

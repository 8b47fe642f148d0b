package delta

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"prpforge/internal/backlog"
)

// itemIDPattern matches backlog item identifiers of any depth, from a bare
// phase ("P2") down to a subtask ("P2.M1.T3.S4").
var itemIDPattern = regexp.MustCompile(`\bP\d+(?:\.M\d+(?:\.T\d+(?:\.S\d+)?)?)?\b`)

// TextAnalyzer derives a delta analysis from the textual diff between two
// PRD revisions, with no model call. Item identifiers mentioned on changed
// lines are classified by which side of the diff references them: only the
// old side means the item was removed, only the new side means it is new
// or newly reworked, both sides mean its requirements shifted.
type TextAnalyzer struct{}

// NewTextAnalyzer returns the offline analyzer.
func NewTextAnalyzer() *TextAnalyzer {
	return &TextAnalyzer{}
}

// Analyze implements Analyzer.
func (a *TextAnalyzer) Analyze(ctx context.Context, oldPRD, newPRD []byte, b backlog.Backlog) (*Analysis, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	oldIDs, newIDs := changedIDs(oldPRD, newPRD)

	analysis := &Analysis{}
	for _, id := range sortedIDs(union(oldIDs, newIDs)) {
		inOld := oldIDs[id]
		inNew := newIDs[id]
		_, exists := backlog.Find(b, id)

		switch {
		case inOld && inNew:
			if !exists {
				continue
			}
			analysis.Changes = append(analysis.Changes, Change{
				Kind:        ChangeModified,
				ItemID:      id,
				Description: fmt.Sprintf("requirements for %s changed in the PRD", id),
				Impact:      impactForDepth(id),
			})
		case inOld:
			if !exists {
				continue
			}
			analysis.Changes = append(analysis.Changes, Change{
				Kind:        ChangeRemoved,
				ItemID:      id,
				Description: fmt.Sprintf("%s no longer appears in the PRD", id),
				Impact:      impactForDepth(id),
			})
		case inNew:
			if exists {
				analysis.Changes = append(analysis.Changes, Change{
					Kind:        ChangeModified,
					ItemID:      id,
					Description: fmt.Sprintf("new PRD text references %s", id),
					Impact:      impactForDepth(id),
				})
			} else {
				analysis.Changes = append(analysis.Changes, Change{
					Kind:        ChangeAdded,
					ItemID:      id,
					Description: fmt.Sprintf("%s is new in this PRD revision", id),
					Impact:      impactForDepth(id),
				})
			}
		}
	}

	analysis.PatchInstructions = patchInstructions(analysis.Changes)
	if err := Normalize(analysis); err != nil {
		return nil, err
	}
	return analysis, nil
}

// changedIDs extracts item identifiers from the removed and added sides of
// a line-granularity diff.
func changedIDs(oldPRD, newPRD []byte) (oldIDs, newIDs map[string]bool) {
	oldIDs = make(map[string]bool)
	newIDs = make(map[string]bool)

	dmp := diffmatchpatch.New()
	oldChars, newChars, lines := dmp.DiffLinesToChars(string(oldPRD), string(newPRD))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(oldChars, newChars, false), lines)

	for _, d := range diffs {
		var into map[string]bool
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			into = oldIDs
		case diffmatchpatch.DiffInsert:
			into = newIDs
		default:
			continue
		}
		for _, id := range itemIDPattern.FindAllString(d.Text, -1) {
			into[id] = true
		}
	}
	return oldIDs, newIDs
}

func union(a, b map[string]bool) map[string]bool {
	out := make(map[string]bool, len(a)+len(b))
	for id := range a {
		out[id] = true
	}
	for id := range b {
		out[id] = true
	}
	return out
}

func sortedIDs(set map[string]bool) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// impactForDepth maps identifier depth to impact: churn in a subtask is
// contained, churn in a task is worth review, churn at milestone or phase
// level ripples through everything underneath.
func impactForDepth(id string) Impact {
	switch strings.Count(id, ".") {
	case 3:
		return ImpactLow
	case 2:
		return ImpactMedium
	default:
		return ImpactHigh
	}
}

func patchInstructions(changes []Change) string {
	if len(changes) == 0 {
		return "no backlog items affected by this PRD revision"
	}
	var counts [3]int
	for _, c := range changes {
		switch c.Kind {
		case ChangeModified:
			counts[0]++
		case ChangeRemoved:
			counts[1]++
		case ChangeAdded:
			counts[2]++
		}
	}
	return fmt.Sprintf("reset %d modified item(s) to planned, mark %d removed item(s) obsolete, leave %d added item(s) to the planner",
		counts[0], counts[1], counts[2])
}

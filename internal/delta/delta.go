// Package delta compares two PRD revisions and rewrites backlog statuses
// accordingly: an analysis names the items a change touches, the patcher
// forces modified items back to Planned and retires removed ones as
// Obsolete without deleting them.
package delta

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"prpforge/internal/backlog"
)

// ChangeKind classifies one entry of a delta analysis.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeRemoved  ChangeKind = "removed"
)

// Impact grades how disruptive a change is expected to be.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// Change is one item-level difference between two PRD revisions.
type Change struct {
	ID          string     `json:"id,omitempty"` // engine-assigned, not required from analyzers
	Kind        ChangeKind `json:"kind"`
	ItemID      string     `json:"itemId"`
	Description string     `json:"description"`
	Impact      Impact     `json:"impact"`
}

// Analysis is the full result of comparing two PRDs: the change list, a
// free-form instruction block for the planner, and the ids of every item
// the changes touch.
type Analysis struct {
	Changes           []Change `json:"changes"`
	PatchInstructions string   `json:"patchInstructions"`
	TaskIDs           []string `json:"taskIds"`
}

// Analyzer produces an Analysis over two PRD revisions against the
// backlog currently derived from the old one. Implementations may defer
// to a language-model agent or work from the textual diff alone.
type Analyzer interface {
	Analyze(ctx context.Context, oldPRD, newPRD []byte, b backlog.Backlog) (*Analysis, error)
}

// Normalize fills in engine-assigned fields the analyzer may omit:
// change ids and the deduplicated TaskIDs roster. It also rejects
// changes without an item id or with an unknown kind so a malformed
// agent response fails loudly instead of silently patching nothing.
func Normalize(a *Analysis) error {
	seen := make(map[string]bool)
	var ids []string
	for i := range a.Changes {
		c := &a.Changes[i]
		if c.ItemID == "" {
			return fmt.Errorf("delta: change %d has no itemId", i)
		}
		switch c.Kind {
		case ChangeAdded, ChangeModified, ChangeRemoved:
		default:
			return fmt.Errorf("delta: change for %s has unknown kind %q", c.ItemID, c.Kind)
		}
		switch c.Impact {
		case ImpactLow, ImpactMedium, ImpactHigh:
		case "":
			c.Impact = ImpactLow
		default:
			return fmt.Errorf("delta: change for %s has unknown impact %q", c.ItemID, c.Impact)
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if !seen[c.ItemID] {
			seen[c.ItemID] = true
			ids = append(ids, c.ItemID)
		}
	}
	a.TaskIDs = ids
	return nil
}

package delta

import (
	"prpforge/internal/backlog"
	"prpforge/internal/logging"
)

// Patch applies an analysis to a backlog and returns the rewritten tree.
// The input is never mutated.
//
// Per change kind:
//   - modified: the item's status becomes Planned, forcing re-execution.
//   - removed:  the item's status becomes Obsolete; the node stays in the
//     hierarchy for history.
//   - added:    no status rewrite; inserting the new node is the
//     planner's job, not the patcher's.
//
// Changes naming unknown ids fall through backlog.Update's no-error
// contract and leave the tree untouched.
func Patch(b backlog.Backlog, a *Analysis) backlog.Backlog {
	out := b
	for _, c := range a.Changes {
		switch c.Kind {
		case ChangeModified:
			out = backlog.Update(out, c.ItemID, backlog.StatusPlanned)
			logging.Delta("patch: %s modified, reset to Planned (%s impact)", c.ItemID, c.Impact)
		case ChangeRemoved:
			out = backlog.Update(out, c.ItemID, backlog.StatusObsolete)
			logging.Delta("patch: %s removed, marked Obsolete", c.ItemID)
		case ChangeAdded:
			logging.DeltaDebug("patch: %s added, left to the planner", c.ItemID)
		}
	}
	return out
}

package backlog

import "strings"

// ScopeType selects how much of the tree an execution queue covers.
type ScopeType string

const (
	ScopeAll       ScopeType = "all"
	ScopePhase     ScopeType = "phase"
	ScopeMilestone ScopeType = "milestone"
	ScopeTask      ScopeType = "task"
)

// Scope restricts execution to the subtree rooted at ID. ScopeAll keeps
// every leaf; the other types keep subtasks whose id has ID as a dot-path
// prefix. A scope naming an id that does not exist simply matches nothing;
// it is not an error.
type Scope struct {
	Type ScopeType
	ID   string
}

// ScopeAllItems is the default scope covering the whole backlog.
var ScopeAllItems = Scope{Type: ScopeAll}

// Matches reports whether the item id falls inside the scope.
func (sc Scope) Matches(id string) bool {
	if sc.Type == ScopeAll || sc.Type == "" {
		return true
	}
	return id == sc.ID || strings.HasPrefix(id, sc.ID+".")
}

// FilterLeaves returns the subtasks inside the scope, in walk order.
func FilterLeaves(b Backlog, sc Scope) []Subtask {
	var out []Subtask
	for _, s := range Leaves(b) {
		if sc.Matches(s.ID) {
			out = append(out, s)
		}
	}
	return out
}

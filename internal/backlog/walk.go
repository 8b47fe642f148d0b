package backlog

// Walk visits every item in depth-first pre-order: each node is visited
// before any of its children, children in declared order. The resulting
// sequence (P1, P1.M1, P1.M1.T1, P1.M1.T1.S1, ...) is the execution
// order for the whole engine. Walk stops early when visit returns false.
func Walk(b Backlog, visit func(Item) bool) {
	for _, p := range b.Phases {
		if !visit(p) {
			return
		}
		for _, m := range p.Milestones {
			if !visit(m) {
				return
			}
			for _, t := range m.Tasks {
				if !visit(t) {
					return
				}
				for _, s := range t.Subtasks {
					if !visit(s) {
						return
					}
				}
			}
		}
	}
}

// Items returns every item in walk order.
func Items(b Backlog) []Item {
	var out []Item
	Walk(b, func(it Item) bool {
		out = append(out, it)
		return true
	})
	return out
}

// Find returns the item whose id matches exactly. Prefix or partial
// matches are not supported.
func Find(b Backlog, id string) (Item, bool) {
	var found Item
	Walk(b, func(it Item) bool {
		if it.ItemID() == id {
			found = it
			return false
		}
		return true
	})
	if found == nil {
		return nil, false
	}
	return found, true
}

// Leaves returns every subtask in walk order. Subtasks are the only
// executable kind.
func Leaves(b Backlog) []Subtask {
	var out []Subtask
	Walk(b, func(it Item) bool {
		if s, ok := it.(Subtask); ok {
			out = append(out, s)
		}
		return true
	})
	return out
}

// CountByStatus tallies every item in the tree by status.
func CountByStatus(b Backlog) map[Status]int {
	counts := make(map[Status]int)
	Walk(b, func(it Item) bool {
		counts[it.ItemStatus()]++
		return true
	})
	return counts
}

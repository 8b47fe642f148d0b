package backlog

// Update returns a new backlog in which exactly the node matching id has
// its status replaced. The input is never mutated: the path from the root
// to the target is copied, every untouched subtree is shared with the
// input. If id is not present the input backlog is returned unchanged,
// without error.
//
// Update does not cascade to children and does not propagate to
// ancestors, and it performs no transition validation.
func Update(b Backlog, id string, status Status) Backlog {
	phases, found := updatePhases(b.Phases, id, status)
	if !found {
		return b
	}
	return Backlog{Phases: phases}
}

func updatePhases(phases []Phase, id string, status Status) ([]Phase, bool) {
	for i := range phases {
		if phases[i].ID == id {
			out := make([]Phase, len(phases))
			copy(out, phases)
			out[i].Status = status
			return out, true
		}
		if milestones, ok := updateMilestones(phases[i].Milestones, id, status); ok {
			out := make([]Phase, len(phases))
			copy(out, phases)
			out[i].Milestones = milestones
			return out, true
		}
	}
	return nil, false
}

func updateMilestones(milestones []Milestone, id string, status Status) ([]Milestone, bool) {
	for i := range milestones {
		if milestones[i].ID == id {
			out := make([]Milestone, len(milestones))
			copy(out, milestones)
			out[i].Status = status
			return out, true
		}
		if tasks, ok := updateTasks(milestones[i].Tasks, id, status); ok {
			out := make([]Milestone, len(milestones))
			copy(out, milestones)
			out[i].Tasks = tasks
			return out, true
		}
	}
	return nil, false
}

func updateTasks(tasks []Task, id string, status Status) ([]Task, bool) {
	for i := range tasks {
		if tasks[i].ID == id {
			out := make([]Task, len(tasks))
			copy(out, tasks)
			out[i].Status = status
			return out, true
		}
		if subtasks, ok := updateSubtasks(tasks[i].Subtasks, id, status); ok {
			out := make([]Task, len(tasks))
			copy(out, tasks)
			out[i].Subtasks = subtasks
			return out, true
		}
	}
	return nil, false
}

func updateSubtasks(subtasks []Subtask, id string, status Status) ([]Subtask, bool) {
	for i := range subtasks {
		if subtasks[i].ID == id {
			out := make([]Subtask, len(subtasks))
			copy(out, subtasks)
			out[i].Status = status
			return out, true
		}
	}
	return nil, false
}

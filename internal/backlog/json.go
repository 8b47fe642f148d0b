package backlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// Decode reads a backlog document in the tasks.json schema. The schema is
// strict: unknown fields, wrong kind discriminants, unknown statuses,
// unparseable contract blocks, and dangling dependency references are all
// rejected.
func Decode(r io.Reader) (Backlog, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var b Backlog
	if err := dec.Decode(&b); err != nil {
		return Backlog{}, fmt.Errorf("decode backlog: %w", err)
	}
	if dec.More() {
		return Backlog{}, fmt.Errorf("decode backlog: trailing data after document")
	}
	if err := Validate(b); err != nil {
		return Backlog{}, err
	}
	return b, nil
}

// DecodeBytes is Decode over an in-memory document.
func DecodeBytes(data []byte) (Backlog, error) {
	return Decode(bytes.NewReader(data))
}

// Encode renders the backlog in canonical two-space-indented JSON with a
// trailing newline. Nil slices are written as empty arrays so an empty
// document is always {"backlog": []}.
func Encode(b Backlog) ([]byte, error) {
	data, err := json.MarshalIndent(normalize(b), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backlog: %w", err)
	}
	return append(data, '\n'), nil
}

// normalize returns a copy of b with every nil slice replaced by an empty
// one. The input is left untouched.
func normalize(b Backlog) Backlog {
	out := Backlog{Phases: make([]Phase, len(b.Phases))}
	copy(out.Phases, b.Phases)
	for i := range out.Phases {
		p := &out.Phases[i]
		milestones := make([]Milestone, len(p.Milestones))
		copy(milestones, p.Milestones)
		p.Milestones = milestones
		for j := range p.Milestones {
			m := &p.Milestones[j]
			tasks := make([]Task, len(m.Tasks))
			copy(tasks, m.Tasks)
			m.Tasks = tasks
			for k := range m.Tasks {
				t := &m.Tasks[k]
				subtasks := make([]Subtask, len(t.Subtasks))
				copy(subtasks, t.Subtasks)
				t.Subtasks = subtasks
				for l := range t.Subtasks {
					s := &t.Subtasks[l]
					if s.Dependencies == nil {
						s.Dependencies = []string{}
					}
				}
			}
		}
	}
	return out
}

// Validate checks the structural rules that the JSON tags alone cannot
// express: kind discriminants, the closed status set, globally unique
// ids, contract blocks on subtasks, and dependency references that
// resolve within the same backlog. Item id format is deliberately not
// validated.
func Validate(b Backlog) error {
	seen := make(map[string]bool)
	known := make(map[string]bool)
	Walk(b, func(it Item) bool {
		known[it.ItemID()] = true
		return true
	})

	var err error
	Walk(b, func(it Item) bool {
		if e := validateItem(it, seen); e != nil {
			err = e
			return false
		}
		if s, ok := it.(Subtask); ok {
			if _, e := s.Contract(); e != nil {
				err = fmt.Errorf("item %s: %w", s.ID, e)
				return false
			}
			for _, dep := range s.Dependencies {
				if !known[dep] {
					err = fmt.Errorf("item %s: dependency %q not in backlog", s.ID, dep)
					return false
				}
			}
		}
		return true
	})
	return err
}

func validateItem(it Item, seen map[string]bool) error {
	id := it.ItemID()
	if id == "" {
		return fmt.Errorf("item with empty id (kind %s)", it.ItemKind())
	}
	if seen[id] {
		return fmt.Errorf("item %s: duplicate id", id)
	}
	seen[id] = true

	var declared Kind
	switch v := it.(type) {
	case Phase:
		declared = v.Kind
	case Milestone:
		declared = v.Kind
	case Task:
		declared = v.Kind
	case Subtask:
		declared = v.Kind
	}
	if declared != it.ItemKind() {
		return fmt.Errorf("item %s: type discriminant %q, want %q", id, declared, it.ItemKind())
	}
	if !it.ItemStatus().Valid() {
		return fmt.Errorf("item %s: unknown status %q", id, it.ItemStatus())
	}
	return nil
}

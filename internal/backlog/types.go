// Package backlog defines the hierarchical work-item model driven by the
// orchestration engine: an ordered tree of phases, milestones, tasks, and
// subtasks derived from a Product Requirements Document.
//
// The tree is treated as immutable. Status changes go through Update, which
// returns a new tree sharing every untouched subtree with its input. Walk
// order (depth-first, pre-order) is the single source of truth for
// execution order.
package backlog

// Kind discriminates the four item variants. It is serialized as the
// "type" field of every node in tasks.json.
type Kind string

const (
	KindPhase     Kind = "Phase"
	KindMilestone Kind = "Milestone"
	KindTask      Kind = "Task"
	KindSubtask   Kind = "Subtask"
)

// Status is the execution state of a backlog item.
//
// The set is closed but transitions are unrestricted: any status may
// replace any other, and Update performs no transition validation.
// Callers that want a state machine must layer it on top.
type Status string

const (
	StatusPlanned      Status = "Planned"      // not yet picked up
	StatusResearching  Status = "Researching"  // research artifact being generated
	StatusImplementing Status = "Implementing" // runtime executing against the artifact
	StatusComplete     Status = "Complete"     // finished successfully
	StatusFailed       Status = "Failed"       // terminal failure; replanning may reset it
	StatusObsolete     Status = "Obsolete"     // dropped by a PRD delta, kept for history
)

// Valid reports whether s is one of the six known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPlanned, StatusResearching, StatusImplementing,
		StatusComplete, StatusFailed, StatusObsolete:
		return true
	}
	return false
}

// Terminal reports whether s is an end state for execution purposes.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed || s == StatusObsolete
}

// Item is the uniform read view over the four node kinds. Lookup and
// traversal return Items; callers type-switch when they need structure.
type Item interface {
	ItemID() string
	ItemTitle() string
	ItemStatus() Status
	ItemKind() Kind
}

// Backlog is the root planning document: an ordered list of phases.
// It serializes as the {"backlog": [...]} object stored in tasks.json.
type Backlog struct {
	Phases []Phase `json:"backlog"`
}

// Phase is a top-level stage of the plan. ID format: P<n>.
type Phase struct {
	Kind        Kind        `json:"type"`
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Status      Status      `json:"status"`
	Description string      `json:"description"`
	Milestones  []Milestone `json:"milestones"`
}

// Milestone groups related tasks within a phase. ID format: P<n>.M<n>.
type Milestone struct {
	Kind        Kind   `json:"type"`
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      Status `json:"status"`
	Description string `json:"description"`
	Tasks       []Task `json:"tasks"`
}

// Task groups the subtasks that implement one unit of work.
// ID format: P<n>.M<n>.T<n>.
type Task struct {
	Kind        Kind      `json:"type"`
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Status      Status    `json:"status"`
	Description string    `json:"description"`
	Subtasks    []Subtask `json:"subtasks"`
}

// Subtask is the leaf and the only executable kind. Its contextScope must
// parse as a contract definition block (see ParseContract).
// ID format: P<n>.M<n>.T<n>.S<n>.
type Subtask struct {
	Kind         Kind     `json:"type"`
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Status       Status   `json:"status"`
	Description  string   `json:"description"`
	StoryPoints  int      `json:"storyPoints"`
	Dependencies []string `json:"dependencies"`
	ContextScope string   `json:"contextScope"`
}

func (p Phase) ItemID() string     { return p.ID }
func (p Phase) ItemTitle() string  { return p.Title }
func (p Phase) ItemStatus() Status { return p.Status }
func (p Phase) ItemKind() Kind     { return KindPhase }

func (m Milestone) ItemID() string     { return m.ID }
func (m Milestone) ItemTitle() string  { return m.Title }
func (m Milestone) ItemStatus() Status { return m.Status }
func (m Milestone) ItemKind() Kind     { return KindMilestone }

func (t Task) ItemID() string     { return t.ID }
func (t Task) ItemTitle() string  { return t.Title }
func (t Task) ItemStatus() Status { return t.Status }
func (t Task) ItemKind() Kind     { return KindTask }

func (s Subtask) ItemID() string     { return s.ID }
func (s Subtask) ItemTitle() string  { return s.Title }
func (s Subtask) ItemStatus() Status { return s.Status }
func (s Subtask) ItemKind() Kind     { return KindSubtask }

// Contract returns the parsed contract definition carried by the subtask.
func (s Subtask) Contract() (Contract, error) {
	return ParseContract(s.ContextScope)
}

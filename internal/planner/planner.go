// Package planner turns a structured PRD in markdown into a backlog
// tree. The format is deliberately rigid so planning is deterministic:
//
//	## Phase 1: Title
//	### Milestone 1.1: Title
//	#### Task 1.1.1: Title
//	- [ ] Subtask title [3sp] (after: P1.M1.T1.S1)
//
// A fenced ```contract block after a bullet supplies that subtask's
// contract definition; subtasks without one get a synthesized skeleton
// so strict validation still passes. Heading numbers must nest
// correctly; violations are reported with the offending line number.
package planner

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"prpforge/internal/backlog"
	"prpforge/internal/logging"
)

// ParseError reports a structural problem at a specific PRD line.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("prd line %d: %s", e.Line, e.Msg)
}

func errAt(line int, format string, args ...interface{}) error {
	return &ParseError{Line: line, Msg: fmt.Sprintf(format, args...)}
}

var (
	phaseRe     = regexp.MustCompile(`^##\s+Phase\s+(\d+)\s*:\s*(.+?)\s*$`)
	milestoneRe = regexp.MustCompile(`^###\s+Milestone\s+(\d+)\.(\d+)\s*:\s*(.+?)\s*$`)
	taskRe      = regexp.MustCompile(`^####\s+Task\s+(\d+)\.(\d+)\.(\d+)\s*:\s*(.+?)\s*$`)
	bulletRe    = regexp.MustCompile(`^-\s+\[([ xX])\]\s+(.+?)\s*$`)
	pointsRe    = regexp.MustCompile(`\s*\[(\d+)sp\]`)
	afterRe     = regexp.MustCompile(`\s*\(after:\s*([^)]*)\)`)
)

// Keyword headings that fail their structural regex are rejected
// rather than silently demoted to prose.
var (
	phaseishRe     = regexp.MustCompile(`^##\s+Phase\b`)
	milestoneishRe = regexp.MustCompile(`^###\s+Milestone\b`)
	taskishRe      = regexp.MustCompile(`^####\s+Task\b`)
)

// depRef records a dependency reference for post-parse resolution,
// since bullets may name subtasks that appear later in the document.
type depRef struct {
	from string
	dep  string
	line int
}

type parser struct {
	b       backlog.Backlog
	known   map[string]bool
	deps    []depRef
	lineNum int

	phase     *backlog.Phase
	milestone *backlog.Milestone
	task      *backlog.Task
	subtask   *backlog.Subtask
	phaseNum  int
	mileNum   int

	inContract    bool
	inOtherFence  bool
	contractLines []string
	contractStart int
}

// ParseFile parses the PRD at path.
func ParseFile(path string) (backlog.Backlog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return backlog.Backlog{}, fmt.Errorf("planner: %w", err)
	}
	return Parse(data)
}

// Parse parses PRD markdown into a validated backlog.
func Parse(data []byte) (backlog.Backlog, error) {
	t := logging.StartTimer(logging.CategoryPlanner, "parse prd")
	defer t.Stop()

	p := &parser{known: make(map[string]bool)}
	for i, line := range strings.Split(string(data), "\n") {
		p.lineNum = i + 1
		if err := p.consume(line); err != nil {
			return backlog.Backlog{}, err
		}
	}
	if p.inContract {
		return backlog.Backlog{}, errAt(p.contractStart, "unterminated contract block")
	}
	if len(p.b.Phases) == 0 {
		return backlog.Backlog{}, fmt.Errorf("planner: no phase headings found; expected \"## Phase 1: ...\"")
	}
	if err := p.resolveDeps(); err != nil {
		return backlog.Backlog{}, err
	}
	if err := backlog.Validate(p.b); err != nil {
		return backlog.Backlog{}, fmt.Errorf("planner: %w", err)
	}

	counts := backlog.CountByStatus(p.b)
	logging.Planner("parsed %d phase(s), %d leaf subtask(s), %d item(s) total",
		len(p.b.Phases), len(backlog.Leaves(p.b)), len(backlog.Items(p.b)))
	logging.PlannerDebug("status counts after parse: %v", counts)
	return p.b, nil
}

func (p *parser) consume(raw string) error {
	line := strings.TrimRight(raw, " \t")
	trimmed := strings.TrimSpace(line)

	if p.inContract {
		if strings.HasPrefix(trimmed, "```") {
			return p.closeContract()
		}
		p.contractLines = append(p.contractLines, raw)
		return nil
	}
	if p.inOtherFence {
		if strings.HasPrefix(trimmed, "```") {
			p.inOtherFence = false
		}
		return nil
	}
	switch {
	case strings.HasPrefix(trimmed, "```"):
		return p.openFence(trimmed)
	case phaseRe.MatchString(line):
		return p.openPhase(phaseRe.FindStringSubmatch(line))
	case milestoneRe.MatchString(line):
		return p.openMilestone(milestoneRe.FindStringSubmatch(line))
	case taskRe.MatchString(line):
		return p.openTask(taskRe.FindStringSubmatch(line))
	case phaseishRe.MatchString(line):
		return errAt(p.lineNum, "malformed phase heading %q; expected \"## Phase <n>: Title\"", trimmed)
	case milestoneishRe.MatchString(line):
		return errAt(p.lineNum, "malformed milestone heading %q; expected \"### Milestone <n>.<m>: Title\"", trimmed)
	case taskishRe.MatchString(line):
		return errAt(p.lineNum, "malformed task heading %q; expected \"#### Task <n>.<m>.<t>: Title\"", trimmed)
	case strings.HasPrefix(line, "#"):
		// Any other heading ends the structural region at its depth;
		// following prose belongs to the document, not the plan tree.
		p.resetAtDepth(headingDepth(line))
		return nil
	case bulletRe.MatchString(trimmed):
		return p.openSubtask(bulletRe.FindStringSubmatch(trimmed))
	case trimmed != "":
		p.appendDescription(trimmed)
	}
	return nil
}

func headingDepth(line string) int {
	depth := 0
	for depth < len(line) && line[depth] == '#' {
		depth++
	}
	return depth
}

// resetAtDepth clears the current context at the given heading depth
// and everything below it.
func (p *parser) resetAtDepth(depth int) {
	if depth <= 2 {
		p.phase = nil
	}
	if depth <= 3 {
		p.milestone = nil
	}
	if depth <= 4 {
		p.task = nil
	}
	p.subtask = nil
}

func (p *parser) openFence(trimmed string) error {
	lang := strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	if lang != "contract" {
		p.inOtherFence = true
		return nil
	}
	if p.subtask == nil {
		return errAt(p.lineNum, "contract block outside a subtask bullet")
	}
	p.inContract = true
	p.contractStart = p.lineNum
	p.contractLines = p.contractLines[:0]
	return nil
}

func (p *parser) closeContract() error {
	body := strings.Join(p.contractLines, "\n")
	if _, err := backlog.ParseContract(body); err != nil {
		return errAt(p.contractStart, "%v", err)
	}
	p.subtask.ContextScope = body
	p.inContract = false
	return nil
}

func (p *parser) openPhase(m []string) error {
	num, _ := strconv.Atoi(m[1])
	id := fmt.Sprintf("P%d", num)
	if p.known[id] {
		return errAt(p.lineNum, "duplicate phase id %s", id)
	}
	p.known[id] = true

	p.b.Phases = append(p.b.Phases, backlog.Phase{
		Kind: backlog.KindPhase, ID: id, Title: m[2], Status: backlog.StatusPlanned,
	})
	p.phase = &p.b.Phases[len(p.b.Phases)-1]
	p.milestone, p.task, p.subtask = nil, nil, nil
	p.phaseNum = num
	return nil
}

func (p *parser) openMilestone(m []string) error {
	if p.phase == nil {
		return errAt(p.lineNum, "milestone heading outside a phase")
	}
	pn, _ := strconv.Atoi(m[1])
	mn, _ := strconv.Atoi(m[2])
	if pn != p.phaseNum {
		return errAt(p.lineNum, "milestone %d.%d nested under phase %d", pn, mn, p.phaseNum)
	}
	id := fmt.Sprintf("P%d.M%d", pn, mn)
	if p.known[id] {
		return errAt(p.lineNum, "duplicate milestone id %s", id)
	}
	p.known[id] = true

	p.phase.Milestones = append(p.phase.Milestones, backlog.Milestone{
		Kind: backlog.KindMilestone, ID: id, Title: m[3], Status: backlog.StatusPlanned,
	})
	p.milestone = &p.phase.Milestones[len(p.phase.Milestones)-1]
	p.task, p.subtask = nil, nil
	p.mileNum = mn
	return nil
}

func (p *parser) openTask(m []string) error {
	if p.milestone == nil {
		return errAt(p.lineNum, "task heading outside a milestone")
	}
	pn, _ := strconv.Atoi(m[1])
	mn, _ := strconv.Atoi(m[2])
	tn, _ := strconv.Atoi(m[3])
	if pn != p.phaseNum || mn != p.mileNum {
		return errAt(p.lineNum, "task %d.%d.%d nested under milestone %d.%d", pn, mn, tn, p.phaseNum, p.mileNum)
	}
	id := fmt.Sprintf("P%d.M%d.T%d", pn, mn, tn)
	if p.known[id] {
		return errAt(p.lineNum, "duplicate task id %s", id)
	}
	p.known[id] = true

	p.milestone.Tasks = append(p.milestone.Tasks, backlog.Task{
		Kind: backlog.KindTask, ID: id, Title: m[4], Status: backlog.StatusPlanned,
	})
	p.task = &p.milestone.Tasks[len(p.milestone.Tasks)-1]
	p.subtask = nil
	return nil
}

func (p *parser) openSubtask(m []string) error {
	if p.task == nil {
		return errAt(p.lineNum, "subtask bullet outside a task")
	}

	status := backlog.StatusPlanned
	if m[1] == "x" || m[1] == "X" {
		status = backlog.StatusComplete
	}

	title := m[2]
	points := 1
	if sp := pointsRe.FindStringSubmatch(title); sp != nil {
		points, _ = strconv.Atoi(sp[1])
		title = pointsRe.ReplaceAllString(title, "")
	}
	var deps []string
	if af := afterRe.FindStringSubmatch(title); af != nil {
		for _, d := range strings.Split(af[1], ",") {
			if d = strings.TrimSpace(d); d != "" {
				deps = append(deps, d)
			}
		}
		title = afterRe.ReplaceAllString(title, "")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return errAt(p.lineNum, "subtask bullet has no title")
	}

	seq := len(p.task.Subtasks) + 1
	id := fmt.Sprintf("%s.S%d", p.task.ID, seq)
	p.known[id] = true
	for _, dep := range deps {
		p.deps = append(p.deps, depRef{from: id, dep: dep, line: p.lineNum})
	}
	if deps == nil {
		deps = []string{}
	}

	p.task.Subtasks = append(p.task.Subtasks, backlog.Subtask{
		Kind: backlog.KindSubtask, ID: id, Title: title, Status: status,
		Description: title, StoryPoints: points, Dependencies: deps,
		ContextScope: skeletonContract(title, deps),
	})
	p.subtask = &p.task.Subtasks[len(p.task.Subtasks)-1]
	return nil
}

// appendDescription attaches prose to the nearest open item.
func (p *parser) appendDescription(text string) {
	join := func(existing string) string {
		if existing == "" {
			return text
		}
		return existing + " " + text
	}
	switch {
	case p.subtask != nil:
		p.subtask.Description = join(p.subtask.Description)
	case p.task != nil:
		p.task.Description = join(p.task.Description)
	case p.milestone != nil:
		p.milestone.Description = join(p.milestone.Description)
	case p.phase != nil:
		p.phase.Description = join(p.phase.Description)
	}
}

// resolveDeps verifies every (after: ...) reference against the full
// parse, so forward references are fine and typos are positioned.
func (p *parser) resolveDeps() error {
	for _, ref := range p.deps {
		if !p.known[ref.dep] {
			return errAt(ref.line, "%s depends on unknown item %q", ref.from, ref.dep)
		}
	}
	return nil
}

// skeletonContract synthesizes a minimal contract for bullets that do
// not carry an explicit block.
func skeletonContract(title string, deps []string) string {
	input := "The deliverables of the enclosing task"
	if len(deps) > 0 {
		input = "Outputs of " + strings.Join(deps, ", ")
	}
	return backlog.FormatContract(backlog.Contract{
		ResearchNote: "Review the surrounding plan context for " + title + " before starting.",
		Input:        input + ".",
		Logic:        "Implement " + title + " as described in the PRD.",
		Output:       "A completed, reviewable implementation of " + title + ".",
	})
}

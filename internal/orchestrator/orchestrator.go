// Package orchestrator drives subtask execution over a loaded session:
// a depth-first queue of leaf subtasks, dependency gating against the
// live registry, research artifact acquisition, runtime invocation, and
// status progression through the session manager. One orchestrator
// instance executes strictly sequentially; research runs concurrently
// underneath it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"prpforge/internal/backlog"
	"prpforge/internal/logging"
	"prpforge/internal/prp"
	"prpforge/internal/research"
	"prpforge/internal/runtime"
	"prpforge/internal/session"
	"prpforge/internal/store"
	"prpforge/internal/telemetry"
)

var (
	// ErrDependencyTimeout marks a dependency wait that elapsed before
	// every dependency reached Complete.
	ErrDependencyTimeout = errors.New("dependency wait timed out")

	// ErrExecutionFailed marks a runtime result with success=false. The
	// item's Failed status is recorded before the error is returned.
	ErrExecutionFailed = errors.New("execution failed")
)

// Defaults for the dependency wait; Config overrides both.
const (
	DefaultDependencyTimeout  = 5 * time.Minute
	DefaultDependencyInterval = 2 * time.Second
)

// Runtime executes a research artifact. Outcomes are reported in the
// Result; the error return is reserved for context cancellation.
type Runtime interface {
	Execute(ctx context.Context, artifact *prp.Artifact, prpPath string) (*runtime.Result, error)
}

// Committer records a completed subtask in version control. Failures
// are logged and never fail the subtask.
type Committer interface {
	Commit(ctx context.Context, sessionPath, taskID string) (string, error)
}

// Config assembles an Orchestrator. Manager, Agent, and Runtime are
// required; the rest default sensibly.
type Config struct {
	Manager   *session.Manager
	Agent     research.Agent
	Runtime   Runtime
	Committer Committer      // optional
	Journal   *store.Journal // optional, best-effort events

	Scope       backlog.Scope // zero value covers the whole backlog
	BypassCache bool          // skip the research cache, generate fresh per subtask

	// MaxConcurrent caps parallel research. Negative applies the queue
	// default; zero disables background research entirely (enqueue
	// becomes a no-op and artifacts are generated on demand).
	MaxConcurrent int

	DependencyTimeout  time.Duration
	DependencyInterval time.Duration
}

// Orchestrator owns the execution queue for one session. Methods on a
// single instance are not safe for concurrent use except where noted;
// callers drive ProcessNextItem in a loop.
type Orchestrator struct {
	mu      sync.Mutex
	manager *session.Manager
	agent   research.Agent
	queue   *research.Queue
	runtime Runtime
	commit  Committer
	journal *store.Journal

	scope       backlog.Scope
	bypassCache bool
	depTimeout  time.Duration
	depInterval time.Duration

	executionQueue []backlog.Subtask
}

// New builds an orchestrator and its execution queue from the manager's
// current registry. The manager must already hold a session.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("orchestrator: nil session manager")
	}
	if cfg.Agent == nil {
		return nil, fmt.Errorf("orchestrator: nil research agent")
	}
	if cfg.Runtime == nil {
		return nil, fmt.Errorf("orchestrator: nil runtime")
	}

	o := &Orchestrator{
		manager:     cfg.Manager,
		agent:       cfg.Agent,
		queue:       research.NewQueue(cfg.Agent, cfg.MaxConcurrent),
		runtime:     cfg.Runtime,
		commit:      cfg.Committer,
		journal:     cfg.Journal,
		scope:       cfg.Scope,
		bypassCache: cfg.BypassCache,
		depTimeout:  cfg.DependencyTimeout,
		depInterval: cfg.DependencyInterval,
	}
	if o.depTimeout <= 0 {
		o.depTimeout = DefaultDependencyTimeout
	}
	if o.depInterval <= 0 {
		o.depInterval = DefaultDependencyInterval
	}

	if err := o.rebuildQueue(); err != nil {
		return nil, err
	}
	logging.Orch("queue built: %d leaf subtasks (scope %s %q, bypass=%v)",
		len(o.executionQueue), scopeType(o.scope), o.scope.ID, o.bypassCache)
	return o, nil
}

func scopeType(sc backlog.Scope) backlog.ScopeType {
	if sc.Type == "" {
		return backlog.ScopeAll
	}
	return sc.Type
}

// rebuildQueue snapshots the leaf subtasks inside the scope, DFS order.
func (o *Orchestrator) rebuildQueue() error {
	reg, err := o.manager.Registry()
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.executionQueue = backlog.FilterLeaves(reg, o.scope)
	o.mu.Unlock()
	return nil
}

// SetScope replaces the scope and rebuilds the queue from the current
// hierarchy. Nothing from the prior queue survives.
func (o *Orchestrator) SetScope(sc backlog.Scope) error {
	o.mu.Lock()
	o.scope = sc
	o.mu.Unlock()
	if err := o.rebuildQueue(); err != nil {
		return err
	}
	logging.Orch("scope set to %s %q, queue rebuilt: %d subtasks",
		scopeType(sc), sc.ID, o.Remaining())
	return nil
}

// ExecutionQueue returns a copy of the pending subtasks in order.
func (o *Orchestrator) ExecutionQueue() []backlog.Subtask {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]backlog.Subtask, len(o.executionQueue))
	copy(out, o.executionQueue)
	return out
}

// Remaining reports how many subtasks are still queued.
func (o *Orchestrator) Remaining() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.executionQueue)
}

// ResearchStats exposes the research queue's counters.
func (o *Orchestrator) ResearchStats() research.Stats {
	return o.queue.GetStats()
}

// CanExecute reports whether every dependency of s is Complete in the
// live registry. A dependency id that resolves to nothing blocks
// forever and is logged.
func (o *Orchestrator) CanExecute(s backlog.Subtask) bool {
	reg, err := o.manager.Registry()
	if err != nil {
		return false
	}
	return canExecuteIn(reg, s)
}

func canExecuteIn(reg backlog.Backlog, s backlog.Subtask) bool {
	for _, dep := range s.Dependencies {
		item, ok := backlog.Find(reg, dep)
		if !ok {
			logging.OrchWarn("%s depends on unknown item %s", s.ID, dep)
			return false
		}
		if item.ItemStatus() != backlog.StatusComplete {
			return false
		}
	}
	return true
}

// GetBlockingDependencies returns the dependency items of s that are
// not yet Complete, in declaration order.
func (o *Orchestrator) GetBlockingDependencies(s backlog.Subtask) []backlog.Item {
	reg, err := o.manager.Registry()
	if err != nil {
		return nil
	}
	var blocking []backlog.Item
	for _, dep := range s.Dependencies {
		item, ok := backlog.Find(reg, dep)
		if !ok {
			continue
		}
		if item.ItemStatus() != backlog.StatusComplete {
			blocking = append(blocking, item)
		}
	}
	return blocking
}

// WaitForDependencies polls CanExecute every interval until all
// dependencies of s are Complete, the timeout elapses, or ctx is
// cancelled. Timeout is reported as ErrDependencyTimeout.
func (o *Orchestrator) WaitForDependencies(ctx context.Context, s backlog.Subtask, timeout, interval time.Duration) error {
	if o.CanExecute(s) {
		return nil
	}
	if timeout <= 0 {
		timeout = o.depTimeout
	}
	if interval <= 0 {
		interval = o.depInterval
	}

	logging.Orch("%s waiting on dependencies %v (timeout %s)", s.ID, s.Dependencies, timeout)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			blocking := o.GetBlockingDependencies(s)
			ids := make([]string, 0, len(blocking))
			for _, b := range blocking {
				ids = append(ids, b.ItemID())
			}
			return fmt.Errorf("%w: %s blocked on %v after %s", ErrDependencyTimeout, s.ID, ids, timeout)
		case <-tick.C:
			if o.CanExecute(s) {
				return nil
			}
		}
	}
}

// ProcessNextItem executes one subtask from the head of the queue.
// It returns false only when the queue was already empty; a processed
// item returns true even on failure, so drivers keep looping until
// the queue reports empty. The popped item progresses Researching,
// Implementing, then Complete or Failed; terminal failures return an
// error after the Failed status is recorded. Status updates stay
// buffered in the manager until the caller flushes.
func (o *Orchestrator) ProcessNextItem(ctx context.Context) (bool, error) {
	o.mu.Lock()
	if len(o.executionQueue) == 0 {
		o.mu.Unlock()
		return false, nil
	}
	s := o.executionQueue[0]
	o.executionQueue = o.executionQueue[1:]
	o.mu.Unlock()

	o.manager.SetCurrentItem(s.ID)
	start := time.Now()
	ctx, span := telemetry.StartItemSpan(ctx, s.ID)

	err := o.executeItem(ctx, s)
	telemetry.ObserveItem(ctx, time.Since(start), err)
	telemetry.FinishSpan(span, err)
	return true, err
}

// executeItem runs the research + implement pipeline for one subtask.
func (o *Orchestrator) executeItem(ctx context.Context, s backlog.Subtask) error {
	if !o.CanExecute(s) {
		if err := o.WaitForDependencies(ctx, s, o.depTimeout, o.depInterval); err != nil {
			logging.OrchWarn("%s dependency wait failed: %v", s.ID, err)
			return err
		}
	}

	if err := o.manager.UpdateItemStatus(s.ID, backlog.StatusResearching); err != nil {
		return err
	}

	reg, err := o.manager.Registry()
	if err != nil {
		return err
	}
	artifact, err := o.acquireArtifact(ctx, s, reg)
	if err != nil {
		o.failItem(ctx, s.ID, err, store.EventResearchFailed)
		return err
	}

	state := o.manager.Current()
	if state == nil {
		return session.ErrNoSession
	}
	prpPath, err := o.manager.Store().WritePRP(state.Metadata.Path, artifact)
	if err != nil {
		o.failItem(ctx, s.ID, err, store.EventItemFailed)
		return err
	}

	if err := o.manager.UpdateItemStatus(s.ID, backlog.StatusImplementing); err != nil {
		return err
	}
	logging.Orch("%s implementing (prp %s)", s.ID, prpPath)

	result, err := o.runtime.Execute(ctx, artifact, prpPath)
	if err != nil {
		o.failItem(ctx, s.ID, err, store.EventItemFailed)
		return err
	}
	if !result.Success {
		execErr := fmt.Errorf("%w: %s: %s", ErrExecutionFailed, s.ID, result.Error)
		o.failItem(ctx, s.ID, execErr, store.EventItemFailed)
		return execErr
	}

	if err := o.manager.UpdateItemStatus(s.ID, backlog.StatusComplete); err != nil {
		return err
	}
	o.journal.Record(ctx, o.sessionID(), s.ID, store.EventItemComplete,
		fmt.Sprintf("fix attempts %d", result.FixAttempts))
	logging.Orch("%s complete (%d gates, %d fix attempts)",
		s.ID, len(result.ValidationResults), result.FixAttempts)

	if o.commit != nil {
		if commitID, err := o.commit.Commit(ctx, state.Metadata.Path, s.ID); err != nil {
			logging.OrchWarn("%s commit skipped: %v", s.ID, err)
		} else {
			logging.Orch("%s committed as %s", s.ID, commitID)
		}
	}
	return nil
}

// failItem records the Failed status and journals it; the caller still
// returns the error, so the status write is preserved alongside it.
func (o *Orchestrator) failItem(ctx context.Context, id string, cause error, event string) {
	if err := o.manager.UpdateItemStatus(id, backlog.StatusFailed); err != nil {
		logging.OrchError("%s failed status not recorded: %v", id, err)
	}
	o.journal.Record(ctx, o.sessionID(), id, event, cause.Error())
}

func (o *Orchestrator) sessionID() string {
	if state := o.manager.Current(); state != nil {
		return state.Metadata.ID
	}
	return ""
}

// acquireArtifact fetches the subtask's research artifact: through the
// queue's cache normally, or straight from the agent when the bypass
// flag forces fresh generation.
func (o *Orchestrator) acquireArtifact(ctx context.Context, s backlog.Subtask, reg backlog.Backlog) (*prp.Artifact, error) {
	if o.bypassCache {
		logging.OrchDebug("%s bypassing research cache", s.ID)
		return o.agent.Generate(ctx, s, reg)
	}
	o.queue.Enqueue(s, reg)
	return o.queue.WaitForPRP(ctx, s.ID)
}

// ExecuteTask enqueues every subtask of the task for background
// research without touching any status. Used to prefetch artifacts
// ahead of execution.
func (o *Orchestrator) ExecuteTask(task backlog.Task) error {
	reg, err := o.manager.Registry()
	if err != nil {
		return err
	}
	for _, s := range task.Subtasks {
		o.queue.Enqueue(s, reg)
	}
	logging.Orch("prefetching research for task %s (%d subtasks)", task.ID, len(task.Subtasks))
	return nil
}

// Run drives ProcessNextItem until the queue drains, an item fails, or
// maxItems is reached (maxItems <= 0 means unbounded). Buffered status
// updates are flushed after every item, so terminal statuses are
// durable even when an error stops the loop early. Returns the number
// of items processed.
func (o *Orchestrator) Run(ctx context.Context, maxItems int) (int, error) {
	processed := 0
	for maxItems <= 0 || processed < maxItems {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		hasMore, err := o.ProcessNextItem(ctx)
		if !hasMore {
			return processed, err
		}
		processed++
		if flushErr := o.manager.FlushUpdates(ctx); flushErr != nil {
			if err == nil {
				err = flushErr
			} else {
				logging.OrchError("flush after failed item: %v", flushErr)
			}
		}
		if err != nil {
			return processed, err
		}
	}
	return processed, nil
}

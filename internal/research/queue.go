// Package research implements the bounded-concurrency research
// dispatcher: a fire-and-forget queue that generates one research
// artifact per subtask through an external agent, deduplicates work by
// item id, and caches completed artifacts for the orchestrator.
//
// The queue is the only place where multiple agent invocations are in
// flight at once. Failures are logged here and surfaced only to callers
// awaiting the failed item through WaitForPRP.
package research

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"prpforge/internal/backlog"
	"prpforge/internal/logging"
	"prpforge/internal/prp"
	"prpforge/internal/telemetry"
)

// DefaultMaxConcurrent bounds in-flight agent calls when the caller does
// not pick a limit.
const DefaultMaxConcurrent = 3

// waitPollInterval paces WaitForPRP while the item is still queued
// behind the concurrency cap (or not enqueued yet).
const waitPollInterval = 25 * time.Millisecond

// ErrResearchFailed wraps agent errors propagated to WaitForPRP callers.
var ErrResearchFailed = errors.New("research failed")

// Agent generates one research artifact for a subtask, given the backlog
// it belongs to. Implementations live outside the queue; any error they
// return is logged at warning level and never cached.
type Agent interface {
	Generate(ctx context.Context, item backlog.Subtask, b backlog.Backlog) (*prp.Artifact, error)
}

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	Queued      int // accepted but not yet admitted
	Researching int // agent calls in flight
	Cached      int // completed artifacts
}

// job tracks one in-flight generation. done is closed after the job has
// been removed from the in-flight map; exactly one of artifact or err is
// set before that, so waiters holding the job observe its outcome even
// when a retry for the same id is already underway.
type job struct {
	done     chan struct{}
	artifact *prp.Artifact
	err      error
}

// pending is one queued request: the item plus the backlog snapshot the
// agent will be handed.
type pending struct {
	item backlog.Subtask
	reg  backlog.Backlog
}

// Queue is the research dispatcher. All methods are safe for concurrent
// use; a single mutex guards the queue, in-flight, and result state.
type Queue struct {
	mu            sync.Mutex
	agent         Agent
	maxConcurrent int

	queue    []pending
	inflight map[string]*job
	results  map[string]*prp.Artifact
	failed   map[string]error // last failure per id, cleared on re-enqueue
}

// NewQueue returns a queue over the given agent. maxConcurrent caps
// in-flight generations: 0 disables processing entirely (items queue up
// but nothing runs), negative values fall back to DefaultMaxConcurrent.
func NewQueue(agent Agent, maxConcurrent int) *Queue {
	if maxConcurrent < 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Queue{
		agent:         agent,
		maxConcurrent: maxConcurrent,
		inflight:      make(map[string]*job),
		results:       make(map[string]*prp.Artifact),
		failed:        make(map[string]error),
	}
}

// Enqueue requests research for item. Cached and in-flight items are
// deduplicated: the agent runs at most once per successful outcome. A
// recorded failure for the item is cleared, so waiters arriving after
// this call observe the retry, never the stale failure. The call never
// blocks; completion is observed through WaitForPRP or GetPRP.
func (q *Queue) Enqueue(item backlog.Subtask, b backlog.Backlog) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.results[item.ID]; ok {
		logging.ResearchDebug("enqueue %s: already cached", item.ID)
		return
	}
	if _, ok := q.inflight[item.ID]; ok {
		logging.ResearchDebug("enqueue %s: already researching", item.ID)
		return
	}

	delete(q.failed, item.ID)
	q.queue = append(q.queue, pending{item: item, reg: b})
	logging.ResearchDebug("enqueue %s: queued (%d waiting, %d in flight)",
		item.ID, len(q.queue), len(q.inflight))
	q.drainLocked()
}

// drainLocked admits queued items while capacity remains. Items that
// became cached or in-flight since they were queued are dropped here, so
// double-enqueues before admission never double-run. Caller holds mu.
func (q *Queue) drainLocked() {
	for q.maxConcurrent > 0 && len(q.inflight) < q.maxConcurrent && len(q.queue) > 0 {
		next := q.queue[0]
		q.queue = q.queue[1:]
		id := next.item.ID
		if _, ok := q.results[id]; ok {
			continue
		}
		if _, ok := q.inflight[id]; ok {
			continue
		}
		j := &job{done: make(chan struct{})}
		q.inflight[id] = j
		logging.Research("research started for %s (%d/%d slots)", id, len(q.inflight), q.maxConcurrent)
		go q.run(next.item, next.reg, j)
	}
}

// run executes one generation in the background. The in-flight entry is
// removed on every exit path before done is closed; a failed id is
// therefore free for a fresh Enqueue by the time waiters wake up.
func (q *Queue) run(item backlog.Subtask, reg backlog.Backlog, j *job) {
	ctx := context.Background()
	defer func() {
		q.mu.Lock()
		delete(q.inflight, item.ID)
		if j.err != nil {
			q.failed[item.ID] = j.err
		}
		q.drainLocked()
		q.mu.Unlock()
		close(j.done)
	}()

	start := time.Now()
	artifact, err := q.agent.Generate(ctx, item, reg)
	telemetry.CountResearch(ctx, err)
	if err != nil {
		j.err = err
		logging.ResearchWarn("research for %s failed: %v", item.ID, err)
		return
	}

	q.mu.Lock()
	if _, ok := q.results[item.ID]; !ok {
		q.results[item.ID] = artifact
	}
	q.mu.Unlock()
	j.artifact = artifact
	logging.Research("research for %s complete in %v (%d steps, %d gates)",
		item.ID, time.Since(start), len(artifact.ImplementationSteps), len(artifact.ValidationGates))
}

// WaitForPRP blocks until an artifact exists for id, the generation the
// caller is awaiting fails, or ctx is done. A recorded failure stands
// until the next Enqueue for the id; waiters arriving after a re-enqueue
// never observe the superseded failure.
func (q *Queue) WaitForPRP(ctx context.Context, id string) (*prp.Artifact, error) {
	for {
		q.mu.Lock()
		if a, ok := q.results[id]; ok {
			q.mu.Unlock()
			return a, nil
		}
		j := q.inflight[id]
		var ferr error
		if j == nil {
			ferr = q.failed[id]
		}
		q.mu.Unlock()

		if ferr != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrResearchFailed, id, ferr)
		}
		if j == nil {
			// Queued behind the cap, or not enqueued at all: poll.
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(waitPollInterval):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-j.done:
		}
		if j.err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrResearchFailed, id, j.err)
		}
		// Success: loop and pick the artifact up from the cache.
	}
}

// GetPRP is the non-blocking cache lookup.
func (q *Queue) GetPRP(id string) (*prp.Artifact, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	a, ok := q.results[id]
	return a, ok
}

// GetStats reports the live queue state.
func (q *Queue) GetStats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Queued:      len(q.queue),
		Researching: len(q.inflight),
		Cached:      len(q.results),
	}
}

// MaxConcurrent returns the configured concurrency cap.
func (q *Queue) MaxConcurrent() int { return q.maxConcurrent }

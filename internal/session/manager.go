// Package session implements the stateful facade that owns exactly one
// current session: hash-keyed load-or-create from a PRD, explicit loads,
// delta session creation when the PRD changes, and buffered status
// updates flushed as a single atomic registry write.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"prpforge/internal/backlog"
	"prpforge/internal/delta"
	"prpforge/internal/logging"
	"prpforge/internal/store"
	"prpforge/internal/telemetry"
)

// ErrNoSession is returned by operations that need a current session
// before Initialize or LoadSession has succeeded.
var ErrNoSession = errors.New("no current session")

// DeltaSession pairs a freshly created session with the PRD revisions on
// both sides of the change.
type DeltaSession struct {
	State       *store.SessionState
	OldPRD      []byte
	NewPRD      []byte
	DiffSummary string
}

// Manager drives the session lifecycle for one PRD/plan-directory pair.
// All methods are safe for concurrent use; flushes are serialized so two
// callers cannot interleave registry writes.
type Manager struct {
	mu      sync.Mutex
	store   *store.SessionStore
	journal *store.Journal
	prdPath string

	current *store.SessionState
	dirty   bool
	pending int // buffered status updates since the last flush
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal attaches an execution journal; events are best-effort.
func WithJournal(j *store.Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// NewManager returns a manager over prdPath and planDir. No filesystem
// access happens until Initialize or LoadSession.
func NewManager(prdPath, planDir string, opts ...Option) *Manager {
	m := &Manager{
		store:   store.NewSessionStore(planDir),
		prdPath: prdPath,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store exposes the underlying session store for read-only discovery.
func (m *Manager) Store() *store.SessionStore { return m.store }

// PRDPath returns the PRD path the manager was constructed with.
func (m *Manager) PRDPath() string { return m.prdPath }

// Initialize loads the session whose hash matches the current PRD bytes,
// creating it first when none exists. It is idempotent: repeated calls
// against an unchanged PRD land on the same session.
func (m *Manager) Initialize(ctx context.Context) (*store.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prd, err := store.ReadPRD(m.prdPath)
	if err != nil {
		return nil, err
	}
	hash := store.HashPRD(prd)

	existing, err := m.store.FindSessionByHash(hash)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		state, err := m.store.LoadSession(existing.ID)
		if err != nil {
			return nil, err
		}
		m.setCurrentLocked(state)
		m.journal.Record(ctx, state.Metadata.ID, "", store.EventSessionLoaded, m.prdPath)
		logging.Session("initialize: loaded session %s for hash %s", state.Metadata.ID, hash)
		return state, nil
	}

	state, err := m.store.CreateSession(prd, "")
	if err != nil {
		return nil, err
	}
	m.setCurrentLocked(state)
	m.journal.Record(ctx, state.Metadata.ID, "", store.EventSessionCreated, m.prdPath)
	telemetry.CountSessionCreated(ctx)
	logging.Session("initialize: created session %s for hash %s", state.Metadata.ID, hash)
	return state, nil
}

// LoadSession makes the named session current, bypassing hash lookup.
func (m *Manager) LoadSession(ctx context.Context, id string) (*store.SessionState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, err := m.store.LoadSession(id)
	if err != nil {
		return nil, err
	}
	m.setCurrentLocked(state)
	m.journal.Record(ctx, state.Metadata.ID, "", store.EventSessionLoaded, "explicit load")
	logging.Session("loaded session %s", state.Metadata.ID)
	return state, nil
}

// CreateDeltaSession creates a child session for the PRD at newPRDPath
// and makes it current. The session is created unconditionally, even
// when the new PRD hashes identically to the old one; callers may
// short-circuit beforehand if they care. The new session inherits the
// current in-memory registry (dirty, so the next flush persists it) and
// records the previous session as its parent.
func (m *Manager) CreateDeltaSession(ctx context.Context, newPRDPath string) (*DeltaSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return nil, ErrNoSession
	}
	newPRD, err := store.ReadPRD(newPRDPath)
	if err != nil {
		return nil, err
	}

	parent := m.current
	state, err := m.store.CreateSession(newPRD, parent.Metadata.ID)
	if err != nil {
		return nil, err
	}

	// Carry the parent's registry forward; the delta patcher rewrites
	// statuses on top of it and the first flush persists the result.
	state.Registry = parent.Registry
	m.current = state
	m.dirty = true
	m.pending = 0

	summary := delta.DiffSummary(parent.PRDSnapshot, newPRD)
	m.journal.Record(ctx, state.Metadata.ID, "", store.EventDeltaCreated,
		fmt.Sprintf("parent=%s", parent.Metadata.ID))
	logging.Session("delta session %s created (parent %s, hash %s -> %s)",
		state.Metadata.ID, parent.Metadata.ID, parent.Metadata.Hash, state.Metadata.Hash)

	return &DeltaSession{
		State:       state,
		OldPRD:      parent.PRDSnapshot,
		NewPRD:      newPRD,
		DiffSummary: summary,
	}, nil
}

// Current returns the loaded session state, or nil before Initialize.
func (m *Manager) Current() *store.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Registry returns the current in-memory backlog. The returned tree is
// immutable by convention; mutate through UpdateItemStatus.
func (m *Manager) Registry() (backlog.Backlog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return backlog.Backlog{}, ErrNoSession
	}
	return m.current.Registry, nil
}

// SetRegistry replaces the current registry wholesale (the planner and
// the delta patcher produce full trees). The change is buffered like any
// status update and hits disk on the next flush.
func (m *Manager) SetRegistry(b backlog.Backlog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoSession
	}
	m.current.Registry = b
	m.dirty = true
	m.pending++
	return nil
}

// UpdateItemStatus applies one immutable status update to the in-memory
// registry and marks the session dirty. The on-disk registry does not
// change until FlushUpdates. Updates against unknown ids are logged and
// dropped, mirroring the no-error contract of backlog.Update.
func (m *Manager) UpdateItemStatus(id string, status backlog.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ErrNoSession
	}
	if _, ok := backlog.Find(m.current.Registry, id); !ok {
		logging.SessionWarn("status update for unknown item %s ignored", id)
		return nil
	}
	m.current.Registry = backlog.Update(m.current.Registry, id, status)
	m.dirty = true
	m.pending++
	logging.SessionDebug("buffered status update %s -> %s (%d pending)", id, status, m.pending)
	return nil
}

// SetCurrentItem records which item the orchestrator is executing. The
// value is in-memory only.
func (m *Manager) SetCurrentItem(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.CurrentItem = id
	}
}

// Dirty reports whether buffered updates await a flush.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// FlushUpdates writes the current registry to disk in one atomic write,
// coalescing every update buffered since the previous flush. A clean
// session flushes nothing. On failure the previous on-disk registry is
// intact and the buffered state stays dirty for a retry.
func (m *Manager) FlushUpdates(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoSession
	}
	if !m.dirty {
		logging.SessionDebug("flush: nothing buffered")
		return nil
	}

	if err := m.store.SaveRegistry(m.current.Metadata.Path, m.current.Registry); err != nil {
		return err
	}

	updates := m.pending
	saved := 0
	if updates > 1 {
		saved = updates - 1
	}
	m.dirty = false
	m.pending = 0

	telemetry.CountFlush(ctx, updates, saved)
	m.journal.Record(ctx, m.current.Metadata.ID, "", store.EventFlush,
		fmt.Sprintf("%d updates coalesced, %d writes saved", updates, saved))
	logging.Session("flushed %d buffered updates in one write (%d writes saved)", updates, saved)
	return nil
}

func (m *Manager) setCurrentLocked(state *store.SessionState) {
	m.current = state
	m.dirty = false
	m.pending = 0
}

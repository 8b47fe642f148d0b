package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"prpforge/internal/logging"
)

// JournalFile is the sqlite database name at the plan directory root.
const JournalFile = "journal.db"

// Event kinds recorded by the engine. The journal is observational only;
// a failed insert never fails the operation that emitted the event.
const (
	EventSessionCreated = "session_created"
	EventSessionLoaded  = "session_loaded"
	EventDeltaCreated   = "delta_created"
	EventFlush          = "flush"
	EventItemComplete   = "item_complete"
	EventItemFailed     = "item_failed"
	EventResearchFailed = "research_failed"
)

// Event is one journal row.
type Event struct {
	ID      string
	At      time.Time
	Session string
	Item    string
	Kind    string
	Detail  string
}

// Journal is an append-only event log shared by every session in a plan
// directory.
type Journal struct {
	db *sql.DB
}

// OpenJournal opens (and initializes when needed) the journal database
// under planDir.
func OpenJournal(planDir string) (*Journal, error) {
	if err := os.MkdirAll(planDir, DirPerm); err != nil {
		return nil, fmt.Errorf("create plan directory: %w", err)
	}
	db, err := sql.Open("sqlite", filepath.Join(planDir, JournalFile))
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		at DATETIME NOT NULL,
		session TEXT NOT NULL,
		item TEXT,
		kind TEXT NOT NULL,
		detail TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_session ON events(session);
	CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize journal schema: %w", err)
	}
	return nil
}

// Record appends one event. Errors are logged and swallowed; the journal
// must never take an engine operation down with it.
func (j *Journal) Record(ctx context.Context, session, item, kind, detail string) {
	if j == nil || j.db == nil {
		return
	}
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, at, session, item, kind, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), time.Now().UTC(), session, item, kind, detail)
	if err != nil {
		logging.StoreWarn("journal insert failed (kind=%s session=%s): %v", kind, session, err)
	}
}

// Recent returns up to limit events, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, at, session, item, kind, detail FROM events ORDER BY at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.At, &e.Session, &e.Item, &e.Kind, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close releases the underlying database handle.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"prpforge/internal/backlog"
	"prpforge/internal/logging"
	"prpforge/internal/prp"
)

// Session layout inside a plan directory.
const (
	SnapshotFile    = "prd_snapshot.md"    // exact PRD bytes the hash was computed over
	RegistryFile    = "tasks.json"         // serialized backlog
	ParentFile      = "parent_session.txt" // optional: parent session id
	ArchitectureDir = "architecture"       // external collaborator workspace
	PRPsDir         = "prps"               // generated research artifacts
	ArtifactsDir    = "artifacts"          // implementation outputs

	DirPerm  = 0o755
	FilePerm = 0o644
)

// Metadata identifies one session directory.
type Metadata struct {
	ID            string    // "<seq:03d>_<hash:12hex>"
	Seq           int       // 1-based ordinal among sibling sessions
	Hash          string    // truncated PRD digest
	Path          string    // absolute session directory path
	CreatedAt     time.Time
	ParentSession string // parent session id, empty when none
}

// SessionState is a fully loaded session: its identity, the exact PRD
// bytes it was keyed on, and the in-memory task registry.
type SessionState struct {
	Metadata    Metadata
	PRDSnapshot []byte
	Registry    backlog.Backlog
	CurrentItem string // id of the item being executed, not persisted
}

// SessionStore performs all filesystem access below one plan directory.
type SessionStore struct {
	planDir string
}

// NewSessionStore returns a store rooted at planDir. The directory is
// created lazily on the first session write.
func NewSessionStore(planDir string) *SessionStore {
	return &SessionStore{planDir: planDir}
}

// PlanDir returns the plan directory root.
func (s *SessionStore) PlanDir() string { return s.planDir }

// SessionPath returns the absolute path of a session directory by id.
func (s *SessionStore) SessionPath(id string) string {
	return filepath.Join(s.planDir, id)
}

// CreateSession materializes a new session directory for the given PRD
// bytes: next sequence number, snapshot, empty registry, workspace
// subdirectories, and an optional parent marker. The caller is
// responsible for deciding whether a session with this hash already
// exists; CreateSession always creates.
func (s *SessionStore) CreateSession(prdBytes []byte, parentID string) (*SessionState, error) {
	hash := HashPRD(prdBytes)
	seq, err := s.nextSeq()
	if err != nil {
		return nil, err
	}

	id := SessionDirName(seq, hash)
	path := s.SessionPath(id)
	for _, dir := range []string{
		path,
		filepath.Join(path, ArchitectureDir),
		filepath.Join(path, PRPsDir),
		filepath.Join(path, ArtifactsDir),
	} {
		if err := os.MkdirAll(dir, DirPerm); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrSessionFile, dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(path, SnapshotFile), prdBytes, FilePerm); err != nil {
		return nil, fmt.Errorf("%w: write %s: %v", ErrSessionFile, SnapshotFile, err)
	}
	if err := s.SaveRegistry(path, backlog.Backlog{}); err != nil {
		return nil, err
	}
	if parentID != "" {
		if err := os.WriteFile(filepath.Join(path, ParentFile), []byte(parentID+"\n"), FilePerm); err != nil {
			return nil, fmt.Errorf("%w: write %s: %v", ErrSessionFile, ParentFile, err)
		}
	}

	logging.Store("created session %s (seq=%d hash=%s parent=%q)", id, seq, hash, parentID)

	return &SessionState{
		Metadata: Metadata{
			ID:            id,
			Seq:           seq,
			Hash:          hash,
			Path:          path,
			CreatedAt:     time.Now(),
			ParentSession: parentID,
		},
		PRDSnapshot: prdBytes,
		Registry:    backlog.Backlog{},
	}, nil
}

// LoadSession reads a session directory back into memory by its id. The
// snapshot must hash to the name's hash and the registry must pass the
// strict schema, otherwise the session is reported as damaged.
func (s *SessionStore) LoadSession(id string) (*SessionState, error) {
	seq, hash, err := ParseSessionDirName(id)
	if err != nil {
		return nil, err
	}
	path := s.SessionPath(id)
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	snapshot, err := os.ReadFile(filepath.Join(path, SnapshotFile))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrSessionFile, SnapshotFile, err)
	}
	if got := HashPRD(snapshot); got != hash {
		return nil, fmt.Errorf("%w: snapshot hash %s does not match directory hash %s", ErrSessionFile, got, hash)
	}

	registry, err := s.loadRegistry(path)
	if err != nil {
		return nil, err
	}

	parentID, err := readParentFile(filepath.Join(path, ParentFile))
	if err != nil {
		return nil, err
	}

	logging.Store("loaded session %s (%d items)", id, len(backlog.Items(registry)))

	return &SessionState{
		Metadata: Metadata{
			ID:            id,
			Seq:           seq,
			Hash:          hash,
			Path:          path,
			CreatedAt:     info.ModTime(),
			ParentSession: parentID,
		},
		PRDSnapshot: snapshot,
		Registry:    registry,
	}, nil
}

func (s *SessionStore) loadRegistry(sessionPath string) (backlog.Backlog, error) {
	data, err := os.ReadFile(filepath.Join(sessionPath, RegistryFile))
	if err != nil {
		return backlog.Backlog{}, fmt.Errorf("%w: read %s: %v", ErrSessionFile, RegistryFile, err)
	}
	b, err := backlog.DecodeBytes(data)
	if err != nil {
		return backlog.Backlog{}, fmt.Errorf("%w: %v", ErrSessionFile, err)
	}
	return b, nil
}

// SaveRegistry atomically replaces tasks.json under sessionPath with the
// canonical encoding of b.
func (s *SessionStore) SaveRegistry(sessionPath string, b backlog.Backlog) error {
	data, err := backlog.Encode(b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFile, err)
	}
	if err := WriteFileAtomic(filepath.Join(sessionPath, RegistryFile), data, FilePerm); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionFile, err)
	}
	return nil
}

// WritePRP renders an artifact into the session's prps/ directory and
// returns the file path handed to the implementation runtime.
func (s *SessionStore) WritePRP(sessionPath string, artifact *prp.Artifact) (string, error) {
	path := filepath.Join(sessionPath, PRPsDir, prp.Filename(artifact.TaskID))
	if err := os.WriteFile(path, []byte(prp.Render(artifact)), FilePerm); err != nil {
		return "", fmt.Errorf("%w: write %s: %v", ErrSessionFile, path, err)
	}
	return path, nil
}

// ReadPRD reads and validates PRD bytes from disk: the file must exist,
// be readable, and carry at least MinPRDSize bytes of content.
func ReadPRD(prdPath string) ([]byte, error) {
	data, err := os.ReadFile(prdPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrPRDNotFound, prdPath)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrPRDNotFound, prdPath, err)
	}
	if len(data) < MinPRDSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, need at least %d",
			ErrPRDInvalid, prdPath, len(data), MinPRDSize)
	}
	return data, nil
}

// MinPRDSize is the smallest PRD the engine accepts, in bytes.
const MinPRDSize = 100

// readParentFile returns the trimmed parent session id, or empty when the
// marker file does not exist.
func readParentFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", ErrSessionFile, ParentFile, err)
	}
	id := strings.TrimSpace(string(data))
	if !IsSessionDirName(id) {
		return "", fmt.Errorf("%w: %s holds %q, not a session id", ErrSessionFile, ParentFile, id)
	}
	return id, nil
}

// nextSeq returns one past the highest sequence among existing session
// directories, or 1 for an empty or missing plan directory.
func (s *SessionStore) nextSeq() (int, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return 0, err
	}
	max := 0
	for _, m := range sessions {
		if m.Seq > max {
			max = m.Seq
		}
	}
	return max + 1, nil
}

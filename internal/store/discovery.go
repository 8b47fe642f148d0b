package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// ListSessions enumerates the session directories under the plan
// directory, sorted by sequence ascending. A missing plan directory is an
// empty list, not an error.
func (s *SessionStore) ListSessions() ([]Metadata, error) {
	entries, err := os.ReadDir(s.planDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read plan directory %s: %v", ErrSessionFile, s.planDir, err)
	}

	var out []Metadata
	for _, entry := range entries {
		if !entry.IsDir() || !IsSessionDirName(entry.Name()) {
			continue
		}
		seq, hash, err := ParseSessionDirName(entry.Name())
		if err != nil {
			continue
		}
		path := s.SessionPath(entry.Name())
		meta := Metadata{
			ID:   entry.Name(),
			Seq:  seq,
			Hash: hash,
			Path: path,
		}
		if info, err := entry.Info(); err == nil {
			meta.CreatedAt = info.ModTime()
		}
		if parent, err := readParentFile(filepath.Join(path, ParentFile)); err == nil {
			meta.ParentSession = parent
		}
		out = append(out, meta)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// FindLatestSession returns the session with the highest sequence, or nil
// when the plan directory holds none.
func (s *SessionStore) FindLatestSession() (*Metadata, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	latest := sessions[len(sessions)-1]
	return &latest, nil
}

// FindSessionByPRD hashes the PRD at prdPath and returns the metadata of
// the session keyed by that hash, or nil when no session matches. When
// several sessions share the hash (a delta chain that returned to an
// earlier PRD), the most recent one wins.
func (s *SessionStore) FindSessionByPRD(prdPath string) (*Metadata, error) {
	data, err := os.ReadFile(prdPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPRDNotFound, prdPath)
	}
	return s.FindSessionByHash(HashPRD(data))
}

// FindSessionByHash returns the most recent session whose directory name
// carries the given hash, or nil when none does.
func (s *SessionStore) FindSessionByHash(hash string) (*Metadata, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, err
	}
	var found *Metadata
	for i := range sessions {
		if sessions[i].Hash == hash {
			found = &sessions[i]
		}
	}
	return found, nil
}

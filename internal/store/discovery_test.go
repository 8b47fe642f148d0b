package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"prpforge/internal/store"
)

func TestListSessionsMissingPlanDir(t *testing.T) {
	s := store.NewSessionStore(filepath.Join(t.TempDir(), "never-created"))
	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Empty(t, sessions)
}

func TestListSessionsSortedAndFiltered(t *testing.T) {
	planDir := t.TempDir()
	s := store.NewSessionStore(planDir)

	for _, prd := range []string{prdFixture, prdFixture + "a", prdFixture + "b"} {
		_, err := s.CreateSession([]byte(prd), "")
		require.NoError(t, err)
	}
	// Clutter that must be ignored: wrong names and plain files.
	require.NoError(t, os.MkdirAll(filepath.Join(planDir, "notes"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(planDir, "01_short"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(planDir, "004_badfilenotdir"), []byte("x"), 0o644))

	sessions, err := s.ListSessions()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for i, m := range sessions {
		require.Equal(t, i+1, m.Seq)
	}
}

func TestFindLatestSession(t *testing.T) {
	s := store.NewSessionStore(t.TempDir())

	latest, err := s.FindLatestSession()
	require.NoError(t, err)
	require.Nil(t, latest)

	_, err = s.CreateSession([]byte(prdFixture), "")
	require.NoError(t, err)
	second, err := s.CreateSession([]byte(prdFixture+"v2"), "")
	require.NoError(t, err)

	latest, err = s.FindLatestSession()
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.Equal(t, second.Metadata.ID, latest.ID)
}

func TestFindSessionByPRD(t *testing.T) {
	dir := t.TempDir()
	s := store.NewSessionStore(filepath.Join(dir, "plan"))

	prdPath := filepath.Join(dir, "prd.md")
	require.NoError(t, os.WriteFile(prdPath, []byte(prdFixture), 0o644))

	// No sessions yet: absent, not an error.
	found, err := s.FindSessionByPRD(prdPath)
	require.NoError(t, err)
	require.Nil(t, found)

	created, err := s.CreateSession([]byte(prdFixture), "")
	require.NoError(t, err)
	_, err = s.CreateSession([]byte(prdFixture+"v2"), "")
	require.NoError(t, err)

	found, err = s.FindSessionByPRD(prdPath)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, created.Metadata.ID, found.ID)

	// Missing PRD file is a real error.
	_, err = s.FindSessionByPRD(filepath.Join(dir, "gone.md"))
	require.ErrorIs(t, err, store.ErrPRDNotFound)
}

func TestFindSessionByHashPrefersLatest(t *testing.T) {
	s := store.NewSessionStore(t.TempDir())

	first, err := s.CreateSession([]byte(prdFixture), "")
	require.NoError(t, err)
	_, err = s.CreateSession([]byte(prdFixture+"v2"), first.Metadata.ID)
	require.NoError(t, err)
	// A delta chain can return to a previous PRD; the same hash then
	// appears twice and the newest directory wins.
	third, err := s.CreateSession([]byte(prdFixture), "")
	require.NoError(t, err)

	found, err := s.FindSessionByHash(first.Metadata.Hash)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, third.Metadata.ID, found.ID)
}

func TestParseSessionDirName(t *testing.T) {
	seq, hash, err := store.ParseSessionDirName("042_0123456789ab")
	require.NoError(t, err)
	require.Equal(t, 42, seq)
	require.Equal(t, "0123456789ab", hash)

	for _, bad := range []string{"42_0123456789ab", "042-0123456789ab", "042_0123456789AB", "042_0123", ""} {
		_, _, err := store.ParseSessionDirName(bad)
		require.Error(t, err, bad)
		require.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestHashPRDStable(t *testing.T) {
	a := store.HashPRD([]byte(prdFixture))
	b := store.HashPRD([]byte(prdFixture))
	require.Equal(t, a, b)
	require.Len(t, a, store.HashLen)
	require.NotEqual(t, a, store.HashPRD([]byte(prdFixture+" ")))
}

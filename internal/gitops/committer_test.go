package gitops_test

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"prpforge/internal/gitops"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	for _, args := range [][]string{
		{"init", "-q"},
		{"config", "user.email", "ci@example.com"},
		{"config", "user.name", "CI"},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoError(t, err, "git %v: %s", args, out)
	}
	return dir
}

func writeSessionFile(t *testing.T, sessionPath, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(sessionPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(sessionPath, name), []byte(content), 0o644))
}

func TestCommitReturnsHash(t *testing.T) {
	repo := initRepo(t)
	sessionPath := filepath.Join(repo, "plan", "001_abcdefabcdef")
	writeSessionFile(t, sessionPath, "tasks.json", `{"backlog":[]}`)

	c := gitops.NewCommitter(repo)
	hash, err := c.Commit(context.Background(), sessionPath, "P1.M1.T1.S1")
	require.NoError(t, err)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{40}$`), hash)

	// The subject line carries the subtask id.
	cmd := exec.Command("git", "log", "-1", "--format=%s")
	cmd.Dir = repo
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	require.Contains(t, string(out), "P1.M1.T1.S1")
}

func TestCommitCleanIndex(t *testing.T) {
	repo := initRepo(t)
	sessionPath := filepath.Join(repo, "plan", "001_abcdefabcdef")
	writeSessionFile(t, sessionPath, "tasks.json", `{"backlog":[]}`)

	c := gitops.NewCommitter(repo)
	_, err := c.Commit(context.Background(), sessionPath, "P1.M1.T1.S1")
	require.NoError(t, err)

	// Nothing changed since the last commit.
	_, err = c.Commit(context.Background(), sessionPath, "P1.M1.T1.S2")
	require.ErrorIs(t, err, gitops.ErrNothingToCommit)
}

func TestCommitSkipsProtectedFiles(t *testing.T) {
	repo := initRepo(t)
	sessionPath := filepath.Join(repo, "plan", "001_abcdefabcdef")
	writeSessionFile(t, sessionPath, "tasks.json", `{"backlog":[]}`)
	writeSessionFile(t, sessionPath, ".env", "ANTHROPIC_API_KEY=hunter2")

	c := gitops.NewCommitter(repo)
	_, err := c.Commit(context.Background(), sessionPath, "P1.M1.T1.S1")
	require.NoError(t, err)

	cmd := exec.Command("git", "show", "--name-only", "--format=", "HEAD")
	cmd.Dir = repo
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	require.Contains(t, string(out), "tasks.json")
	require.NotContains(t, string(out), ".env")
}

func TestCommitOutsideRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	c := gitops.NewCommitter(dir)
	_, err := c.Commit(context.Background(), dir, "P1.M1.T1.S1")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a git repository")
}

// Package gitops records completed subtasks in version control. The
// committer shells out to the git CLI; it never links libgit. Commit
// failures are reported as errors the orchestrator logs and ignores,
// so a missing repository degrades to no history rather than a broken
// run.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"prpforge/internal/logging"
)

// ErrNothingToCommit means staging produced an empty index; the session
// files were already committed.
var ErrNothingToCommit = errors.New("nothing to commit")

// DefaultProtectedPatterns are never staged, whatever lands in the
// session directory. Git pathspec wildcards cross directory
// separators, so these match at any depth.
var DefaultProtectedPatterns = []string{"*.env", "*.pem", "*.key"}

// Committer stages a session directory and commits it per subtask.
type Committer struct {
	workDir   string
	protected []string
}

// NewCommitter returns a committer operating in workDir. Extra
// protected patterns extend the defaults.
func NewCommitter(workDir string, protected ...string) *Committer {
	return &Committer{
		workDir:   workDir,
		protected: append(append([]string{}, DefaultProtectedPatterns...), protected...),
	}
}

// Commit stages everything under sessionPath except protected patterns
// and commits it, returning the new commit hash. Returns
// ErrNothingToCommit when the index is already clean.
func (c *Committer) Commit(ctx context.Context, sessionPath, taskID string) (string, error) {
	if _, err := c.git(ctx, "rev-parse", "--is-inside-work-tree"); err != nil {
		return "", fmt.Errorf("gitops: not a git repository: %w", err)
	}

	if _, err := c.git(ctx, "add", "-A", "--", sessionPath); err != nil {
		return "", fmt.Errorf("gitops: stage %s: %w", sessionPath, err)
	}
	for _, pattern := range c.protected {
		// Unstage anything matching a protected pattern; a pattern that
		// matches nothing is not an error worth surfacing.
		if _, err := c.git(ctx, "reset", "-q", "--", pattern); err != nil {
			logging.GitWarn("reset %s: %v", pattern, err)
		}
	}

	if _, err := c.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return "", ErrNothingToCommit
	}

	message := fmt.Sprintf("prp: complete %s", taskID)
	if _, err := c.git(ctx, "commit", "-m", message); err != nil {
		return "", fmt.Errorf("gitops: commit: %w", err)
	}
	hash, err := c.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", fmt.Errorf("gitops: resolve HEAD: %w", err)
	}
	logging.Git("committed %s as %s", taskID, hash)
	return hash, nil
}

// git runs one git command in the working directory and returns its
// trimmed combined output.
func (c *Committer) git(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = c.workDir
	output, err := cmd.CombinedOutput()
	out := strings.TrimSpace(string(output))
	if err != nil {
		if out != "" {
			return out, fmt.Errorf("git %s: %w: %s", args[0], err, out)
		}
		return out, fmt.Errorf("git %s: %w", args[0], err)
	}
	return out, nil
}

// Package runtime executes validated PRP artifacts. The gate runtime
// walks an artifact's validation gates in level order, runs each
// runnable gate through the shell with a per-gate timeout, and retries
// a failing gate within a small fix budget before giving up. Outcomes
// are reported as results, not errors: the only error Execute returns
// is context cancellation.
package runtime

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"prpforge/internal/logging"
	"prpforge/internal/prp"
)

// Defaults applied when Options leaves a field zero.
const (
	DefaultGateTimeout = 2 * time.Minute
	DefaultFixAttempts = 2
)

// GateResult records one gate's outcome, including skipped manual gates.
type GateResult struct {
	Level       int           `json:"level"`
	Description string        `json:"description"`
	Command     string        `json:"command,omitempty"`
	Manual      bool          `json:"manual"`
	Skipped     bool          `json:"skipped"`
	Passed      bool          `json:"passed"`
	Output      string        `json:"output,omitempty"`
	Attempts    int           `json:"attempts"`
	Duration    time.Duration `json:"duration"`
}

// Result is the full outcome of executing one artifact.
type Result struct {
	Success           bool         `json:"success"`
	Error             string       `json:"error,omitempty"`
	ValidationResults []GateResult `json:"validationResults"`
	Artifacts         []string     `json:"artifacts,omitempty"`
	FixAttempts       int          `json:"fixAttempts"`
	StartedAt         time.Time    `json:"startedAt"`
	FinishedAt        time.Time    `json:"finishedAt"`
}

// Options configures a GateRuntime.
type Options struct {
	WorkDir      string        // working directory for gate commands; empty uses the process cwd
	GateTimeout  time.Duration // per-gate wall clock limit
	FixAttempts  int           // re-runs granted to the first failing gate; <0 disables retries
	ArtifactsDir string        // when set, combined gate output is written here per gate
}

// GateRuntime runs artifact validation gates through `sh -c`.
type GateRuntime struct {
	workDir      string
	gateTimeout  time.Duration
	fixAttempts  int
	artifactsDir string
}

// NewGateRuntime builds a runtime with defaults filled in.
func NewGateRuntime(opts Options) *GateRuntime {
	timeout := opts.GateTimeout
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	fixes := opts.FixAttempts
	if fixes == 0 {
		fixes = DefaultFixAttempts
	}
	if fixes < 0 {
		fixes = 0
	}
	return &GateRuntime{
		workDir:      opts.WorkDir,
		gateTimeout:  timeout,
		fixAttempts:  fixes,
		artifactsDir: opts.ArtifactsDir,
	}
}

// Execute runs the artifact's gates in ascending level order. Manual
// gates and gates without a command are recorded as skipped. The first
// runnable gate that still fails after the fix budget stops the run;
// later gates are not attempted. An invalid artifact produces a failed
// Result rather than an error.
func (r *GateRuntime) Execute(ctx context.Context, artifact *prp.Artifact, prpPath string) (*Result, error) {
	res := &Result{StartedAt: time.Now()}
	defer func() { res.FinishedAt = time.Now() }()

	if artifact == nil {
		res.Error = "no artifact to execute"
		return res, nil
	}
	if err := artifact.Validate(); err != nil {
		res.Error = err.Error()
		logging.RuntimeWarn("refusing invalid artifact: %v", err)
		return res, nil
	}

	t := logging.StartTimer(logging.CategoryRuntime, "execute "+artifact.TaskID)
	defer t.Stop()
	logging.Runtime("executing %s (%d gates, prp=%s)", artifact.TaskID, len(artifact.ValidationGates), prpPath)

	for _, gate := range artifact.GatesInOrder() {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		if !gate.Runnable() {
			logging.RuntimeDebug("%s gate %d skipped (manual)", artifact.TaskID, gate.Level)
			res.ValidationResults = append(res.ValidationResults, GateResult{
				Level:       gate.Level,
				Description: gate.Description,
				Command:     gate.Command,
				Manual:      true,
				Skipped:     true,
			})
			continue
		}

		gr := r.runGate(ctx, artifact.TaskID, gate, res.FixAttempts)
		if gr.Attempts > 1 {
			res.FixAttempts += gr.Attempts - 1
		}
		if path := r.saveOutput(artifact.TaskID, gate.Level, gr.Output); path != "" {
			res.Artifacts = append(res.Artifacts, path)
		}
		res.ValidationResults = append(res.ValidationResults, gr)

		if !gr.Passed {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			res.Error = fmt.Sprintf("gate %d failed after %d attempt(s): %s", gate.Level, gr.Attempts, gate.Description)
			logging.RuntimeWarn("%s %s", artifact.TaskID, res.Error)
			return res, nil
		}
	}

	res.Success = true
	logging.Runtime("%s passed all gates (fix attempts used: %d)", artifact.TaskID, res.FixAttempts)
	return res, nil
}

// runGate executes one gate, re-running it while the remaining fix
// budget allows. used counts fix attempts already spent on this run.
func (r *GateRuntime) runGate(ctx context.Context, taskID string, gate prp.ValidationGate, used int) GateResult {
	gr := GateResult{
		Level:       gate.Level,
		Description: gate.Description,
		Command:     gate.Command,
	}
	start := time.Now()
	defer func() { gr.Duration = time.Since(start) }()

	budget := r.fixAttempts - used
	if budget < 0 {
		budget = 0
	}

	for attempt := 0; attempt <= budget; attempt++ {
		if ctx.Err() != nil {
			return gr
		}
		gr.Attempts++
		output, err := r.runCommand(ctx, gate.Command)
		gr.Output = output
		if err == nil {
			gr.Passed = true
			if attempt > 0 {
				logging.Runtime("%s gate %d recovered on attempt %d", taskID, gate.Level, gr.Attempts)
			}
			return gr
		}
		logging.RuntimeDebug("%s gate %d attempt %d failed: %v", taskID, gate.Level, gr.Attempts, err)
	}
	return gr
}

// runCommand runs a single shell command bounded by the gate timeout.
func (r *GateRuntime) runCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.gateTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = r.workDir
	output, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return string(output), fmt.Errorf("timed out after %s", r.gateTimeout)
	}
	if err != nil {
		return string(output), fmt.Errorf("command failed: %w", err)
	}
	return string(output), nil
}

// saveOutput writes a gate's combined output under the artifacts
// directory. Returns the written path, or "" when saving is disabled
// or fails; a failed save never fails the gate.
func (r *GateRuntime) saveOutput(taskID string, level int, output string) string {
	if r.artifactsDir == "" || output == "" {
		return ""
	}
	if err := os.MkdirAll(r.artifactsDir, 0o755); err != nil {
		logging.RuntimeWarn("artifacts dir: %v", err)
		return ""
	}
	name := fmt.Sprintf("%s_gate%d.log", sanitize(taskID), level)
	path := filepath.Join(r.artifactsDir, name)
	if err := os.WriteFile(path, []byte(output), 0o644); err != nil {
		logging.RuntimeWarn("save gate output: %v", err)
		return ""
	}
	return path
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

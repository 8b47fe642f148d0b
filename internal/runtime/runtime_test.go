package runtime_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"prpforge/internal/prp"
	"prpforge/internal/runtime"
)

func gateArtifact(gates ...prp.ValidationGate) *prp.Artifact {
	return &prp.Artifact{
		TaskID:          "P1.M1.T1.S1",
		Objective:       "exercise the gate runtime",
		ValidationGates: gates,
	}
}

func TestExecuteRunsGatesInLevelOrder(t *testing.T) {
	dir := t.TempDir()
	rt := runtime.NewGateRuntime(runtime.Options{WorkDir: dir, GateTimeout: 5 * time.Second})

	// Declared out of order on purpose.
	a := gateArtifact(
		prp.ValidationGate{Level: 3, Description: "third", Command: "echo 3 >> order.txt"},
		prp.ValidationGate{Level: 1, Description: "first", Command: "echo 1 >> order.txt"},
		prp.ValidationGate{Level: 2, Description: "second", Command: "echo 2 >> order.txt"},
	)

	res, err := rt.Execute(context.Background(), a, "unused.md")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Empty(t, res.Error)
	require.Len(t, res.ValidationResults, 3)

	data, err := os.ReadFile(filepath.Join(dir, "order.txt"))
	require.NoError(t, err)
	require.Equal(t, "1\n2\n3\n", string(data))

	for i, gr := range res.ValidationResults {
		require.Equal(t, i+1, gr.Level)
		require.True(t, gr.Passed)
		require.Equal(t, 1, gr.Attempts)
	}
	require.Zero(t, res.FixAttempts)
}

func TestExecuteStopsAtFirstFailingGate(t *testing.T) {
	dir := t.TempDir()
	rt := runtime.NewGateRuntime(runtime.Options{WorkDir: dir, GateTimeout: 5 * time.Second})

	a := gateArtifact(
		prp.ValidationGate{Level: 1, Description: "pass", Command: "true"},
		prp.ValidationGate{Level: 2, Description: "always fails", Command: "exit 1"},
		prp.ValidationGate{Level: 3, Description: "never reached", Command: "touch reached.txt"},
	)

	res, err := rt.Execute(context.Background(), a, "unused.md")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "gate 2 failed")

	// Gate 3 must not have run.
	_, statErr := os.Stat(filepath.Join(dir, "reached.txt"))
	require.True(t, os.IsNotExist(statErr))

	require.Len(t, res.ValidationResults, 2)
	failing := res.ValidationResults[1]
	require.False(t, failing.Passed)
	require.Equal(t, 1+runtime.DefaultFixAttempts, failing.Attempts)
	require.Equal(t, runtime.DefaultFixAttempts, res.FixAttempts)
}

func TestExecuteSkipsManualGates(t *testing.T) {
	rt := runtime.NewGateRuntime(runtime.Options{WorkDir: t.TempDir()})

	a := gateArtifact(
		prp.ValidationGate{Level: 1, Description: "runnable", Command: "true"},
		prp.ValidationGate{Level: 2, Description: "human review", Command: "false", Manual: true},
		prp.ValidationGate{Level: 4, Description: "no command"},
	)

	res, err := rt.Execute(context.Background(), a, "unused.md")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.ValidationResults, 3)
	require.True(t, res.ValidationResults[1].Skipped)
	require.True(t, res.ValidationResults[2].Skipped)
}

func TestExecuteRetriesWithinFixBudget(t *testing.T) {
	dir := t.TempDir()
	rt := runtime.NewGateRuntime(runtime.Options{WorkDir: dir, GateTimeout: 5 * time.Second})

	// Fails on the first run, passes once the flag file exists.
	a := gateArtifact(prp.ValidationGate{
		Level:       1,
		Description: "flaky",
		Command:     "test -f flag || { touch flag; exit 1; }",
	})

	res, err := rt.Execute(context.Background(), a, "unused.md")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, 1, res.FixAttempts)
	require.Equal(t, 2, res.ValidationResults[0].Attempts)
}

func TestExecuteGateTimeout(t *testing.T) {
	rt := runtime.NewGateRuntime(runtime.Options{
		WorkDir:     t.TempDir(),
		GateTimeout: 100 * time.Millisecond,
		FixAttempts: -1, // single attempt
	})

	a := gateArtifact(prp.ValidationGate{Level: 1, Description: "hangs", Command: "sleep 5"})

	res, err := rt.Execute(context.Background(), a, "unused.md")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Equal(t, 1, res.ValidationResults[0].Attempts)
}

func TestExecuteRejectsInvalidArtifact(t *testing.T) {
	rt := runtime.NewGateRuntime(runtime.Options{})

	res, err := rt.Execute(context.Background(), &prp.Artifact{TaskID: "P1.M1.T1.S1"}, "unused.md")
	require.NoError(t, err)
	require.False(t, res.Success)
	require.Contains(t, res.Error, "objective")

	res, err = rt.Execute(context.Background(), nil, "unused.md")
	require.NoError(t, err)
	require.False(t, res.Success)
}

func TestExecuteSavesGateOutput(t *testing.T) {
	work := t.TempDir()
	artifacts := filepath.Join(t.TempDir(), "artifacts")
	rt := runtime.NewGateRuntime(runtime.Options{WorkDir: work, ArtifactsDir: artifacts})

	a := gateArtifact(prp.ValidationGate{Level: 1, Description: "noisy", Command: "echo captured"})

	res, err := rt.Execute(context.Background(), a, "unused.md")
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Len(t, res.Artifacts, 1)

	data, err := os.ReadFile(res.Artifacts[0])
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "captured"))
}

func TestExecuteHonorsCancelledContext(t *testing.T) {
	rt := runtime.NewGateRuntime(runtime.Options{WorkDir: t.TempDir()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := gateArtifact(prp.ValidationGate{Level: 1, Description: "never runs", Command: "true"})

	_, err := rt.Execute(ctx, a, "unused.md")
	require.ErrorIs(t, err, context.Canceled)
}

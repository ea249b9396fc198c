package gate_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadence/internal/checkpoint"
	"github.com/mrz1836/cadence/internal/constants"
	"github.com/mrz1836/cadence/internal/domain"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/gate"
	"github.com/mrz1836/cadence/internal/parser"
	"github.com/mrz1836/cadence/internal/runner"
)

// step is one scripted response for a command.
type step struct {
	exec *runner.Execution
	err  error
}

// scriptRunner returns scripted executions per command. The last step for a
// command repeats once the script is exhausted.
type scriptRunner struct {
	mu    sync.Mutex
	steps map[string][]step
	calls map[string]int
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{
		steps: make(map[string][]step),
		calls: make(map[string]int),
	}
}

func (s *scriptRunner) on(command string, exec *runner.Execution, err error) {
	s.steps[command] = append(s.steps[command], step{exec: exec, err: err})
}

func (s *scriptRunner) Execute(_ context.Context, inv runner.Invocation) (*runner.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	script, ok := s.steps[inv.Command]
	if !ok {
		return nil, fmt.Errorf("%w: unscripted command %q", cadenceerrors.ErrExecution, inv.Command)
	}

	idx := s.calls[inv.Command]
	s.calls[inv.Command]++
	if idx >= len(script) {
		idx = len(script) - 1
	}
	st := script[idx]
	return st.exec, st.err
}

func exitWith(code int, stdout string) *runner.Execution {
	return &runner.Execution{ExitCode: code, Stdout: stdout}
}

func timedOut() *runner.Execution {
	return &runner.Execution{ExitCode: constants.TimeoutExitCode, TimedOut: true}
}

func genericRules(t *testing.T) parser.Rules {
	t.Helper()
	rules, err := parser.RulesFor(parser.ToolchainGeneric)
	require.NoError(t, err)
	return rules
}

func newEngine(t *testing.T, r runner.CommandRunner, store checkpoint.Store, commands map[string]string, maxRetries int) *gate.Engine {
	t.Helper()

	engine, err := gate.NewEngine(r, store, gate.Config{
		TestCommands:      commands,
		Rules:             genericRules(t),
		CoverageThreshold: constants.DefaultCoverageThreshold,
		Retry:             gate.RetryPolicy{MaxRetries: maxRetries},
		PhaseTimeout:      time.Minute,
	})
	require.NoError(t, err)
	return engine
}

func newRun() *domain.PipelineRun {
	return &domain.PipelineRun{ID: "run-20260830-120000-abcd1234", SchemaVersion: constants.RunSchemaVersion}
}

func TestRunPhaseRed(t *testing.T) {
	t.Parallel()

	t.Run("failing tests advance", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(1, "failed: 2\npassed: 3\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseRed)
		require.NoError(t, err)

		assert.True(t, outcome.Advanced)
		assert.False(t, outcome.Aborted)
		assert.Empty(t, outcome.Warning)
		require.Len(t, run.Phases, 1)
		assert.Equal(t, 2, run.Phases[0].Counts.Failed)
		assert.True(t, run.Phases[0].Counts.Consistent())

		cp, err := store.ReadCurrent(context.Background())
		require.NoError(t, err)
		assert.Equal(t, constants.CheckpointCompleted, cp.Status)
	})

	t.Run("unexpected pass still advances with warning", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(0, "passed: 5\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

		outcome, err := engine.RunPhase(context.Background(), newRun(), constants.PhaseRed)
		require.NoError(t, err)

		assert.True(t, outcome.Advanced)
		assert.False(t, outcome.Aborted)
		assert.Equal(t, "red_unexpected_pass", outcome.Warning)

		cp, err := store.ReadCurrent(context.Background())
		require.NoError(t, err)
		assert.Equal(t, constants.CheckpointCompleted, cp.Status)
		assert.Equal(t, "red_unexpected_pass", cp.Reason)
	})
}

func TestRunPhaseGreen(t *testing.T) {
	t.Parallel()

	t.Run("retry budget exhausted aborts with failed checkpoint", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(1, "failed: 1\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseGreen)
		require.NoError(t, err)

		assert.True(t, outcome.Aborted)
		assert.False(t, outcome.Advanced)
		require.Len(t, run.Phases, 2)
		assert.Equal(t, 1, run.Phases[0].Attempt)
		assert.Equal(t, 2, run.Phases[1].Attempt)

		cp, err := store.ReadCurrent(context.Background())
		require.NoError(t, err)
		assert.Equal(t, constants.CheckpointFailed, cp.Status)
		assert.GreaterOrEqual(t, cp.Tests.Failed, 1)

		history, err := store.ReadHistory(context.Background(), time.Time{})
		require.NoError(t, err)
		assert.Len(t, history, 2)
	})

	t.Run("passes on retry", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(1, "failed: 1\npassed: 4\n"), nil)
		r.on("run-unit", exitWith(0, "passed: 5\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseGreen)
		require.NoError(t, err)

		assert.True(t, outcome.Advanced)
		require.Len(t, run.Phases, 2)

		cp, err := store.ReadCurrent(context.Background())
		require.NoError(t, err)
		assert.Equal(t, constants.CheckpointCompleted, cp.Status)
		assert.Equal(t, constants.FunctionalWorking, cp.FunctionalState)
	})

	t.Run("non-zero exit with unparseable output is a failure", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(1, "segfault"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 0)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseGreen)
		require.NoError(t, err)

		assert.True(t, outcome.Aborted)
		assert.GreaterOrEqual(t, run.Phases[0].Counts.Failed, 1)
	})
}

func TestRunPhaseRefactor(t *testing.T) {
	t.Parallel()

	t.Run("regression aborts without retry", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(1, "failed: 1\npassed: 4\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 3)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseRefactor)
		require.NoError(t, err)

		assert.True(t, outcome.Aborted)
		assert.Equal(t, "regression introduced by refactor", outcome.AbortReason)
		assert.Len(t, run.Phases, 1)
	})
}

func TestRunPhaseIntegrate(t *testing.T) {
	t.Parallel()

	t.Run("absent category is skipped and flagged partial", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(0, "passed: 5\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit", "e2e": ""}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseIntegrate)
		require.NoError(t, err)

		assert.True(t, outcome.Advanced)
		assert.True(t, run.IntegrationPartial)

		cp, err := store.ReadCurrent(context.Background())
		require.NoError(t, err)
		assert.True(t, cp.IntegrationPartial)
		assert.Equal(t, constants.CheckpointCompleted, cp.Status)
	})

	t.Run("coverage below threshold annotates but never blocks", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(0, "passed: 5\ncoverage: 65%\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseIntegrate)
		require.NoError(t, err)

		assert.True(t, outcome.Advanced)
		assert.False(t, outcome.Aborted)
		assert.True(t, run.CoverageWarning)

		cp, err := store.ReadCurrent(context.Background())
		require.NoError(t, err)
		assert.Equal(t, constants.CheckpointCompleted, cp.Status)
		assert.True(t, cp.CoverageWarning)
		require.NotNil(t, cp.CoveragePercent)
		assert.InDelta(t, 65.0, *cp.CoveragePercent, 0.001)
	})

	t.Run("coverage is not evaluated before integrate", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(0, "passed: 5\ncoverage: 65%\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseGreen)
		require.NoError(t, err)

		assert.True(t, outcome.Advanced)
		assert.False(t, run.CoverageWarning)
	})

	t.Run("failing integration aborts", func(t *testing.T) {
		t.Parallel()

		r := newScriptRunner()
		r.on("run-unit", exitWith(0, "passed: 5\n"), nil)
		r.on("run-int", exitWith(1, "failed: 2\n"), nil)
		store, err := checkpoint.NewFileStore(t.TempDir())
		require.NoError(t, err)
		engine := newEngine(t, r, store, map[string]string{"unit": "run-unit", "integration": "run-int"}, 1)

		run := newRun()
		outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseIntegrate)
		require.NoError(t, err)

		assert.True(t, outcome.Aborted)
		assert.Equal(t, "integration tests failed", outcome.AbortReason)
	})
}

func TestRunPhaseMergesCategories(t *testing.T) {
	t.Parallel()

	r := newScriptRunner()
	r.on("run-unit", exitWith(0, "passed: 5\ncoverage: 70%\n"), nil)
	r.on("run-int", exitWith(0, "passed: 3\nskipped: 1\ncoverage: 85%\n"), nil)
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	engine := newEngine(t, r, store, map[string]string{"unit": "run-unit", "integration": "run-int"}, 1)

	run := newRun()
	outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseIntegrate)
	require.NoError(t, err)

	assert.True(t, outcome.Advanced)
	require.Len(t, run.Phases, 1)
	result := run.Phases[0]
	assert.Equal(t, 9, result.Counts.Total)
	assert.Equal(t, 8, result.Counts.Passed)
	assert.Equal(t, 1, result.Counts.Skipped)
	require.NotNil(t, result.CoveragePercent)
	assert.InDelta(t, 85.0, *result.CoveragePercent, 0.001)
	assert.Len(t, result.Categories, 2)
}

func TestRunPhaseTimeout(t *testing.T) {
	t.Parallel()

	r := newScriptRunner()
	r.on("run-unit", timedOut(), nil)
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 0)

	run := newRun()
	outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseGreen)
	require.NoError(t, err)

	// A timeout is a failure, not a crash.
	assert.True(t, outcome.Aborted)
	require.Len(t, run.Phases, 1)
	assert.True(t, run.Phases[0].TimedOut)
	assert.GreaterOrEqual(t, run.Phases[0].Counts.Failed, 1)
	assert.Equal(t, constants.TimeoutExitCode, run.Phases[0].ExitCode)
}

func TestRunPhaseSpawnFailure(t *testing.T) {
	t.Parallel()

	r := newScriptRunner()
	r.on("run-unit", nil, fmt.Errorf("%w: no such binary", cadenceerrors.ErrExecution))
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	engine := newEngine(t, r, store, map[string]string{"unit": "run-unit"}, 1)

	run := newRun()
	outcome, err := engine.RunPhase(context.Background(), run, constants.PhaseGreen)
	require.NoError(t, err)

	assert.True(t, outcome.Aborted)
	assert.Contains(t, outcome.AbortReason, "execution failed")
	require.Len(t, run.Phases, 2)

	cp, err := store.ReadCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, constants.CheckpointFailed, cp.Status)
	assert.Equal(t, constants.FunctionalUnknown, cp.FunctionalState)
}

// failingStore wraps a real store but refuses checkpoint writes.
type failingStore struct {
	checkpoint.Store
}

func (f *failingStore) WriteCheckpoint(context.Context, *domain.Checkpoint) error {
	return fmt.Errorf("%w: disk full", cadenceerrors.ErrPersistence)
}

func TestRunPhasePersistenceFailureIsFatal(t *testing.T) {
	t.Parallel()

	r := newScriptRunner()
	r.on("run-unit", exitWith(0, "passed: 5\n"), nil)
	real, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	engine := newEngine(t, r, &failingStore{Store: real}, map[string]string{"unit": "run-unit"}, 1)

	_, err = engine.RunPhase(context.Background(), newRun(), constants.PhaseGreen)
	require.ErrorIs(t, err, cadenceerrors.ErrPersistence)
}

func TestNewEngine(t *testing.T) {
	t.Parallel()

	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)

	t.Run("nil runner rejected", func(t *testing.T) {
		t.Parallel()

		_, err := gate.NewEngine(nil, store, gate.Config{TestCommands: map[string]string{"unit": "x"}})
		require.Error(t, err)
	})

	t.Run("no test commands rejected", func(t *testing.T) {
		t.Parallel()

		_, err := gate.NewEngine(newScriptRunner(), store, gate.Config{})
		require.ErrorIs(t, err, cadenceerrors.ErrNoTestCommands)
	})
}

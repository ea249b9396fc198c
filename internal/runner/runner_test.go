package runner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/runner"
)

func TestShellRunnerExecute(t *testing.T) {
	t.Parallel()

	t.Run("captures stdout and zero exit code", func(t *testing.T) {
		t.Parallel()

		r := runner.NewShellRunner()
		result, err := r.Execute(context.Background(), runner.Invocation{
			Command: "echo hello",
			WorkDir: t.TempDir(),
		})

		require.NoError(t, err)
		assert.Equal(t, 0, result.ExitCode)
		assert.Equal(t, "hello\n", result.Stdout)
		assert.False(t, result.TimedOut)
		assert.False(t, result.FinishedAt.Before(result.StartedAt))
	})

	t.Run("captures stderr", func(t *testing.T) {
		t.Parallel()

		r := runner.NewShellRunner()
		result, err := r.Execute(context.Background(), runner.Invocation{
			Command: "echo oops >&2",
			WorkDir: t.TempDir(),
		})

		require.NoError(t, err)
		assert.Equal(t, "oops\n", result.Stderr)
	})

	t.Run("non-zero exit is a captured result, not an error", func(t *testing.T) {
		t.Parallel()

		r := runner.NewShellRunner()
		result, err := r.Execute(context.Background(), runner.Invocation{
			Command: "exit 3",
			WorkDir: t.TempDir(),
		})

		require.NoError(t, err)
		assert.Equal(t, 3, result.ExitCode)
	})

	t.Run("timeout marks result and uses sentinel exit code", func(t *testing.T) {
		t.Parallel()

		r := runner.NewShellRunner()
		result, err := r.Execute(context.Background(), runner.Invocation{
			Command: "sleep 5",
			WorkDir: t.TempDir(),
			Timeout: 50 * time.Millisecond,
		})

		require.NoError(t, err)
		assert.True(t, result.TimedOut)
		assert.Equal(t, constants.TimeoutExitCode, result.ExitCode)
	})

	t.Run("missing work directory is an execution error", func(t *testing.T) {
		t.Parallel()

		r := runner.NewShellRunner()
		_, err := r.Execute(context.Background(), runner.Invocation{
			Command: "echo hi",
			WorkDir: "/nonexistent/cadence/workdir",
		})

		require.Error(t, err)
		assert.ErrorIs(t, err, cadenceerrors.ErrExecution)
	})

	t.Run("empty command is an execution error", func(t *testing.T) {
		t.Parallel()

		r := runner.NewShellRunner()
		_, err := r.Execute(context.Background(), runner.Invocation{WorkDir: t.TempDir()})

		require.Error(t, err)
		assert.ErrorIs(t, err, cadenceerrors.ErrExecution)
	})

	t.Run("parent cancellation propagates", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(50 * time.Millisecond)
			cancel()
		}()

		r := runner.NewShellRunner()
		_, err := r.Execute(ctx, runner.Invocation{
			Command: "sleep 5",
			WorkDir: t.TempDir(),
		})

		require.ErrorIs(t, err, context.Canceled)
	})
}

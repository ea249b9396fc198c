// Package runner provides external command execution for pipeline phases.
//
// SECURITY NOTE: The commands executed by this package come from project
// configuration files (.cadence/config.yaml) or the user's global config
// (~/.cadence/config.yaml). These are treated as trusted input, the same
// trust model as Makefiles, npm scripts, or CI/CD configurations. The sh -c
// invocation is intentional to support shell features (pipes, redirects)
// commonly used in test commands like "go test ./... | tee results.txt".
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// Invocation describes one external command execution request.
// This is the only way phases obtain runnable commands; nothing is
// hard-coded in the engine.
type Invocation struct {
	// Command is the shell invocation string.
	Command string

	// WorkDir is the working directory for the command. Must exist.
	WorkDir string

	// Timeout bounds wall-clock execution. Zero means no timeout.
	Timeout time.Duration
}

// Execution captures the observable outcome of a command.
// A non-zero ExitCode is a normal captured result, not an error.
type Execution struct {
	Command    string        `json:"command"`
	ExitCode   int           `json:"exit_code"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"-"`
	DurationMs int64         `json:"duration_ms"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	// TimedOut is true when the process was forcibly terminated after
	// exceeding the invocation timeout. ExitCode is then the reserved
	// sentinel constants.TimeoutExitCode.
	TimedOut bool `json:"timed_out,omitempty"`
}

// CommandRunner defines the interface for executing shell commands.
// This allows for testing by injecting mock implementations.
type CommandRunner interface {
	// Execute runs the invocation and returns the captured result.
	// It returns an error wrapping errors.ErrExecution only when the
	// command could not be spawned; retry policy lives in the gate engine,
	// never here.
	Execute(ctx context.Context, inv Invocation) (*Execution, error)
}

// ShellRunner implements CommandRunner using sh -c via os/exec.
type ShellRunner struct{}

// NewShellRunner creates the default command runner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Execute runs a shell command with timeout handling.
func (r *ShellRunner) Execute(ctx context.Context, inv Invocation) (*Execution, error) {
	log := zerolog.Ctx(ctx)

	if inv.Command == "" {
		return nil, fmt.Errorf("%w: command %w", cadenceerrors.ErrExecution, cadenceerrors.ErrEmptyValue)
	}

	// Pre-flight check: a missing working directory means the command can
	// never be spawned, which is an execution error rather than a captured
	// failure.
	if inv.WorkDir != "" {
		if _, err := os.Stat(inv.WorkDir); os.IsNotExist(err) {
			log.Error().
				Str("work_dir", inv.WorkDir).
				Str("command", inv.Command).
				Msg("work directory missing before command execution")
			return nil, fmt.Errorf("work directory missing: %s: %w", inv.WorkDir, cadenceerrors.ErrExecution)
		}
	}

	cmdCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	startedAt := time.Now().UTC()

	log.Debug().
		Str("command", inv.Command).
		Str("work_dir", inv.WorkDir).
		Dur("timeout", inv.Timeout).
		Msg("executing command")

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", inv.Command)
	cmd.Dir = inv.WorkDir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()

	finishedAt := time.Now().UTC()
	duration := finishedAt.Sub(startedAt)

	result := &Execution{
		Command:    inv.Command,
		Stdout:     outBuf.String(),
		Stderr:     errBuf.String(),
		Duration:   duration,
		DurationMs: duration.Milliseconds(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
	}

	// Timeout: the process was killed. This is a captured result marked
	// with the sentinel exit code, not an execution error.
	if inv.Timeout > 0 && errors.Is(cmdCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		result.ExitCode = constants.TimeoutExitCode

		log.Warn().
			Str("command", inv.Command).
			Dur("timeout", inv.Timeout).
			Msg("command timed out and was terminated")

		return result, nil
	}

	// Cancellation from the parent context propagates as-is.
	if ctx.Err() != nil {
		return result, ctx.Err()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			// Normal captured result: the command ran and exited non-zero.
			result.ExitCode = exitErr.ExitCode()

			log.Debug().
				Str("command", inv.Command).
				Int("exit_code", result.ExitCode).
				Dur("duration", duration).
				Msg("command exited non-zero")

			return result, nil
		}

		// The command could not be spawned at all (sh missing, permission
		// denied, fork failure).
		log.Error().
			Err(runErr).
			Str("command", inv.Command).
			Msg("command could not be spawned")

		result.ExitCode = constants.SpawnFailureExitCode
		return result, fmt.Errorf("%w: %s: %v", cadenceerrors.ErrExecution, inv.Command, runErr)
	}

	log.Debug().
		Str("command", inv.Command).
		Dur("duration", duration).
		Msg("command completed")

	return result, nil
}

// Ensure ShellRunner implements CommandRunner.
var _ CommandRunner = (*ShellRunner)(nil)

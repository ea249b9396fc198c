// Package pipeline provides the top-level controller that drives the
// RED → GREEN → REFACTOR → INTEGRATE sequence.
//
// The controller owns the run lock, the checkpoint store, and the gate
// engine for one run. It never surfaces state to the caller that is not
// already durably checkpointed: cancellation or a crash leaves the last
// written checkpoint authoritative.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mrz1836/cadence/internal/checkpoint"
	"github.com/mrz1836/cadence/internal/clock"
	"github.com/mrz1836/cadence/internal/constants"
	"github.com/mrz1836/cadence/internal/domain"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/gate"
	"github.com/mrz1836/cadence/internal/parser"
	"github.com/mrz1836/cadence/internal/runner"
)

// Options carries the full configuration for one pipeline run. It is an
// explicit struct threaded through the controller, engine, and runner;
// nothing reads process-wide mutable state.
type Options struct {
	// StateDir is the checkpoint target: checkpoints, history, run
	// artifacts, and the run lock all live under it.
	StateDir string

	// WorkDir is the working directory for all commands.
	WorkDir string

	// BuildCommand runs once per phase attempt before the test categories.
	BuildCommand string

	// TestCommands maps category name to command.
	TestCommands map[string]string

	// Rules selects the output parser rule set.
	Rules parser.Rules

	CoverageThreshold float64
	MaxRetries        int
	RetryBackoff      time.Duration
	PhaseTimeout      time.Duration

	// StaleLockTimeout is how old a run lock may be before it is broken.
	StaleLockTimeout time.Duration

	// MaxHistory trims the oldest checkpoint history entries when > 0.
	MaxHistory int
}

// Controller drives the gate engine phase by phase.
type Controller struct {
	opts   Options
	runner runner.CommandRunner
	clk    clock.Clock
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithRunner replaces the default shell runner.
func WithRunner(r runner.CommandRunner) ControllerOption {
	return func(c *Controller) {
		c.runner = r
	}
}

// WithClock replaces the default clock.
func WithClock(clk clock.Clock) ControllerOption {
	return func(c *Controller) {
		c.clk = clk
	}
}

// New creates a pipeline controller.
func New(opts Options, copts ...ControllerOption) (*Controller, error) {
	if opts.StateDir == "" {
		return nil, fmt.Errorf("failed to create controller: state directory %w", cadenceerrors.ErrEmptyValue)
	}
	if len(opts.TestCommands) == 0 {
		return nil, cadenceerrors.ErrNoTestCommands
	}
	if opts.CoverageThreshold == 0 {
		opts.CoverageThreshold = constants.DefaultCoverageThreshold
	}
	if opts.PhaseTimeout == 0 {
		opts.PhaseTimeout = constants.DefaultPhaseTimeout
	}
	if opts.StaleLockTimeout == 0 {
		opts.StaleLockTimeout = constants.DefaultStaleLockTimeout
	}

	c := &Controller{
		opts:   opts,
		runner: runner.NewShellRunner(),
		clk:    clock.RealClock{},
	}
	for _, opt := range copts {
		opt(c)
	}
	return c, nil
}

// Run executes the full phase sequence and returns the run summary.
// The returned run is non-nil whenever at least one phase attempt was
// recorded, even alongside a fatal error.
func (c *Controller) Run(ctx context.Context) (*domain.PipelineRun, error) {
	lock, err := acquireRunLock(ctx, c.opts.StateDir, c.opts.StaleLockTimeout, c.clk)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := lock.release(); releaseErr != nil {
			zerolog.Ctx(ctx).Warn().Err(releaseErr).Msg("failed to release run lock")
		}
	}()

	store, err := checkpoint.NewFileStore(c.opts.StateDir,
		checkpoint.WithClock(c.clk),
		checkpoint.WithMaxHistory(c.opts.MaxHistory),
	)
	if err != nil {
		return nil, err
	}

	engine, err := gate.NewEngine(c.runner, store, gate.Config{
		WorkDir:           c.opts.WorkDir,
		BuildCommand:      c.opts.BuildCommand,
		TestCommands:      c.opts.TestCommands,
		Rules:             c.opts.Rules,
		CoverageThreshold: c.opts.CoverageThreshold,
		Retry:             gate.RetryPolicy{MaxRetries: c.opts.MaxRetries, Backoff: c.opts.RetryBackoff},
		PhaseTimeout:      c.opts.PhaseTimeout,
	}, gate.WithClock(c.clk))
	if err != nil {
		return nil, err
	}

	run := &domain.PipelineRun{
		ID:            c.newRunID(),
		SchemaVersion: constants.RunSchemaVersion,
		StartedAt:     c.clk.Now().UTC(),
	}

	log := zerolog.Ctx(ctx).With().Str("run_id", run.ID).Logger()
	ctx = log.WithContext(ctx)
	log.Info().Str("work_dir", c.opts.WorkDir).Msg("pipeline run starting")

	state := gate.StateRed
	run.Outcome = constants.RunIncomplete

	for _, phase := range constants.Phases() {
		outcome, phaseErr := engine.RunPhase(ctx, run, phase)
		if phaseErr != nil {
			// The last durably written checkpoint stays authoritative.
			run.FinishedAt = c.clk.Now().UTC()
			c.saveRunBestEffort(ctx, store, run)
			return run, phaseErr
		}

		if outcome.Aborted {
			state, _ = gate.Transition(state, gate.StateAborted)
			run.Outcome = constants.RunAborted
			run.AbortReason = outcome.AbortReason
			break
		}

		next, transErr := gate.Transition(state, gate.NextState(phase))
		if transErr != nil {
			run.FinishedAt = c.clk.Now().UTC()
			c.saveRunBestEffort(ctx, store, run)
			return run, transErr
		}
		state = next
	}

	if state == gate.StateDone {
		run.Outcome = constants.RunComplete
	}
	run.FinishedAt = c.clk.Now().UTC()

	if err := store.SaveRun(ctx, run); err != nil {
		return run, err
	}

	log.Info().
		Str("outcome", string(run.Outcome)).
		Bool("coverage_warning", run.CoverageWarning).
		Bool("integration_partial", run.IntegrationPartial).
		Msg("pipeline run finished")

	if run.Outcome == constants.RunAborted {
		return run, fmt.Errorf("%w: %s", cadenceerrors.ErrRunAborted, run.AbortReason)
	}
	return run, nil
}

// newRunID builds a sortable, collision-resistant run identifier.
func (c *Controller) newRunID() string {
	ts := c.clk.Now().UTC().Format("20060102-150405")
	suffix := strings.Split(uuid.NewString(), "-")[0]
	return fmt.Sprintf("run-%s-%s", ts, suffix)
}

func (c *Controller) saveRunBestEffort(ctx context.Context, store checkpoint.Store, run *domain.PipelineRun) {
	// Persist what we can for post-mortem; the checkpoint trail is the
	// authoritative record either way.
	saveCtx := context.WithoutCancel(ctx)
	if err := store.SaveRun(saveCtx, run); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("failed to save run summary")
	}
}

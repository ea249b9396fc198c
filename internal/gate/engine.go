package gate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/cadence/internal/checkpoint"
	"github.com/mrz1836/cadence/internal/clock"
	"github.com/mrz1836/cadence/internal/constants"
	"github.com/mrz1836/cadence/internal/domain"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/parser"
	"github.com/mrz1836/cadence/internal/runner"
)

// Config carries everything the engine needs to execute phases. It is
// threaded explicitly; the engine holds no process-wide state.
type Config struct {
	// WorkDir is the working directory for all commands.
	WorkDir string

	// BuildCommand is run once per attempt before the test categories.
	// Empty means no build step.
	BuildCommand string

	// TestCommands maps category name (unit, integration, e2e) to the
	// command that runs that category. An empty command marks the category
	// as present-but-skipped.
	TestCommands map[string]string

	// Rules selects how raw output is turned into counts.
	Rules parser.Rules

	// CoverageThreshold is the percentage below which a completed run is
	// annotated with a coverage warning. Evaluated only at INTEGRATE.
	CoverageThreshold float64

	// Retry bounds repeated attempts of a phase.
	Retry RetryPolicy

	// PhaseTimeout bounds each command within a phase.
	PhaseTimeout time.Duration
}

// PhaseOutcome is the engine's verdict on one phase.
type PhaseOutcome struct {
	// Advanced is true when the phase's exit criterion was satisfied.
	Advanced bool

	// Aborted is true when the phase failed terminally.
	Aborted bool

	// AbortReason explains an abort in one short machine-readable line.
	AbortReason string

	// Warning carries a non-blocking annotation (e.g. red_unexpected_pass).
	Warning string
}

// Engine evaluates phase exit criteria and records checkpoints.
type Engine struct {
	runner runner.CommandRunner
	store  checkpoint.Store
	clk    clock.Clock
	cfg    Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for phase timestamps.
func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clk = c
	}
}

// NewEngine creates a phase gate engine.
func NewEngine(r runner.CommandRunner, store checkpoint.Store, cfg Config, opts ...Option) (*Engine, error) {
	if r == nil {
		return nil, fmt.Errorf("failed to create engine: runner %w", cadenceerrors.ErrEmptyValue)
	}
	if store == nil {
		return nil, fmt.Errorf("failed to create engine: store %w", cadenceerrors.ErrEmptyValue)
	}
	if len(cfg.TestCommands) == 0 {
		return nil, cadenceerrors.ErrNoTestCommands
	}

	e := &Engine{
		runner: r,
		store:  store,
		clk:    clock.RealClock{},
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// RunPhase executes one phase, including its bounded retries, and returns
// the verdict. The returned error is non-nil only for run-fatal conditions:
// checkpoint persistence failure or context cancellation.
func (e *Engine) RunPhase(ctx context.Context, run *domain.PipelineRun, phase constants.Phase) (*PhaseOutcome, error) {
	log := zerolog.Ctx(ctx).With().Str("phase", phase.String()).Logger()
	outcome := &PhaseOutcome{}

	err := Retry(ctx, e.cfg.Retry, func(ctx context.Context, attempt int) (bool, error) {
		result, execErr := e.executeAttempt(ctx, run, phase, attempt)
		if execErr != nil && !errors.Is(execErr, cadenceerrors.ErrExecution) {
			return true, execErr
		}

		run.Phases = append(run.Phases, *result)

		verdict := e.evaluate(phase, result, execErr)

		cp := e.buildCheckpoint(run.ID, result, verdict, execErr != nil)
		if writeErr := e.store.WriteCheckpoint(ctx, cp); writeErr != nil {
			return true, writeErr
		}

		if verdict.integrationPartial {
			run.IntegrationPartial = true
		}
		if verdict.coverageWarning {
			run.CoverageWarning = true
		}

		if verdict.passed {
			outcome.Advanced = true
			outcome.Warning = verdict.reason
			if verdict.reason != "" {
				log.Warn().Str("reason", verdict.reason).Msg("phase passed with warning")
			}
			return true, nil
		}

		if verdict.retryable {
			log.Warn().
				Int("attempt", attempt).
				Int("failed", result.Counts.Failed).
				Msg("phase attempt failed, may retry")
			return false, verdict.err
		}

		outcome.Aborted = true
		outcome.AbortReason = verdict.reason
		log.Error().Str("reason", verdict.reason).Msg("phase aborted")
		return true, nil
	})

	if err != nil {
		if errors.Is(err, cadenceerrors.ErrMaxRetriesExceeded) {
			outcome.Aborted = true
			outcome.AbortReason = e.exhaustedReason(phase, err)
			log.Error().Err(err).Msg("phase retry budget exhausted")
			return outcome, nil
		}
		return nil, err
	}
	return outcome, nil
}

// verdict is the internal result of evaluating one attempt against the
// phase's exit criterion.
type verdict struct {
	passed             bool
	retryable          bool
	reason             string
	status             constants.CheckpointStatus
	coverageWarning    bool
	integrationPartial bool
	err                error
}

// evaluate applies the phase's exit criterion to a finalized attempt.
func (e *Engine) evaluate(phase constants.Phase, result *domain.PhaseResult, execErr error) verdict {
	// A spawn failure means the attempt produced no meaningful counts.
	// It is recoverable within the retry budget for every phase.
	if execErr != nil {
		return verdict{
			retryable: true,
			reason:    "command execution failed",
			status:    constants.CheckpointFailed,
			err:       execErr,
		}
	}

	switch phase {
	case constants.PhaseRed:
		// Tests are expected to fail here. An unexpected pass advances
		// anyway with a warning; it may indicate already-implemented
		// behavior or stale cached results.
		v := verdict{passed: true, status: constants.CheckpointCompleted}
		if result.Counts.Failed == 0 {
			v.reason = "red_unexpected_pass"
		}
		return v

	case constants.PhaseGreen:
		if result.Counts.Failed == 0 {
			return verdict{passed: true, status: constants.CheckpointCompleted}
		}
		return verdict{
			retryable: true,
			status:    constants.CheckpointFailed,
			err:       fmt.Errorf("%w: %d tests failing", cadenceerrors.ErrGateFailure, result.Counts.Failed),
		}

	case constants.PhaseRefactor:
		if result.Counts.Failed == 0 {
			return verdict{passed: true, status: constants.CheckpointCompleted}
		}
		return verdict{
			reason: "regression introduced by refactor",
			status: constants.CheckpointFailed,
		}

	case constants.PhaseIntegrate:
		partial := false
		for _, cat := range result.Categories {
			if cat.Skipped {
				partial = true
			}
		}
		if result.Counts.Failed > 0 {
			return verdict{
				reason:             "integration tests failed",
				status:             constants.CheckpointFailed,
				integrationPartial: partial,
			}
		}
		v := verdict{
			passed:             true,
			status:             constants.CheckpointCompleted,
			integrationPartial: partial,
		}
		if result.CoveragePercent != nil && *result.CoveragePercent < e.cfg.CoverageThreshold {
			v.coverageWarning = true
		}
		return v
	}

	return verdict{reason: fmt.Sprintf("unknown phase %q", phase), status: constants.CheckpointFailed}
}

// executeAttempt runs the build command and all test categories for one
// attempt and assembles the PhaseResult. An error wrapping ErrExecution is
// recoverable and accompanies a valid (partial) result; any other error is
// run-fatal.
func (e *Engine) executeAttempt(ctx context.Context, run *domain.PipelineRun, phase constants.Phase, attempt int) (*domain.PhaseResult, error) {
	log := zerolog.Ctx(ctx)
	startedAt := e.clk.Now().UTC()

	result := &domain.PhaseResult{
		Phase:     phase,
		Command:   e.commandSummary(),
		StartedAt: startedAt,
		Attempt:   attempt,
	}

	var execErr error

	if e.cfg.BuildCommand != "" {
		exec, err := e.runner.Execute(ctx, runner.Invocation{
			Command: e.cfg.BuildCommand,
			WorkDir: e.cfg.WorkDir,
			Timeout: e.cfg.PhaseTimeout,
		})
		if exec != nil {
			e.saveOutput(ctx, run.ID, fmt.Sprintf("%s-build.log", phase), exec)
			result.BuildExitCode = exec.ExitCode
			if exec.TimedOut {
				result.TimedOut = true
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, cadenceerrors.ErrExecution) {
				result.BuildExitCode = constants.SpawnFailureExitCode
				execErr = err
			} else {
				return nil, err
			}
		}
	}

	var categories []domain.CategoryResult
	if execErr == nil {
		var catErr error
		categories, catErr = e.runCategories(ctx, run.ID, phase)
		if catErr != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(catErr, cadenceerrors.ErrExecution) {
				execErr = catErr
			} else {
				return nil, catErr
			}
		}
	}

	for _, cat := range categories {
		if cat.Skipped {
			continue
		}
		result.Counts = result.Counts.Add(cat.Counts)
		if cat.TimedOut {
			result.TimedOut = true
		}
		if cat.ParseIncomplete {
			result.ParseIncomplete = true
		}
		if cat.ExitCode != 0 && result.ExitCode == 0 {
			result.ExitCode = cat.ExitCode
		}
		if cat.CoveragePercent != nil &&
			(result.CoveragePercent == nil || *cat.CoveragePercent > *result.CoveragePercent) {
			v := *cat.CoveragePercent
			result.CoveragePercent = &v
		}
	}
	result.Categories = categories

	if result.ExitCode == 0 && result.BuildExitCode != 0 {
		result.ExitCode = result.BuildExitCode
	}
	if execErr != nil && result.ExitCode == 0 {
		result.ExitCode = constants.SpawnFailureExitCode
	}

	result.FinishedAt = e.clk.Now().UTC()

	log.Debug().
		Str("phase", phase.String()).
		Int("attempt", attempt).
		Int("total", result.Counts.Total).
		Int("failed", result.Counts.Failed).
		Msg("phase attempt finished")

	return result, execErr
}

// runCategories executes all configured categories concurrently, each with
// its own timeout. A timed-out category is recorded as at least one failure.
func (e *Engine) runCategories(ctx context.Context, runID string, phase constants.Phase) ([]domain.CategoryResult, error) {
	names := make([]string, 0, len(e.cfg.TestCommands))
	for name := range e.cfg.TestCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]domain.CategoryResult, len(names))
	g, gctx := errgroup.WithContext(ctx)

	for i, name := range names {
		command := e.cfg.TestCommands[name]
		if command == "" {
			results[i] = domain.CategoryResult{Category: name, Skipped: true}
			continue
		}

		g.Go(func() error {
			exec, err := e.runner.Execute(gctx, runner.Invocation{
				Command: command,
				WorkDir: e.cfg.WorkDir,
				Timeout: e.cfg.PhaseTimeout,
			})
			if exec != nil {
				e.saveOutput(gctx, runID, fmt.Sprintf("%s-%s.log", phase, name), exec)
			}
			if err != nil {
				return err
			}

			partial := parser.Parse(exec.Stdout+"\n"+exec.Stderr, e.cfg.Rules)
			counts := partial.Counts

			// A non-zero exit with nothing parseable still counts as a
			// failure; the gate must not mistake silence for success.
			if exec.ExitCode != 0 && counts.Failed == 0 {
				counts.Failed++
				counts.Total++
			}

			results[i] = domain.CategoryResult{
				Category:        name,
				Command:         command,
				ExitCode:        exec.ExitCode,
				Counts:          counts,
				CoveragePercent: partial.CoveragePercent,
				TimedOut:        exec.TimedOut,
				ParseIncomplete: partial.ParseIncomplete,
				DurationMs:      exec.DurationMs,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// buildCheckpoint derives the durable snapshot for one attempt.
func (e *Engine) buildCheckpoint(runID string, result *domain.PhaseResult, v verdict, execFailed bool) *domain.Checkpoint {
	state := domain.DeriveFunctionalState(result.Counts, result.BuildExitCode, result.ParseIncomplete)
	if execFailed {
		// Nothing ran, so the latest observation proves nothing.
		state = constants.FunctionalUnknown
	}
	return &domain.Checkpoint{
		RunID:              runID,
		Phase:              result.Phase,
		Status:             v.status,
		Tests:              result.Counts,
		CoveragePercent:    result.CoveragePercent,
		FunctionalState:    state,
		CoverageWarning:    v.coverageWarning,
		IntegrationPartial: v.integrationPartial,
		Attempt:            result.Attempt,
		Reason:             v.reason,
	}
}

// saveOutput writes raw command output as a run artifact. Artifact capture
// is best-effort: a failed write is logged, never fatal.
func (e *Engine) saveOutput(ctx context.Context, runID, baseName string, exec *runner.Execution) {
	data := []byte("=== stdout ===\n" + exec.Stdout + "\n=== stderr ===\n" + exec.Stderr)
	if _, err := e.store.SaveVersionedArtifact(ctx, runID, baseName, data); err != nil && ctx.Err() == nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("artifact", baseName).Msg("failed to save output artifact")
	}
}

// exhaustedReason maps an exhausted retry budget to an abort reason.
func (e *Engine) exhaustedReason(phase constants.Phase, err error) string {
	if errors.Is(err, cadenceerrors.ErrGateFailure) {
		return fmt.Sprintf("%s exit criterion unmet after %d attempts", phase, e.cfg.Retry.Attempts())
	}
	return fmt.Sprintf("%s command execution failed after %d attempts", phase, e.cfg.Retry.Attempts())
}

// commandSummary joins the configured category commands into the immutable
// command string recorded on each PhaseResult.
func (e *Engine) commandSummary() string {
	names := make([]string, 0, len(e.cfg.TestCommands))
	for name := range e.cfg.TestCommands {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if cmd := e.cfg.TestCommands[name]; cmd != "" {
			parts = append(parts, name+": "+cmd)
		}
	}
	return strings.Join(parts, "; ")
}

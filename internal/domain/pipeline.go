// Package domain defines the core data model for CADENCE.
//
// This package contains the PhaseResult, Checkpoint, and PipelineRun types
// shared across the gate engine, checkpoint store, and pipeline controller.
//
// Import rules:
//   - CAN import: internal/constants, std lib
//   - MUST NOT import: internal/gate, internal/checkpoint, internal/cli
package domain

import (
	"time"

	"github.com/mrz1836/cadence/internal/constants"
)

// TestCounts holds the structured test counts extracted from tool output.
// The invariant Total == Passed+Failed+Skipped holds for every finalized
// PhaseResult.
type TestCounts struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// Consistent reports whether the counts satisfy the total invariant.
func (c TestCounts) Consistent() bool {
	return c.Total == c.Passed+c.Failed+c.Skipped
}

// Add returns the element-wise sum of two count sets. Used when merging
// per-category results within a phase.
func (c TestCounts) Add(o TestCounts) TestCounts {
	return TestCounts{
		Total:   c.Total + o.Total,
		Passed:  c.Passed + o.Passed,
		Failed:  c.Failed + o.Failed,
		Skipped: c.Skipped + o.Skipped,
	}
}

// CategoryResult is the outcome of running one test category's command
// within a phase attempt.
type CategoryResult struct {
	// Category is the configured category name (e.g. "unit", "integration").
	Category string `json:"category"`

	// Command is the external invocation string, immutable once recorded.
	Command string `json:"command"`

	ExitCode int        `json:"exit_code"`
	Counts   TestCounts `json:"counts"`

	// CoveragePercent is nil when the tool emitted no coverage signal.
	// nil means "no signal", never "0%".
	CoveragePercent *float64 `json:"coverage_percent,omitempty"`

	// TimedOut is true when the category's command was forcibly terminated.
	// A timeout is a failure, not a crash: it contributes to Counts.Failed.
	TimedOut bool `json:"timed_out,omitempty"`

	// ParseIncomplete is true when the parser hit a malformed capture and
	// defaulted counts to zero.
	ParseIncomplete bool `json:"parse_incomplete,omitempty"`

	// Skipped is true when the category had no configured command.
	Skipped bool `json:"skipped,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// PhaseResult is the outcome of one phase execution attempt.
// It is created when the attempt begins and is immutable once FinishedAt is
// set. The gate engine owns it exclusively until it is handed to the
// checkpoint store as a derived summary.
type PhaseResult struct {
	Phase constants.Phase `json:"phase"`

	// Command is a summary of the invocation(s) for this attempt,
	// immutable once recorded. For multi-category phases it joins the
	// per-category commands; per-category detail lives in Categories.
	Command string `json:"command"`

	// ExitCode is the worst exit code observed across build and categories
	// (0 only when everything exited 0).
	ExitCode int `json:"exit_code"`

	Counts TestCounts `json:"counts"`

	// CoveragePercent is the merged coverage signal: the maximum present
	// per-category value, or nil when no category reported coverage.
	CoveragePercent *float64 `json:"coverage_percent,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Attempt is the 1-indexed attempt number within the phase.
	Attempt int `json:"attempt"`

	TimedOut        bool `json:"timed_out,omitempty"`
	ParseIncomplete bool `json:"parse_incomplete,omitempty"`

	// BuildExitCode is the exit code of the configured build command, or 0
	// when no build command is configured.
	BuildExitCode int `json:"build_exit_code"`

	Categories []CategoryResult `json:"categories,omitempty"`
}

// Checkpoint is a durable, timestamped snapshot of pipeline state written
// after every phase attempt. The store keeps one current checkpoint
// (last-write-wins) plus an append-only history keyed by timestamp.
type Checkpoint struct {
	Timestamp time.Time                  `json:"timestamp"`
	RunID     string                     `json:"run_id"`
	Phase     constants.Phase            `json:"phase"`
	Status    constants.CheckpointStatus `json:"status"`

	// Tests is a copy of the latest PhaseResult counts.
	Tests TestCounts `json:"tests"`

	CoveragePercent *float64 `json:"coverage_percent,omitempty"`

	// FunctionalState is derived: working iff Failed == 0 and the build
	// exit code is 0.
	FunctionalState constants.FunctionalState `json:"functional_state"`

	// CoverageWarning is set at INTEGRATE when coverage is present and
	// below the threshold. Coverage never blocks completion.
	CoverageWarning bool `json:"coverage_warning,omitempty"`

	// IntegrationPartial is set when some categories were skipped at
	// INTEGRATE for lack of a configured command.
	IntegrationPartial bool `json:"integration_partial,omitempty"`

	// Attempt is the attempt number of the phase execution this snapshot
	// summarizes.
	Attempt int `json:"attempt"`

	// Reason carries a short machine-readable note, e.g.
	// "red_unexpected_pass" or "regression introduced by refactor".
	Reason string `json:"reason,omitempty"`
}

// DeriveFunctionalState computes the functional state from test counts and
// the build exit code. Unknown is returned when the counts are unusable
// (parse incomplete with nothing extracted).
func DeriveFunctionalState(counts TestCounts, buildExitCode int, parseIncomplete bool) constants.FunctionalState {
	if parseIncomplete && counts.Total == 0 {
		return constants.FunctionalUnknown
	}
	if counts.Failed == 0 && buildExitCode == 0 {
		return constants.FunctionalWorking
	}
	return constants.FunctionalBroken
}

// PipelineRun is one end-to-end execution of the four-phase sequence.
// It owns its PhaseResults; the checkpoint store only holds derived
// summaries. Raw command output is written to the artifact location keyed
// by the run ID.
type PipelineRun struct {
	ID            string `json:"id"`
	SchemaVersion int    `json:"schema_version"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Phases holds one or more PhaseResult per executed phase (retried
	// phases contribute one result per attempt), in execution order.
	Phases []PhaseResult `json:"phases"`

	Outcome     constants.RunOutcome `json:"outcome"`
	AbortReason string               `json:"abort_reason,omitempty"`

	CoverageWarning    bool `json:"coverage_warning,omitempty"`
	IntegrationPartial bool `json:"integration_partial,omitempty"`
}

// LastPhaseResult returns the most recent phase result, or nil when no
// phase has executed yet.
func (r *PipelineRun) LastPhaseResult() *PhaseResult {
	if len(r.Phases) == 0 {
		return nil
	}
	return &r.Phases[len(r.Phases)-1]
}

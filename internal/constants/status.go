package constants

// Phase identifies one stage of the RED/GREEN/REFACTOR/INTEGRATE sequence.
type Phase string

// Pipeline phases, in execution order.
const (
	PhaseRed       Phase = "red"
	PhaseGreen     Phase = "green"
	PhaseRefactor  Phase = "refactor"
	PhaseIntegrate Phase = "integrate"
)

// String returns the phase as a string.
func (p Phase) String() string {
	return string(p)
}

// Phases returns the fixed, ordered phase sequence.
func Phases() []Phase {
	return []Phase{PhaseRed, PhaseGreen, PhaseRefactor, PhaseIntegrate}
}

// IsValidPhase reports whether p is one of the four pipeline phases.
func IsValidPhase(p Phase) bool {
	switch p {
	case PhaseRed, PhaseGreen, PhaseRefactor, PhaseIntegrate:
		return true
	}
	return false
}

// CheckpointStatus is the recorded outcome of one phase attempt.
type CheckpointStatus string

// Checkpoint statuses.
const (
	CheckpointCompleted CheckpointStatus = "completed"
	CheckpointFailed    CheckpointStatus = "failed"
	CheckpointSkipped   CheckpointStatus = "skipped"
)

// String returns the status as a string.
func (s CheckpointStatus) String() string {
	return string(s)
}

// FunctionalState describes whether the codebase is believed to work based
// on the latest observed results.
type FunctionalState string

// Functional states.
const (
	FunctionalWorking FunctionalState = "working"
	FunctionalBroken  FunctionalState = "broken"
	FunctionalUnknown FunctionalState = "unknown"
)

// RunOutcome is the terminal disposition of a pipeline run.
type RunOutcome string

// Run outcomes.
const (
	RunComplete   RunOutcome = "complete"
	RunIncomplete RunOutcome = "incomplete"
	RunAborted    RunOutcome = "aborted"
)

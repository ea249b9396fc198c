// Package gate implements the phase state machine and per-phase exit
// criteria for the build/verify pipeline.
//
// The engine executes one phase attempt at a time: it runs the configured
// build command, runs the configured test categories concurrently, merges
// the parsed results into a PhaseResult, evaluates the phase's exit
// criterion, and records exactly one checkpoint per attempt. Retry policy is
// an explicit bounded combinator (see retry.go), never an open loop.
package gate

import (
	"fmt"

	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// State is one node of the pipeline state machine.
type State string

// Pipeline states. The four phase states mirror constants.Phases; Done and
// Aborted are terminal.
const (
	StateRed       State = State(constants.PhaseRed)
	StateGreen     State = State(constants.PhaseGreen)
	StateRefactor  State = State(constants.PhaseRefactor)
	StateIntegrate State = State(constants.PhaseIntegrate)
	StateDone      State = "done"
	StateAborted   State = "aborted"
)

// String returns the state as a string.
func (s State) String() string {
	return string(s)
}

// Terminal reports whether the state machine halts at s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// ValidTransitions defines the allowed state machine transitions.
// Every non-terminal state may abort; phases otherwise advance strictly in
// sequence.
var ValidTransitions = map[State][]State{ //nolint:gochecknoglobals // Read-only state machine definition
	StateRed:       {StateGreen, StateAborted},
	StateGreen:     {StateRefactor, StateAborted},
	StateRefactor:  {StateIntegrate, StateAborted},
	StateIntegrate: {StateDone, StateAborted},
	StateDone:      {},
	StateAborted:   {},
}

// CanTransition reports whether moving from one state to another is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition validates and performs a state change, returning the new state.
func Transition(from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", cadenceerrors.ErrInvalidTransition, from, to)
	}
	return to, nil
}

// NextState returns the state reached by completing the given phase.
func NextState(phase constants.Phase) State {
	switch phase {
	case constants.PhaseRed:
		return StateGreen
	case constants.PhaseGreen:
		return StateRefactor
	case constants.PhaseRefactor:
		return StateIntegrate
	case constants.PhaseIntegrate:
		return StateDone
	}
	return StateAborted
}

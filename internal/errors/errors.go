// Package errors provides centralized error handling for CADENCE.
//
// This package defines sentinel errors used for programmatic error
// categorization throughout the application. All error types can be checked
// using errors.Is().
//
// IMPORTANT: This package MUST NOT import any other internal packages.
// Only standard library imports are allowed.
package errors

import "errors"

// Sentinel errors for error categorization.
// These allow callers to check error types with errors.Is().
var (
	// ErrExecution indicates that a command could not be spawned at all
	// (binary not found, permission denied, missing working directory).
	// A non-zero exit code from a spawned command is NOT an ErrExecution;
	// it is a normally captured result.
	ErrExecution = errors.New("command execution failed")

	// ErrCommandTimeout indicates a command exceeded its timeout and was
	// forcibly terminated.
	ErrCommandTimeout = errors.New("command timeout exceeded")

	// ErrGateFailure indicates a phase's exit criterion was not met.
	ErrGateFailure = errors.New("phase gate criterion not met")

	// ErrPersistence indicates a checkpoint write failed. This is fatal to
	// the run: the engine cannot safely proceed without a persisted audit
	// trail.
	ErrPersistence = errors.New("checkpoint persistence failed")

	// ErrConcurrentRun indicates another pipeline run holds the lock on the
	// same checkpoint target. Never retried automatically.
	ErrConcurrentRun = errors.New("concurrent pipeline run detected")

	// ErrLockTimeout indicates a file lock could not be acquired within the
	// timeout period.
	ErrLockTimeout = errors.New("lock acquisition timeout")

	// ErrMaxRetriesExceeded indicates the maximum retry attempts have been
	// reached.
	ErrMaxRetriesExceeded = errors.New("maximum retry attempts exceeded")

	// ErrRunAborted indicates the pipeline terminated in the ABORTED state.
	ErrRunAborted = errors.New("pipeline run aborted")

	// ErrInvalidTransition indicates an attempt to make an invalid phase
	// state transition.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrCheckpointNotFound indicates no current checkpoint exists yet.
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrArtifactNotFound indicates the requested artifact file was not found.
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrRunNotFound indicates the requested run record was not found.
	ErrRunNotFound = errors.New("run not found")

	// ErrPathTraversal indicates an attempt to use path traversal in a
	// filename.
	ErrPathTraversal = errors.New("path traversal detected")

	// ErrTooManyVersions indicates too many versioned artifacts exist.
	ErrTooManyVersions = errors.New("too many versions")

	// ErrEmptyValue indicates that a required value was empty.
	ErrEmptyValue = errors.New("value cannot be empty")

	// ErrConfigNil indicates that a nil config was passed to validation.
	ErrConfigNil = errors.New("config is nil")

	// ErrConfigInvalidGate indicates an invalid gate configuration value.
	ErrConfigInvalidGate = errors.New("invalid gate configuration")

	// ErrConfigInvalidCommands indicates an invalid command configuration.
	ErrConfigInvalidCommands = errors.New("invalid command configuration")

	// ErrConfigInvalidParser indicates an invalid parser configuration.
	ErrConfigInvalidParser = errors.New("invalid parser configuration")

	// ErrNoTestCommands indicates no test command is configured for any
	// category, so the pipeline has nothing to run.
	ErrNoTestCommands = errors.New("no test commands configured")

	// ErrUnknownToolchain indicates the requested parser toolchain has no
	// registered rule set.
	ErrUnknownToolchain = errors.New("unknown toolchain")

	// ErrNoToolchainDetected indicates no recognized toolchain was found in
	// the working directory and none was configured.
	ErrNoToolchainDetected = errors.New("no recognized toolchain found")

	// ErrInvalidOutputFormat indicates an invalid output format was specified.
	ErrInvalidOutputFormat = errors.New("invalid output format")

	// ErrConfigExists indicates project configuration already exists.
	ErrConfigExists = errors.New("configuration already exists")

	// ErrValueOutOfRange indicates that a value is outside the allowed range.
	ErrValueOutOfRange = errors.New("value out of range")
)

// Package constants provides shared constants for CADENCE.
//
// This package defines phase identifiers, checkpoint statuses, directory
// layout, and default configuration values used across the application.
//
// IMPORTANT: This package MUST NOT import any other internal packages.
package constants

import "time"

// CadenceHome is the directory name for cadence's home directory (~/.cadence).
const CadenceHome = ".cadence"

// ProjectConfigDir is the per-project configuration directory name.
const ProjectConfigDir = ".cadence"

// ConfigFileName is the name of the configuration file.
const ConfigFileName = "config.yaml"

// RulesFileName is the name of the optional parser rules file.
const RulesFileName = "rules.yaml"

// Directory names under the state directory.
const (
	// CheckpointsDir holds the current checkpoint and its history.
	CheckpointsDir = "checkpoints"

	// HistoryDir holds the append-only checkpoint history, one file per
	// timestamp.
	HistoryDir = "history"

	// RunsDir holds per-run artifacts keyed by run ID.
	RunsDir = "runs"

	// ArtifactsDir holds raw command output for a run.
	ArtifactsDir = "artifacts"

	// LogsDir holds the rotating CLI log.
	LogsDir = "logs"
)

// CurrentCheckpointFileName is the single structured record holding the
// current checkpoint (last-write-wins pointer).
const CurrentCheckpointFileName = "current.json"

// RunFileName is the persisted pipeline run summary inside a run directory.
const RunFileName = "run.json"

// RunLockFileName is the advisory lock file guarding a checkpoint target
// against concurrent pipeline runs.
const RunLockFileName = "run.lock"

// CLILogFileName is the rotating log file name.
const CLILogFileName = "cadence.log"

// HistoryTimestampFormat is the basic ISO-8601 layout used for history file
// names. It is colon-free (safe on Windows) and lexically sortable.
const HistoryTimestampFormat = "20060102T150405.000000000Z"

// Log rotation settings.
const (
	LogMaxSizeMB  = 10
	LogMaxBackups = 3
	LogMaxAgeDays = 30
	LogCompress   = true
)

// Default gate settings.
const (
	// DefaultCoverageThreshold is the coverage percentage below which a
	// completed run is annotated with a coverage warning.
	DefaultCoverageThreshold = 80.0

	// DefaultMaxRetries is the number of additional attempts allowed for a
	// phase whose exit criterion supports retrying (GREEN).
	DefaultMaxRetries = 1

	// DefaultPhaseTimeout is the per-phase-per-category command timeout.
	DefaultPhaseTimeout = 5 * time.Minute

	// DefaultRetryBackoff is the pause between retry attempts.
	DefaultRetryBackoff = 2 * time.Second
)

// DefaultStaleLockTimeout is how old a run lock may be before it is
// considered abandoned and broken.
const DefaultStaleLockTimeout = time.Hour

// TimeoutExitCode is the reserved sentinel exit code recorded when a command
// is forcibly terminated on timeout.
const TimeoutExitCode = -1

// SpawnFailureExitCode is recorded when the command could not be spawned at
// all (binary missing, permission denied).
const SpawnFailureExitCode = -1

// RunSchemaVersion is the schema version written into persisted run records.
const RunSchemaVersion = 1

// Package config provides layered configuration for CADENCE.
//
// Precedence, highest first: CLI flag overrides, CADENCE_* environment
// variables, project config (.cadence/config.yaml), global config
// (~/.cadence/config.yaml), built-in defaults. The resulting Config struct
// is threaded explicitly through the controller, gate engine, and runner;
// nothing reads process-wide mutable state after loading.
package config

import (
	"time"

	"github.com/mrz1836/cadence/internal/constants"
	"github.com/mrz1836/cadence/internal/parser"
)

// Config is the complete CADENCE configuration.
type Config struct {
	// StateDir is the checkpoint target. Empty resolves to
	// <work_dir>/.cadence at load time.
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`

	// WorkDir is the working directory for all commands. Empty means the
	// current directory.
	WorkDir string `mapstructure:"work_dir" yaml:"work_dir"`

	Commands CommandsConfig `mapstructure:"commands" yaml:"commands"`
	Gate     GateConfig     `mapstructure:"gate" yaml:"gate"`
	Parser   ParserConfig   `mapstructure:"parser" yaml:"parser"`
	History  HistoryConfig  `mapstructure:"history" yaml:"history"`
}

// CommandsConfig enumerates the external commands. This is the only way
// phases obtain runnable commands; none are hard-coded.
type CommandsConfig struct {
	// Build runs once per phase attempt before the test categories.
	Build string `mapstructure:"build" yaml:"build"`

	// Test maps category name (unit, integration, e2e) to its command. An
	// empty value marks the category as present-but-skipped.
	Test map[string]string `mapstructure:"test" yaml:"test"`
}

// GateConfig tunes the phase gate engine.
type GateConfig struct {
	CoverageThreshold float64       `mapstructure:"coverage_threshold" yaml:"coverage_threshold"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	PhaseTimeout      time.Duration `mapstructure:"phase_timeout" yaml:"phase_timeout"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	StaleLockTimeout  time.Duration `mapstructure:"stale_lock_timeout" yaml:"stale_lock_timeout"`
}

// ParserConfig selects how tool output is turned into counts.
type ParserConfig struct {
	// Toolchain names a built-in preset or a rules-file entry. Empty means
	// auto-detect from the work directory.
	Toolchain string `mapstructure:"toolchain" yaml:"toolchain"`

	// RulesFile optionally points at a YAML file of custom rule sets,
	// relative to the work directory.
	RulesFile string `mapstructure:"rules_file" yaml:"rules_file"`

	// Overrides layers individual pattern replacements over the selected
	// rule set.
	Overrides parser.Rules `mapstructure:"overrides" yaml:"overrides"`
}

// HistoryConfig controls checkpoint history retention.
type HistoryConfig struct {
	// MaxEntries trims the oldest history records on write when > 0.
	// 0 keeps history unlimited.
	MaxEntries int `mapstructure:"max_entries" yaml:"max_entries"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Commands: CommandsConfig{Test: map[string]string{}},
		Gate: GateConfig{
			CoverageThreshold: constants.DefaultCoverageThreshold,
			MaxRetries:        constants.DefaultMaxRetries,
			PhaseTimeout:      constants.DefaultPhaseTimeout,
			RetryBackoff:      constants.DefaultRetryBackoff,
			StaleLockTimeout:  constants.DefaultStaleLockTimeout,
		},
	}
}

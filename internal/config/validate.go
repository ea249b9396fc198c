package config

import (
	"fmt"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// Validate checks a loaded configuration for contradictions. It does not
// require test commands to be present; that is enforced when a run starts,
// so read-only commands (status, history) work on any directory.
func Validate(cfg *Config) error {
	if cfg == nil {
		return cadenceerrors.ErrConfigNil
	}

	if cfg.Gate.CoverageThreshold < 0 || cfg.Gate.CoverageThreshold > 100 {
		return fmt.Errorf("%w: gate.coverage_threshold %.2f not in [0,100]",
			cadenceerrors.ErrValueOutOfRange, cfg.Gate.CoverageThreshold)
	}
	if cfg.Gate.MaxRetries < 0 {
		return fmt.Errorf("%w: gate.max_retries %d is negative",
			cadenceerrors.ErrValueOutOfRange, cfg.Gate.MaxRetries)
	}
	if cfg.Gate.PhaseTimeout < 0 {
		return fmt.Errorf("%w: gate.phase_timeout is negative", cadenceerrors.ErrValueOutOfRange)
	}
	if cfg.Gate.RetryBackoff < 0 {
		return fmt.Errorf("%w: gate.retry_backoff is negative", cadenceerrors.ErrValueOutOfRange)
	}
	if cfg.History.MaxEntries < 0 {
		return fmt.Errorf("%w: history.max_entries %d is negative",
			cadenceerrors.ErrValueOutOfRange, cfg.History.MaxEntries)
	}

	for category, command := range cfg.Commands.Test {
		if category == "" {
			return fmt.Errorf("%w: empty test category name", cadenceerrors.ErrConfigInvalidCommands)
		}
		_ = command // empty command is valid: present-but-skipped
	}

	return nil
}

// ValidateForRun additionally requires runnable commands. Called before a
// pipeline run starts.
func ValidateForRun(cfg *Config) error {
	if err := Validate(cfg); err != nil {
		return err
	}

	runnable := 0
	for _, command := range cfg.Commands.Test {
		if command != "" {
			runnable++
		}
	}
	if runnable == 0 {
		return cadenceerrors.ErrNoTestCommands
	}
	return nil
}

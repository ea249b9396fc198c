// Package cli provides the command-line interface for cadence.
package cli

import (
	stderrors "errors"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// Exit codes for the CLI.
const (
	// ExitSuccess indicates the pipeline reached DONE.
	ExitSuccess = 0
	// ExitAborted indicates the pipeline ended in ABORTED (or a general error).
	ExitAborted = 1
	// ExitInvalidInput indicates a configuration or setup error.
	ExitInvalidInput = 2
	// ExitPersistence indicates a checkpoint write failure.
	ExitPersistence = 3
)

// Output format constants.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// GlobalFlags holds flags available to all commands.
type GlobalFlags struct {
	// Output specifies the output format (text or json).
	Output string
	// Verbose enables debug-level logging.
	Verbose bool
	// Quiet suppresses non-essential output (warn level only).
	Quiet bool
	// WorkDir overrides the working directory for commands and config
	// discovery.
	WorkDir string
}

// AddGlobalFlags adds global flags to a command via PersistentFlags.
func AddGlobalFlags(cmd *cobra.Command, flags *GlobalFlags) {
	cmd.PersistentFlags().StringVarP(&flags.Output, "output", "o", OutputText, "output format (text|json)")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable verbose output")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress non-essential output")
	cmd.PersistentFlags().StringVarP(&flags.WorkDir, "dir", "C", "", "working directory (default current)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// BindGlobalFlags binds global flags to Viper for environment variable
// support (CADENCE_OUTPUT, CADENCE_VERBOSE, ...).
func BindGlobalFlags(v *viper.Viper, cmd *cobra.Command) error {
	rootFlags := cmd.Root().PersistentFlags()

	for _, name := range []string{"output", "verbose", "quiet", "dir"} {
		if err := v.BindPFlag(name, rootFlags.Lookup(name)); err != nil {
			return err
		}
	}

	v.SetEnvPrefix("CADENCE")
	v.AutomaticEnv()
	return nil
}

// ValidOutputFormats returns the valid output format values.
func ValidOutputFormats() []string {
	return []string{OutputText, OutputJSON}
}

// IsValidOutputFormat checks if the given format is valid.
func IsValidOutputFormat(format string) bool {
	for _, valid := range ValidOutputFormats() {
		if format == valid {
			return true
		}
	}
	return false
}

// setupErrors are the sentinels that indicate a configuration or
// environment problem rather than a pipeline failure.
var setupErrors = []error{ //nolint:gochecknoglobals // Read-only lookup table
	cadenceerrors.ErrInvalidOutputFormat,
	cadenceerrors.ErrConcurrentRun,
	cadenceerrors.ErrNoToolchainDetected,
	cadenceerrors.ErrNoTestCommands,
	cadenceerrors.ErrConfigNil,
	cadenceerrors.ErrConfigExists,
	cadenceerrors.ErrValueOutOfRange,
	cadenceerrors.ErrConfigInvalidGate,
	cadenceerrors.ErrConfigInvalidCommands,
	cadenceerrors.ErrConfigInvalidParser,
	cadenceerrors.ErrUnknownToolchain,
	cadenceerrors.ErrEmptyValue,
}

// ExitCodeForError maps an error to the process exit code:
// nil=0, persistence failure=3, configuration/setup problems=2,
// everything else (including an aborted run)=1.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	if stderrors.Is(err, cadenceerrors.ErrPersistence) {
		return ExitPersistence
	}

	for _, sentinel := range setupErrors {
		if stderrors.Is(err, sentinel) {
			return ExitInvalidInput
		}
	}

	if isInvalidInputError(err.Error()) {
		return ExitInvalidInput
	}

	return ExitAborted
}

// isInvalidInputError catches cobra's built-in flag validation errors.
func isInvalidInputError(errMsg string) bool {
	patterns := []string{
		"unknown flag",
		"unknown shorthand flag",
		"unknown command",
		"invalid argument",
		"flag needs an argument",
		"if any flags in the group",
		"were all set",
	}
	for _, p := range patterns {
		if strings.Contains(errMsg, p) {
			return true
		}
	}
	return false
}

package config

import (
	"os"
	"path/filepath"

	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// GlobalConfigDir returns the global configuration directory (~/.cadence).
// The CADENCE_HOME environment variable overrides the location entirely.
func GlobalConfigDir() (string, error) {
	if custom := os.Getenv("CADENCE_HOME"); custom != "" {
		return custom, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", cadenceerrors.Wrap(err, "failed to determine home directory")
	}
	return filepath.Join(home, constants.CadenceHome), nil
}

// ProjectConfigPath returns the project config path under workDir.
func ProjectConfigPath(workDir string) string {
	if workDir == "" {
		workDir = "."
	}
	return filepath.Join(workDir, constants.ProjectConfigDir, constants.ConfigFileName)
}

// DefaultStateDir returns the state directory used when none is configured:
// the project's .cadence directory, keeping checkpoints next to the code
// they describe.
func DefaultStateDir(workDir string) string {
	if workDir == "" {
		workDir = "."
	}
	return filepath.Join(workDir, constants.ProjectConfigDir)
}

// LogFilePath returns the rotating log file location under the global
// directory.
func LogFilePath() (string, error) {
	dir, err := GlobalConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, constants.LogsDir, constants.CLILogFileName), nil
}

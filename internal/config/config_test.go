package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadence/internal/config"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/parser"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromPaths("", "", t.TempDir())
	require.NoError(t, err)

	assert.InDelta(t, 80.0, cfg.Gate.CoverageThreshold, 0.001)
	assert.Equal(t, 1, cfg.Gate.MaxRetries)
	assert.Equal(t, 5*time.Minute, cfg.Gate.PhaseTimeout)
	assert.Equal(t, time.Hour, cfg.Gate.StaleLockTimeout)
	assert.Equal(t, 0, cfg.History.MaxEntries)
	assert.NotEmpty(t, cfg.StateDir)
}

func TestLoadProjectOverridesGlobal(t *testing.T) {
	t.Parallel()

	globalPath := writeConfigFile(t, t.TempDir(), `
gate:
  coverage_threshold: 50
  max_retries: 5
`)
	projectPath := writeConfigFile(t, t.TempDir(), `
gate:
  coverage_threshold: 90
commands:
  test:
    unit: go test ./...
`)

	cfg, err := config.LoadFromPaths(projectPath, globalPath, t.TempDir())
	require.NoError(t, err)

	assert.InDelta(t, 90.0, cfg.Gate.CoverageThreshold, 0.001)
	// Untouched global values survive the merge.
	assert.Equal(t, 5, cfg.Gate.MaxRetries)
	assert.Equal(t, "go test ./...", cfg.Commands.Test["unit"])
}

func TestLoadDurationStrings(t *testing.T) {
	t.Parallel()

	projectPath := writeConfigFile(t, t.TempDir(), `
gate:
  phase_timeout: 90s
  retry_backoff: 500ms
`)

	cfg, err := config.LoadFromPaths(projectPath, "", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Gate.PhaseTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Gate.RetryBackoff)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CADENCE_GATE_MAX_RETRIES", "7")

	projectPath := writeConfigFile(t, t.TempDir(), `
gate:
  max_retries: 2
`)

	cfg, err := config.LoadFromPaths(projectPath, "", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Gate.MaxRetries)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()

		require.ErrorIs(t, config.Validate(nil), cadenceerrors.ErrConfigNil)
	})

	t.Run("threshold out of range", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Gate.CoverageThreshold = 150
		require.ErrorIs(t, config.Validate(cfg), cadenceerrors.ErrValueOutOfRange)
	})

	t.Run("negative retries", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Gate.MaxRetries = -1
		require.ErrorIs(t, config.Validate(cfg), cadenceerrors.ErrValueOutOfRange)
	})

	t.Run("run requires a runnable command", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.Commands.Test = map[string]string{"e2e": ""}
		require.NoError(t, config.Validate(cfg))
		require.ErrorIs(t, config.ValidateForRun(cfg), cadenceerrors.ErrNoTestCommands)

		cfg.Commands.Test["unit"] = "go test ./..."
		require.NoError(t, config.ValidateForRun(cfg))
	})
}

func TestDetectToolchain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		marker string
		want   string
	}{
		{"go project", "go.mod", parser.ToolchainGoTest},
		{"node project", "package.json", parser.ToolchainJest},
		{"python project", "pyproject.toml", parser.ToolchainPytest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, tc.marker), []byte("x"), 0o600))

			got, err := config.DetectToolchain(dir)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	t.Run("unrecognized project", func(t *testing.T) {
		t.Parallel()

		_, err := config.DetectToolchain(t.TempDir())
		require.ErrorIs(t, err, cadenceerrors.ErrNoToolchainDetected)
	})
}

func TestResolveRules(t *testing.T) {
	t.Parallel()

	t.Run("configured toolchain wins", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.WorkDir = t.TempDir()
		cfg.Parser.Toolchain = parser.ToolchainPytest

		rules, err := cfg.ResolveRules()
		require.NoError(t, err)
		assert.Equal(t, parser.ToolchainPytest, rules.Toolchain)
	})

	t.Run("detection fills in when unset", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x"), 0o600))

		cfg := config.DefaultConfig()
		cfg.WorkDir = dir

		rules, err := cfg.ResolveRules()
		require.NoError(t, err)
		assert.Equal(t, parser.ToolchainGoTest, rules.Toolchain)
	})

	t.Run("falls back to generic", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.WorkDir = t.TempDir()

		rules, err := cfg.ResolveRules()
		require.NoError(t, err)
		assert.Equal(t, parser.ToolchainGeneric, rules.Toolchain)
	})

	t.Run("pattern overrides apply", func(t *testing.T) {
		t.Parallel()

		cfg := config.DefaultConfig()
		cfg.WorkDir = t.TempDir()
		cfg.Parser.Toolchain = parser.ToolchainGeneric
		cfg.Parser.Overrides = parser.Rules{CoveragePattern: `cov (\d+)%`}

		rules, err := cfg.ResolveRules()
		require.NoError(t, err)
		assert.Equal(t, `cov (\d+)%`, rules.CoveragePattern)
	})

	t.Run("rules file entry replaces preset", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		rulesPath := filepath.Join(dir, "rules.yaml")
		content := `toolchains:
  gotest:
    toolchain: gotest
    coverage_pattern: 'lines covered: (\d+)%'
`
		require.NoError(t, os.WriteFile(rulesPath, []byte(content), 0o600))

		cfg := config.DefaultConfig()
		cfg.WorkDir = dir
		cfg.Parser.Toolchain = parser.ToolchainGoTest
		cfg.Parser.RulesFile = "rules.yaml"

		rules, err := cfg.ResolveRules()
		require.NoError(t, err)
		assert.Equal(t, `lines covered: (\d+)%`, rules.CoveragePattern)
		assert.Equal(t, `(?m)^\s*--- FAIL`, rules.FailedPattern)
	})
}

package parser_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/cadence/internal/parser"
)

const goTestOutput = `=== RUN   TestAdd
--- PASS: TestAdd (0.00s)
=== RUN   TestSub
--- PASS: TestSub (0.00s)
=== RUN   TestDiv
--- FAIL: TestDiv (0.01s)
    math_test.go:42: expected 2, got 3
=== RUN   TestLegacy
--- SKIP: TestLegacy (0.00s)
FAIL
coverage: 73.5% of statements
FAIL	example.com/math	0.021s
`

const jestOutput = `Test Suites: 1 failed, 2 passed, 3 total
Tests:       2 failed, 1 skipped, 9 passed, 12 total
Snapshots:   0 total
Time:        4.2 s
`

const pytestOutput = `========== 2 failed, 7 passed, 1 skipped in 1.24s ==========
---------- coverage ----------
TOTAL                 120     30    75%
`

func TestParseGoTest(t *testing.T) {
	t.Parallel()

	rules, err := parser.RulesFor(parser.ToolchainGoTest)
	require.NoError(t, err)

	result := parser.Parse(goTestOutput, rules)

	assert.Equal(t, 4, result.Counts.Total)
	assert.Equal(t, 2, result.Counts.Passed)
	assert.Equal(t, 1, result.Counts.Failed)
	assert.Equal(t, 1, result.Counts.Skipped)
	assert.True(t, result.Counts.Consistent())
	require.NotNil(t, result.CoveragePercent)
	assert.InDelta(t, 73.5, *result.CoveragePercent, 0.001)
	assert.False(t, result.ParseIncomplete)
}

func TestParseJest(t *testing.T) {
	t.Parallel()

	rules, err := parser.RulesFor(parser.ToolchainJest)
	require.NoError(t, err)

	result := parser.Parse(jestOutput, rules)

	assert.Equal(t, 12, result.Counts.Total)
	assert.Equal(t, 9, result.Counts.Passed)
	assert.Equal(t, 2, result.Counts.Failed)
	assert.Equal(t, 1, result.Counts.Skipped)
	assert.True(t, result.Counts.Consistent())
	assert.Nil(t, result.CoveragePercent)
}

func TestParsePytest(t *testing.T) {
	t.Parallel()

	rules, err := parser.RulesFor(parser.ToolchainPytest)
	require.NoError(t, err)

	result := parser.Parse(pytestOutput, rules)

	assert.Equal(t, 10, result.Counts.Total)
	assert.Equal(t, 7, result.Counts.Passed)
	assert.Equal(t, 2, result.Counts.Failed)
	assert.Equal(t, 1, result.Counts.Skipped)
	require.NotNil(t, result.CoveragePercent)
	assert.InDelta(t, 75.0, *result.CoveragePercent, 0.001)
}

func TestParseEdgeCases(t *testing.T) {
	t.Parallel()

	t.Run("missing counts default to zero", func(t *testing.T) {
		t.Parallel()

		rules, err := parser.RulesFor(parser.ToolchainGeneric)
		require.NoError(t, err)

		result := parser.Parse("nothing recognizable here", rules)

		assert.Equal(t, 0, result.Counts.Total)
		assert.Equal(t, 0, result.Counts.Failed)
		assert.Nil(t, result.CoveragePercent)
		assert.False(t, result.ParseIncomplete)
	})

	t.Run("missing coverage is nil, never zero", func(t *testing.T) {
		t.Parallel()

		rules, err := parser.RulesFor(parser.ToolchainGeneric)
		require.NoError(t, err)

		result := parser.Parse("total: 3\npassed: 3\n", rules)

		assert.Nil(t, result.CoveragePercent)
		assert.Equal(t, 3, result.Counts.Passed)
	})

	t.Run("total larger than parts attributes remainder to skipped", func(t *testing.T) {
		t.Parallel()

		rules, err := parser.RulesFor(parser.ToolchainGeneric)
		require.NoError(t, err)

		result := parser.Parse("total: 5\npassed: 3\nfailed: 1\n", rules)

		assert.Equal(t, 5, result.Counts.Total)
		assert.Equal(t, 1, result.Counts.Skipped)
		assert.True(t, result.Counts.Consistent())
	})

	t.Run("malformed pattern is a non-fatal warning", func(t *testing.T) {
		t.Parallel()

		rules := parser.Rules{FailedPattern: `([invalid`}
		result := parser.Parse("anything", rules)

		assert.True(t, result.ParseIncomplete)
		assert.NotEmpty(t, result.Warnings)
		assert.Equal(t, 0, result.Counts.Failed)
	})

	t.Run("coverage outside range is rejected with warning", func(t *testing.T) {
		t.Parallel()

		rules := parser.Rules{CoveragePattern: `coverage: (\d+)%`}
		result := parser.Parse("coverage: 250%", rules)

		assert.Nil(t, result.CoveragePercent)
		assert.True(t, result.ParseIncomplete)
	})

	t.Run("per-package counts are summed", func(t *testing.T) {
		t.Parallel()

		rules, err := parser.RulesFor(parser.ToolchainGeneric)
		require.NoError(t, err)

		out := "passed: 3\nfailed: 1\npassed: 2\n"
		result := parser.Parse(out, rules)

		assert.Equal(t, 5, result.Counts.Passed)
		assert.Equal(t, 1, result.Counts.Failed)
		assert.Equal(t, 6, result.Counts.Total)
	})
}

func TestRulesFor(t *testing.T) {
	t.Parallel()

	t.Run("unknown toolchain returns error", func(t *testing.T) {
		t.Parallel()

		_, err := parser.RulesFor("cobol")
		require.Error(t, err)
	})

	t.Run("lists all presets", func(t *testing.T) {
		t.Parallel()

		names := parser.Toolchains()
		assert.Contains(t, names, parser.ToolchainGoTest)
		assert.Contains(t, names, parser.ToolchainGeneric)
	})
}

func TestLoadRulesFile(t *testing.T) {
	t.Parallel()

	t.Run("extends preset with overrides", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := `toolchains:
  mygotest:
    toolchain: gotest
    coverage_pattern: 'cov=(\d+)%'
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		sets, err := parser.LoadRulesFile(path)
		require.NoError(t, err)
		require.Contains(t, sets, "mygotest")

		rules := sets["mygotest"]
		assert.Equal(t, `cov=(\d+)%`, rules.CoveragePattern)
		assert.Equal(t, `(?m)^\s*--- FAIL`, rules.FailedPattern)
	})

	t.Run("unknown base toolchain fails", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := "toolchains:\n  broken:\n    toolchain: nope\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := parser.LoadRulesFile(path)
		require.Error(t, err)
	})

	t.Run("unknown keys are rejected", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "rules.yaml")
		content := "toolchains:\n  x:\n    total_patern: 'typo'\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		_, err := parser.LoadRulesFile(path)
		require.Error(t, err)
	})
}

package parser

import (
	"fmt"
	"sort"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// Built-in toolchain identifiers.
const (
	ToolchainGoTest  = "gotest"
	ToolchainJest    = "jest"
	ToolchainPytest  = "pytest"
	ToolchainGeneric = "generic"
)

// presets holds the built-in rule sets keyed by toolchain identity.
var presets = map[string]Rules{ //nolint:gochecknoglobals // Read-only lookup table
	// go test -v prints one marker line per test and a coverage summary
	// per package. No total line is emitted; it is computed from the parts.
	ToolchainGoTest: {
		Toolchain:       ToolchainGoTest,
		PassedPattern:   `(?m)^\s*--- PASS`,
		FailedPattern:   `(?m)^\s*--- FAIL`,
		SkippedPattern:  `(?m)^\s*--- SKIP`,
		CoveragePattern: `coverage:\s+(\d+(?:\.\d+)?)% of statements`,
	},

	// jest prints a single "Tests: N failed, M passed, K total" summary.
	ToolchainJest: {
		Toolchain:       ToolchainJest,
		TotalPattern:    `Tests:.*?(\d+) total`,
		PassedPattern:   `Tests:.*?(\d+) passed`,
		FailedPattern:   `Tests:.*?(\d+) failed`,
		SkippedPattern:  `Tests:.*?(\d+) skipped`,
		CoveragePattern: `All files[^|]*\|\s*(\d+(?:\.\d+)?)`,
	},

	// pytest prints "=== N failed, M passed, K skipped in T s ===" and a
	// coverage TOTAL row when pytest-cov is active.
	ToolchainPytest: {
		Toolchain:       ToolchainPytest,
		PassedPattern:   `(\d+) passed`,
		FailedPattern:   `(\d+) failed`,
		SkippedPattern:  `(\d+) skipped`,
		CoveragePattern: `(?m)^TOTAL\s+\d+\s+\d+\s+(\d+(?:\.\d+)?)%`,
	},

	// generic matches "key: N" style summaries emitted by custom scripts.
	ToolchainGeneric: {
		Toolchain:       ToolchainGeneric,
		TotalPattern:    `(?im)^\s*total[:=\s]+(\d+)`,
		PassedPattern:   `(?im)^\s*pass(?:ed)?[:=\s]+(\d+)`,
		FailedPattern:   `(?im)^\s*fail(?:ed)?[:=\s]+(\d+)`,
		SkippedPattern:  `(?im)^\s*skip(?:ped)?[:=\s]+(\d+)`,
		CoveragePattern: `(?i)coverage[:=\s]+(\d+(?:\.\d+)?)%`,
	},
}

// RulesFor returns the built-in rule set for a toolchain identity.
func RulesFor(toolchain string) (Rules, error) {
	rules, ok := presets[toolchain]
	if !ok {
		return Rules{}, fmt.Errorf("%w: %q (known: %v)", cadenceerrors.ErrUnknownToolchain, toolchain, Toolchains())
	}
	return rules, nil
}

// Toolchains returns the sorted list of built-in toolchain identifiers.
func Toolchains() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

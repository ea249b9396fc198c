package config

import (
	"fmt"
	"os"
	"path/filepath"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/parser"
)

// toolchainMarkers maps detection files to the toolchain they imply,
// checked in order.
var toolchainMarkers = []struct { //nolint:gochecknoglobals // Read-only lookup table
	file      string
	toolchain string
}{
	{"go.mod", parser.ToolchainGoTest},
	{"package.json", parser.ToolchainJest},
	{"pytest.ini", parser.ToolchainPytest},
	{"pyproject.toml", parser.ToolchainPytest},
	{"setup.py", parser.ToolchainPytest},
}

// DetectToolchain inspects workDir for well-known project markers and
// returns the matching toolchain identity.
func DetectToolchain(workDir string) (string, error) {
	if workDir == "" {
		workDir = "."
	}

	for _, marker := range toolchainMarkers {
		if _, err := os.Stat(filepath.Join(workDir, marker.file)); err == nil {
			return marker.toolchain, nil
		}
	}
	return "", fmt.Errorf("no recognized project marker in %s: %w", workDir, cadenceerrors.ErrNoToolchainDetected)
}

// ResolveRules produces the effective parser rule set for this config:
// configured toolchain (or detected, falling back to generic), optionally
// replaced by a rules-file entry of the same name, with per-pattern
// overrides layered on top.
func (c *Config) ResolveRules() (parser.Rules, error) {
	name := c.Parser.Toolchain
	if name == "" {
		detected, err := DetectToolchain(c.WorkDir)
		if err != nil {
			name = parser.ToolchainGeneric
		} else {
			name = detected
		}
	}

	var rules parser.Rules
	if c.Parser.RulesFile != "" {
		path := c.Parser.RulesFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.WorkDir, path)
		}
		sets, err := parser.LoadRulesFile(path)
		if err != nil {
			return parser.Rules{}, err
		}
		if custom, ok := sets[name]; ok {
			return custom.Merge(c.Parser.Overrides), nil
		}
	}

	rules, err := parser.RulesFor(name)
	if err != nil {
		return parser.Rules{}, err
	}
	return rules.Merge(c.Parser.Overrides), nil
}

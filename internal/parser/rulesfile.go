package parser

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// rulesFile is the on-disk shape of a parser rules file
// (.cadence/rules.yaml): named rule sets, each optionally extending a
// built-in preset.
type rulesFile struct {
	Toolchains map[string]Rules `yaml:"toolchains"`
}

// LoadRulesFile reads custom rule sets from a YAML file. Each entry may name
// a built-in toolchain to extend via its Toolchain field; its own non-empty
// patterns override the preset's. Unknown YAML keys are rejected to catch
// typos early.
func LoadRulesFile(path string) (map[string]Rules, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path comes from trusted project config
	if err != nil {
		return nil, cadenceerrors.Wrapf(err, "failed to read rules file %s", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file rulesFile
	if err := dec.Decode(&file); err != nil {
		return nil, cadenceerrors.Wrapf(err, "failed to parse rules file %s", path)
	}

	result := make(map[string]Rules, len(file.Toolchains))
	for name, custom := range file.Toolchains {
		if custom.Toolchain != "" {
			base, presetErr := RulesFor(custom.Toolchain)
			if presetErr != nil {
				return nil, fmt.Errorf("rules file entry %q: %w", name, presetErr)
			}
			custom = base.Merge(custom)
		}
		custom.Toolchain = name
		result[name] = custom
	}

	return result, nil
}

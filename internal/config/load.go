package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// newViperInstance creates a Viper instance with the standard CADENCE
// setup: defaults, CADENCE_ env prefix, and key replacer.
func newViperInstance() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CADENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from all available sources with proper
// precedence, highest first:
//  1. Environment variables (CADENCE_* prefix)
//  2. Project config (<workDir>/.cadence/config.yaml)
//  3. Global config (~/.cadence/config.yaml)
//  4. Built-in defaults
//
// Missing config files are not errors; many projects run on defaults plus
// flags.
func Load(workDir string) (*Config, error) {
	v := newViperInstance()

	if err := mergeConfigFile(v, globalConfigPathIfExists(), true); err != nil {
		return nil, err
	}
	if err := mergeConfigFile(v, ProjectConfigPath(workDir), false); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(v, workDir)
}

// LoadFromPaths loads configuration from explicit file paths. Either path
// may be empty to skip that layer. Used by tests and by --config.
func LoadFromPaths(projectConfigPath, globalConfigPath, workDir string) (*Config, error) {
	v := newViperInstance()

	if err := mergeConfigFile(v, globalConfigPath, true); err != nil {
		return nil, err
	}
	if err := mergeConfigFile(v, projectConfigPath, false); err != nil {
		return nil, err
	}

	return unmarshalAndValidate(v, workDir)
}

// mergeConfigFile reads one config layer into v. A missing file is skipped
// silently. first selects ReadInConfig over MergeInConfig.
func mergeConfigFile(v *viper.Viper, path string, first bool) error {
	if path == "" || !fileExists(path) {
		return nil
	}

	v.SetConfigFile(path)
	var err error
	if first {
		err = v.ReadInConfig()
	} else {
		err = v.MergeInConfig()
	}
	if err != nil && !isConfigNotFoundError(err) {
		return cadenceerrors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}

func unmarshalAndValidate(v *viper.Viper, workDir string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viperDecoderOption()); err != nil {
		return nil, cadenceerrors.Wrap(err, "failed to unmarshal config")
	}

	if cfg.WorkDir == "" {
		cfg.WorkDir = workDir
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir(cfg.WorkDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, cadenceerrors.Wrap(err, "invalid configuration")
	}
	return &cfg, nil
}

// setDefaults configures all default values. Keys must match the
// mapstructure tag names exactly.
func setDefaults(v *viper.Viper) {
	v.SetDefault("state_dir", "")
	v.SetDefault("work_dir", "")

	v.SetDefault("commands.build", "")
	v.SetDefault("commands.test", map[string]string{})

	v.SetDefault("gate.coverage_threshold", constants.DefaultCoverageThreshold)
	v.SetDefault("gate.max_retries", constants.DefaultMaxRetries)
	v.SetDefault("gate.phase_timeout", constants.DefaultPhaseTimeout.String())
	v.SetDefault("gate.retry_backoff", constants.DefaultRetryBackoff.String())
	v.SetDefault("gate.stale_lock_timeout", constants.DefaultStaleLockTimeout.String())

	v.SetDefault("parser.toolchain", "")
	v.SetDefault("parser.rules_file", "")

	v.SetDefault("history.max_entries", 0)
}

// viperDecoderOption configures mapstructure to convert duration strings.
func viperDecoderOption() viper.DecoderConfigOption {
	return viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
	)
}

func globalConfigPathIfExists() string {
	dir, err := GlobalConfigDir()
	if err != nil {
		return ""
	}
	path := filepath.Join(dir, constants.ConfigFileName)
	if !fileExists(path) {
		return ""
	}
	return path
}

func isConfigNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var notFound viper.ConfigFileNotFoundError
	return stderrors.As(err, &notFound)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

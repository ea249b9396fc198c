package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/cadence/internal/config"
	"github.com/mrz1836/cadence/internal/constants"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
	"github.com/mrz1836/cadence/internal/parser"
)

// toolchainDefaults maps a detected toolchain to starter commands.
var toolchainDefaults = map[string]struct { //nolint:gochecknoglobals // Read-only lookup table
	build string
	unit  string
}{
	parser.ToolchainGoTest: {build: "go build ./...", unit: "go test -v -cover ./..."},
	parser.ToolchainJest:   {build: "npm run build --if-present", unit: "npx jest --coverage"},
	parser.ToolchainPytest: {build: "", unit: "pytest --cov"},
}

const configTemplate = `# cadence configuration
# Commands are the only way phases obtain anything runnable.

commands:
  build: %q
  test:
    unit: %q
    # integration: ""
    # e2e: ""

parser:
  toolchain: %s

gate:
  coverage_threshold: %.0f
  max_retries: %d
  phase_timeout: %s

# history:
#   max_entries: 100
`

// AddInitCommand registers the init subcommand.
func AddInitCommand(parent *cobra.Command, flags *GlobalFlags) {
	var (
		toolchain string
		force     bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a project configuration",
		Long: `Init detects the project's toolchain and writes a starter
.cadence/config.yaml. Fails when no toolchain is recognized and none is
given with --toolchain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			workDir := flags.WorkDir
			if workDir == "" {
				workDir = "."
			}

			configPath := config.ProjectConfigPath(workDir)
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%w: %s (use --force to overwrite)", cadenceerrors.ErrConfigExists, configPath)
			}

			if toolchain == "" {
				detected, err := config.DetectToolchain(workDir)
				if err != nil {
					return err
				}
				toolchain = detected
			} else if _, err := parser.RulesFor(toolchain); err != nil {
				return err
			}

			defaults := toolchainDefaults[toolchain]

			content := fmt.Sprintf(configTemplate,
				defaults.build, defaults.unit, toolchain,
				constants.DefaultCoverageThreshold,
				constants.DefaultMaxRetries,
				constants.DefaultPhaseTimeout,
			)

			if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
				return cadenceerrors.Wrap(err, "failed to create config directory")
			}
			if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
				return cadenceerrors.Wrap(err, "failed to write config file")
			}

			zerolog.Ctx(cmd.Context()).Info().
				Str("toolchain", toolchain).
				Str("path", configPath).
				Msg("project configuration created")
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s (toolchain: %s)\n", configPath, toolchain)
			return nil
		},
	}

	cmd.Flags().StringVar(&toolchain, "toolchain", "", "toolchain preset to use instead of auto-detection")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing configuration")

	parent.AddCommand(cmd)
}

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadence/internal/config"
	"github.com/mrz1836/cadence/internal/constants"
	"github.com/mrz1836/cadence/internal/domain"
	"github.com/mrz1836/cadence/internal/pipeline"
)

// AddRunCommand registers the run subcommand.
func AddRunCommand(parent *cobra.Command, flags *GlobalFlags) {
	var (
		coverageThreshold float64
		maxRetries        int
		phaseTimeout      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute the full phase sequence",
		Long: `Run executes RED -> GREEN -> REFACTOR -> INTEGRATE against the
configured commands, writing one checkpoint per phase attempt.

Exit codes: 0 the pipeline reached DONE, 1 it ended in ABORTED,
2 configuration or setup error, 3 checkpoint persistence failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.WorkDir)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("coverage-threshold") {
				cfg.Gate.CoverageThreshold = coverageThreshold
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.Gate.MaxRetries = maxRetries
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Gate.PhaseTimeout = phaseTimeout
			}

			if err := config.ValidateForRun(cfg); err != nil {
				return err
			}

			rules, err := cfg.ResolveRules()
			if err != nil {
				return err
			}

			ctrl, err := pipeline.New(pipeline.Options{
				StateDir:          cfg.StateDir,
				WorkDir:           cfg.WorkDir,
				BuildCommand:      cfg.Commands.Build,
				TestCommands:      cfg.Commands.Test,
				Rules:             rules,
				CoverageThreshold: cfg.Gate.CoverageThreshold,
				MaxRetries:        cfg.Gate.MaxRetries,
				RetryBackoff:      cfg.Gate.RetryBackoff,
				PhaseTimeout:      cfg.Gate.PhaseTimeout,
				StaleLockTimeout:  cfg.Gate.StaleLockTimeout,
				MaxHistory:        cfg.History.MaxEntries,
			})
			if err != nil {
				return err
			}

			run, runErr := ctrl.Run(cmd.Context())
			if run != nil {
				if printErr := printRun(cmd.OutOrStdout(), flags.Output, run); printErr != nil {
					return printErr
				}
			}
			return runErr
		},
	}

	cmd.Flags().Float64Var(&coverageThreshold, "coverage-threshold", constants.DefaultCoverageThreshold,
		"coverage percentage below which a completed run is annotated")
	cmd.Flags().IntVar(&maxRetries, "max-retries", constants.DefaultMaxRetries,
		"additional attempts for a retryable phase failure")
	cmd.Flags().DurationVar(&phaseTimeout, "timeout", constants.DefaultPhaseTimeout,
		"per-phase-per-category command timeout")

	parent.AddCommand(cmd)
}

// printRun renders a run summary in the selected output format.
func printRun(w io.Writer, format string, run *domain.PipelineRun) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	}

	fmt.Fprintf(w, "Run:     %s\n", run.ID)
	fmt.Fprintf(w, "Outcome: %s\n", run.Outcome)
	if run.AbortReason != "" {
		fmt.Fprintf(w, "Reason:  %s\n", run.AbortReason)
	}
	for i := range run.Phases {
		p := &run.Phases[i]
		fmt.Fprintf(w, "  %-9s attempt %d: %d passed, %d failed, %d skipped (exit %d)\n",
			p.Phase, p.Attempt, p.Counts.Passed, p.Counts.Failed, p.Counts.Skipped, p.ExitCode)
	}
	if last := run.LastPhaseResult(); last != nil && last.CoveragePercent != nil {
		fmt.Fprintf(w, "Coverage: %.1f%%\n", *last.CoveragePercent)
	}
	if run.CoverageWarning {
		fmt.Fprintln(w, "Warning: coverage below threshold")
	}
	if run.IntegrationPartial {
		fmt.Fprintln(w, "Warning: some integration categories were skipped")
	}
	return nil
}

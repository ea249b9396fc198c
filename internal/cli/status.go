package cli

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadence/internal/checkpoint"
	"github.com/mrz1836/cadence/internal/config"
	"github.com/mrz1836/cadence/internal/domain"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// AddStatusCommand registers the status subcommand.
func AddStatusCommand(parent *cobra.Command, flags *GlobalFlags) {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current checkpoint",
		Long: `Status reads the current checkpoint from the state directory. It
works without a running pipeline, so a crashed run stays diagnosable
from persisted state alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.WorkDir)
			if err != nil {
				return err
			}

			store, err := checkpoint.NewFileStore(cfg.StateDir)
			if err != nil {
				return err
			}

			cp, err := store.ReadCurrent(cmd.Context())
			if err != nil {
				if stderrors.Is(err, cadenceerrors.ErrCheckpointNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), "No checkpoints recorded yet.")
					return nil
				}
				return err
			}

			return printCheckpoint(cmd.OutOrStdout(), flags.Output, cp)
		},
	}

	parent.AddCommand(cmd)
}

// printCheckpoint renders one checkpoint in the selected output format.
func printCheckpoint(w io.Writer, format string, cp *domain.Checkpoint) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	}

	fmt.Fprintf(w, "Run:       %s\n", cp.RunID)
	fmt.Fprintf(w, "Phase:     %s (attempt %d)\n", cp.Phase, cp.Attempt)
	fmt.Fprintf(w, "Status:    %s\n", cp.Status)
	fmt.Fprintf(w, "State:     %s\n", cp.FunctionalState)
	fmt.Fprintf(w, "Tests:     %d total, %d passed, %d failed, %d skipped\n",
		cp.Tests.Total, cp.Tests.Passed, cp.Tests.Failed, cp.Tests.Skipped)
	if cp.CoveragePercent != nil {
		fmt.Fprintf(w, "Coverage:  %.1f%%\n", *cp.CoveragePercent)
	}
	fmt.Fprintf(w, "Recorded:  %s\n", cp.Timestamp.Format("2006-01-02 15:04:05 MST"))
	if cp.Reason != "" {
		fmt.Fprintf(w, "Reason:    %s\n", cp.Reason)
	}
	if cp.CoverageWarning {
		fmt.Fprintln(w, "Warning: coverage below threshold")
	}
	if cp.IntegrationPartial {
		fmt.Fprintln(w, "Warning: some integration categories were skipped")
	}
	return nil
}

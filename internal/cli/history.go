package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/cadence/internal/checkpoint"
	"github.com/mrz1836/cadence/internal/config"
	cadenceerrors "github.com/mrz1836/cadence/internal/errors"
)

// AddHistoryCommand registers the history subcommand.
func AddHistoryCommand(parent *cobra.Command, flags *GlobalFlags) {
	var (
		since string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List checkpoint history, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.WorkDir)
			if err != nil {
				return err
			}

			var sinceTime time.Time
			if since != "" {
				sinceTime, err = time.Parse(time.RFC3339, since)
				if err != nil {
					return cadenceerrors.Wrapf(err, "invalid --since value %q (want RFC3339)", since)
				}
			}

			store, err := checkpoint.NewFileStore(cfg.StateDir)
			if err != nil {
				return err
			}

			history, err := store.ReadHistory(cmd.Context(), sinceTime)
			if err != nil {
				return err
			}

			if limit > 0 && len(history) > limit {
				history = history[len(history)-limit:]
			}

			out := cmd.OutOrStdout()
			if flags.Output == OutputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(history)
			}

			if len(history) == 0 {
				fmt.Fprintln(out, "No checkpoints recorded yet.")
				return nil
			}

			for _, cp := range history {
				marker := ""
				if cp.Reason != "" {
					marker = "  (" + cp.Reason + ")"
				}
				fmt.Fprintf(out, "%s  %-9s attempt %d  %-9s  %d/%d passed%s\n",
					cp.Timestamp.Format("2006-01-02 15:04:05"),
					cp.Phase, cp.Attempt, cp.Status,
					cp.Tests.Passed, cp.Tests.Total, marker)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only show checkpoints at or after this RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 0, "only show the most recent N checkpoints (0 = all)")

	parent.AddCommand(cmd)
}

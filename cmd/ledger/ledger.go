package ledger

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/corpusprep/internal/conf"
	"github.com/tphakala/corpusprep/internal/datastore"
	"github.com/tphakala/corpusprep/internal/logger"
	"github.com/tphakala/corpusprep/internal/report"
)

// Command creates a new cobra.Command for inspecting recorded runs.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect runs recorded in the SQLite ledger",
	}

	cmd.AddCommand(runsCommand(settings), showCommand(settings), compareCommand(settings))

	return cmd
}

func runsCommand(settings *conf.Settings) *cobra.Command {
	var command string
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store *datastore.Store) error {
				runs, err := store.Runs(cmd.Context(), command)
				if err != nil {
					return err
				}
				return report.PrintRuns(cmd.OutOrStdout(), runs, time.Now())
			})
		},
	}
	cmd.Flags().StringVar(&command, "command", "", "Only list runs of this command")
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show [run-id]",
		Short: "Show the details of a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store *datastore.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return report.PrintRun(cmd.OutOrStdout(), run)
			})
		},
	}
}

func compareCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "compare [run-id] [run-id]",
		Short: "Compare the file assignments of two split runs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(settings, func(store *datastore.Store) error {
				diff, err := store.CompareSplits(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return report.PrintSplitDiff(cmd.OutOrStdout(), args[0], args[1], diff)
			})
		},
	}
}

func withStore(settings *conf.Settings, fn func(store *datastore.Store) error) error {
	store, err := datastore.Open(settings.Ledger.Path, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Global().Module("ledger").Warn("failed to close ledger", logger.Error(err))
		}
	}()
	return fn(store)
}

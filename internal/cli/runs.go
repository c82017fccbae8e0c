package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/raine/appraisal-lots/internal/assembler"
	"github.com/raine/appraisal-lots/internal/storage"
	"github.com/spf13/cobra"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect stored runs",
	}
	cmd.AddCommand(newRunsListCmd(root))
	cmd.AddCommand(newRunsShowCmd(root))
	return cmd
}

func newRunsListCmd(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewSQLiteStore(root.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			runs, err := store.ListRuns(limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODE\tIMAGES\tCANDIDATES\tLOTS\tVALUE")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%.2f %s\n",
					r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Mode, r.ImageCount, r.CandidateCount, r.LotCount,
					r.TotalValue, r.Currency)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to list")
	return cmd
}

func newRunsShowCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the report of a stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewSQLiteStore(root.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			run, err := store.GetRun(args[0])
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run not found: %s", args[0])
			}

			var report assembler.Report
			if err := json.Unmarshal(run.Report, &report); err != nil {
				return fmt.Errorf("failed to decode stored report: %w", err)
			}
			return writeReport(cmd.OutOrStdout(), &report, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "o", formatYAML, "output format (yaml, json)")
	return cmd
}

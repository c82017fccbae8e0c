package cli

import (
	"fmt"
	"time"

	"github.com/raine/appraisal-lots/internal/storage"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newCacheCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached model answers",
	}

	var olderThan time.Duration
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached model answers older than a given age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := storage.NewSQLiteStore(root.cfg.DBPath)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer store.Close()

			n, err := store.PruneVisionCache(olderThan)
			if err != nil {
				return err
			}
			log.Info().Int64("deleted", n).Dur("olderThan", olderThan).Msg("pruned vision cache")
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d cached answers\n", n)
			return nil
		},
	}
	prune.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "minimum age of deleted entries")

	cmd.AddCommand(prune)
	return cmd
}

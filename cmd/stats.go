package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print per-tier record counts for every data type",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRetention(cmd.Context(), func(ctx context.Context, svc *retention.Service) error {
			stats, err := svc.GetStatistics(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), stats)
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

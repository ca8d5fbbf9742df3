package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
)

var runFlags struct {
	dataType string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a cleanup pass now",
	Long: `Run a cleanup pass immediately and print the result as JSON.

Without --type every data type with cleanup enabled is processed.
A named type is processed even when its cleanup is disabled.

Examples:
  eidos-retention run
  eidos-retention run --type raw_candles --dry-run`,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runFlags.dataType, "type", "t", "", "data type to clean (default: all enabled)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "report what would change without writing")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	var dataType *model.DataType
	if runFlags.dataType != "" {
		dt, err := model.ParseDataType(runFlags.dataType)
		if err != nil {
			return err
		}
		dataType = &dt
	}

	return withRetention(cmd.Context(), func(ctx context.Context, svc *retention.Service) error {
		result, err := svc.RunManual(ctx, dataType, runFlags.dryRun)
		if err != nil {
			return err
		}
		if err := printJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
		if !result.Success {
			return errors.New("cleanup finished with failures")
		}
		return nil
	})
}

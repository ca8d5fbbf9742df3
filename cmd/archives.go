package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/internal/retention"
)

var archivesFlags struct {
	dataType string
}

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "Inspect and manage archive files",
}

var archivesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archives, newest first",
	RunE:  listArchives,
}

var archivesRestoreCmd = &cobra.Command{
	Use:   "restore <archive-id>",
	Short: "Print the records stored in an archive",
	Args:  cobra.ExactArgs(1),
	RunE:  restoreArchive,
}

var archivesDeleteCmd = &cobra.Command{
	Use:   "delete <archive-id>",
	Short: "Delete an archive file",
	Args:  cobra.ExactArgs(1),
	RunE:  deleteArchive,
}

func init() {
	rootCmd.AddCommand(archivesCmd)
	archivesCmd.AddCommand(archivesListCmd, archivesRestoreCmd, archivesDeleteCmd)

	archivesListCmd.Flags().StringVarP(&archivesFlags.dataType, "type", "t", "", "filter by data type")
}

func listArchives(cmd *cobra.Command, args []string) error {
	var dataType *model.DataType
	if archivesFlags.dataType != "" {
		dt, err := model.ParseDataType(archivesFlags.dataType)
		if err != nil {
			return err
		}
		dataType = &dt
	}

	return withRetention(cmd.Context(), func(ctx context.Context, svc *retention.Service) error {
		archives, err := svc.ListArchives(ctx, dataType)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), archives)
	})
}

func restoreArchive(cmd *cobra.Command, args []string) error {
	return withRetention(cmd.Context(), func(ctx context.Context, svc *retention.Service) error {
		records, found, err := svc.RestoreArchive(ctx, args[0])
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("archive %s not found", args[0])
		}
		return printJSON(cmd.OutOrStdout(), records)
	})
}

func deleteArchive(cmd *cobra.Command, args []string) error {
	return withRetention(cmd.Context(), func(ctx context.Context, svc *retention.Service) error {
		deleted, err := svc.DeleteArchive(ctx, args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("archive %s not found", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	})
}

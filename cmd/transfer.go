package cmd

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/usecase/pipeline"
)

var transferCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Manage record transfers",
}

var transferRetryCmd = &cobra.Command{
	Use:   "retry <transfer-id>",
	Short: "Retry a failed transfer",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		transferID, err := transferIDArg(cmd)
		if err != nil {
			return err
		}
		view, err := svc.RetryTransfer(ctx, transferID)
		if err != nil {
			return errs.Wrap(err, "retry transfer")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "transfer %d %s, record %d in %s\n",
			view.TransferID, view.Status, view.TargetRecordID, view.TargetTable); err != nil {
			return errs.Wrap(err, "write transfer output")
		}
		return nil
	}),
}

var transferCancelCmd = &cobra.Command{
	Use:   "cancel <transfer-id>",
	Short: "Cancel a pending transfer",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		transferID, err := transferIDArg(cmd)
		if err != nil {
			return err
		}
		view, err := svc.CancelTransfer(ctx, transferID)
		if err != nil {
			return errs.Wrap(err, "cancel transfer")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "transfer %d cancelled\n", view.TransferID); err != nil {
			return errs.Wrap(err, "write transfer output")
		}
		return nil
	}),
}

var transferBatchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Transfer completed jobs that never reached the target store",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		orgID, _ := cmd.Flags().GetUint64("org")
		limit, _ := cmd.Flags().GetInt("limit")
		result, err := svc.BatchTransfer(ctx, orgID, limit)
		if err != nil {
			return errs.Wrap(err, "batch transfer")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "batch transfer: %d completed, %d failed\n",
			len(result.Completed), len(result.FailedJobs)); err != nil {
			return errs.Wrap(err, "write transfer output")
		}
		for _, jobID := range result.FailedJobs {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "  job %d failed\n", jobID); err != nil {
				return errs.Wrap(err, "write transfer output")
			}
		}
		return nil
	}),
}

func transferIDArg(cmd *cobra.Command) (uint64, error) {
	raw := cmd.Flags().Args()[0]
	transferID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || transferID == 0 {
		return 0, fmt.Errorf("transfer id %q must be a positive integer", raw)
	}
	return transferID, nil
}

func init() {
	rootCmd.AddCommand(transferCmd)
	transferCmd.AddCommand(transferRetryCmd, transferCancelCmd, transferBatchCmd)

	transferBatchCmd.Flags().Uint64("org", 0, "Organization id")
	transferBatchCmd.Flags().Int("limit", 0, "Maximum jobs per run (0 = no limit)")
	_ = transferBatchCmd.MarkFlagRequired("org")
}

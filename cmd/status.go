package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/usecase/pipeline"
)

var statusCmd = &cobra.Command{
	Use:   "status [source-job-id]",
	Short: "Show job status, or stalled jobs with --stalled",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		stalled, _ := cmd.Flags().GetBool("stalled")
		if stalled {
			views, err := svc.ListStalledJobs(ctx)
			if err != nil {
				return errs.Wrap(err, "list stalled jobs")
			}
			if len(views) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "no stalled jobs")
				return err
			}
			for _, view := range views {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "job %d (%s) stuck in %s since %s\n",
					view.JobID, view.SourceJobID, view.Status, view.StartedAt); err != nil {
					return errs.Wrap(err, "write status output")
				}
			}
			return nil
		}

		if len(cmd.Flags().Args()) == 0 {
			return errs.WithStack(fmt.Errorf("source job id or --stalled is required"))
		}
		view, err := svc.GetJobStatus(ctx, cmd.Flags().Args()[0])
		if err != nil {
			return errs.Wrap(err, "get job status")
		}

		out, err := json.MarshalIndent(view, "", "  ")
		if err != nil {
			return errs.Wrap(err, "encode job status")
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), string(out)); err != nil {
			return errs.Wrap(err, "write status output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().Bool("stalled", false, "List jobs stuck in processing")
}

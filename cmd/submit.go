package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/usecase/pipeline"
)

var submitCmd = &cobra.Command{
	Use:   "submit <payload-file>",
	Short: "Submit one extraction payload file",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path := cmd.Flags().Args()[0]
		raw, err := os.ReadFile(path)
		if err != nil {
			return errs.Wrapf(err, "read payload file %s", path)
		}
		input, err := pipeline.ParseExtractionPayload(raw)
		if err != nil {
			return errs.Wrap(err, "parse payload")
		}

		view, err := svc.SubmitExtraction(ctx, input)
		if err != nil {
			return errs.Wrap(err, "submit extraction")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "job %d (%s) status=%s confidence=%.1f\n",
			view.JobID, view.SourceJobID, view.Status, view.ConfidenceScore); err != nil {
			return errs.Wrap(err, "write submit output")
		}
		if view.Review != nil {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "routed to review: item %d priority=%s\n",
				view.Review.ReviewItemID, view.Review.Priority); err != nil {
				return errs.Wrap(err, "write submit output")
			}
		}
		if view.Transfer != nil {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "transferred: record %d in %s\n",
				view.Transfer.TargetRecordID, view.Transfer.TargetTable); err != nil {
				return errs.Wrap(err, "write submit output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(submitCmd)
}

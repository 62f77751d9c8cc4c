package cmd

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"recordbridge/internal/bootstrap"
	"recordbridge/internal/bootstrap/logging"
	"recordbridge/internal/errs"
	"recordbridge/internal/usecase/pipeline"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Work the manual review queue",
}

var reviewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending review items, urgent first",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		limit, _ := cmd.Flags().GetInt("limit")
		views, err := svc.ListReviewQueue(ctx, limit)
		if err != nil {
			return errs.Wrap(err, "list review queue")
		}
		if len(views) == 0 {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "review queue is empty")
			return err
		}
		for _, view := range views {
			if _, err := fmt.Fprintf(cmd.OutOrStdout(), "item %d job=%d priority=%s confidence=%.1f issues=%d\n",
				view.ReviewItemID, view.ProcessingJobID, view.Priority, view.ConfidenceAvg, len(view.Issues)); err != nil {
				return errs.Wrap(err, "write review output")
			}
		}
		return nil
	}),
}

var reviewClaimCmd = &cobra.Command{
	Use:   "claim <item-id>",
	Short: "Claim a pending review item",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		itemID, err := reviewItemArg(cmd)
		if err != nil {
			return err
		}
		reviewer, _ := cmd.Flags().GetString("reviewer")
		view, err := svc.ClaimReview(ctx, pipeline.ClaimReviewInput{ReviewItemID: itemID, ReviewerID: reviewer})
		if err != nil {
			return errs.Wrap(err, "claim review item")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "item %d claimed by %s\n", view.ReviewItemID, view.AssignedTo); err != nil {
			return errs.Wrap(err, "write review output")
		}
		return nil
	}),
}

var reviewCorrectCmd = &cobra.Command{
	Use:   "correct <item-id> field=value [field=value ...]",
	Short: "Apply field corrections to a claimed item",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		itemID, err := reviewItemArg(cmd)
		if err != nil {
			return err
		}
		corrections := make(map[string]string)
		for _, arg := range cmd.Flags().Args()[1:] {
			field, value, found := strings.Cut(arg, "=")
			if !found || field == "" {
				return fmt.Errorf("correction %q must be field=value", arg)
			}
			corrections[field] = value
		}

		reviewer, _ := cmd.Flags().GetString("reviewer")
		view, err := svc.CorrectReview(ctx, pipeline.CorrectReviewInput{
			ReviewItemID: itemID,
			ReviewerID:   reviewer,
			Corrections:  corrections,
		})
		if err != nil {
			return errs.Wrap(err, "correct review item")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "item %d corrected, status=%s confidence=%.1f\n",
			view.ReviewItemID, view.Status, view.ConfidenceAvg); err != nil {
			return errs.Wrap(err, "write review output")
		}
		return nil
	}),
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve <item-id>",
	Short: "Approve a claimed item and transfer its record",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		itemID, err := reviewItemArg(cmd)
		if err != nil {
			return err
		}
		reviewer, _ := cmd.Flags().GetString("reviewer")
		result, err := svc.ApproveReview(ctx, pipeline.ApproveReviewInput{ReviewItemID: itemID, ReviewerID: reviewer})
		if err != nil {
			return errs.Wrap(err, "approve review item")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "item %d approved, record %d written to %s\n",
			result.Item.ReviewItemID, result.Transfer.TargetRecordID, result.Transfer.TargetTable); err != nil {
			return errs.Wrap(err, "write review output")
		}
		return nil
	}),
}

var reviewRejectCmd = &cobra.Command{
	Use:   "reject <item-id>",
	Short: "Reject a claimed item with a reason",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service, _ *pipeline.Dispatcher) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		itemID, err := reviewItemArg(cmd)
		if err != nil {
			return err
		}
		reviewer, _ := cmd.Flags().GetString("reviewer")
		reason, _ := cmd.Flags().GetString("reason")
		view, err := svc.RejectReview(ctx, pipeline.RejectReviewInput{
			ReviewItemID: itemID,
			ReviewerID:   reviewer,
			Reason:       reason,
		})
		if err != nil {
			return errs.Wrap(err, "reject review item")
		}

		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "item %d rejected\n", view.ReviewItemID); err != nil {
			return errs.Wrap(err, "write review output")
		}
		return nil
	}),
}

func reviewItemArg(cmd *cobra.Command) (uint64, error) {
	raw := cmd.Flags().Args()[0]
	itemID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || itemID == 0 {
		return 0, fmt.Errorf("item id %q must be a positive integer", raw)
	}
	return itemID, nil
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewListCmd, reviewClaimCmd, reviewCorrectCmd, reviewApproveCmd, reviewRejectCmd)

	reviewListCmd.Flags().Int("limit", 20, "Maximum items to list")
	for _, sub := range []*cobra.Command{reviewClaimCmd, reviewCorrectCmd, reviewApproveCmd, reviewRejectCmd} {
		sub.Flags().String("reviewer", "", "Reviewer identifier")
		_ = sub.MarkFlagRequired("reviewer")
	}
	reviewRejectCmd.Flags().String("reason", "", "Rejection reason")
	_ = reviewRejectCmd.MarkFlagRequired("reason")
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"recordbridge/internal/bootstrap/logging"
	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/errs"
	"recordbridge/internal/ports"
)

// RejectReview closes an in_review item without transferring anything and
// fails the backing job. A reason is mandatory so the rejection is
// auditable.
func (s *Service) RejectReview(ctx context.Context, input RejectReviewInput) (ReviewItemView, error) {
	if ctx == nil {
		return ReviewItemView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ReviewItemView{}, errs.Wrap(err, "check context")
	}
	if s.reviews == nil || s.jobs == nil || s.uow == nil {
		return ReviewItemView{}, errors.New("pipeline service is not fully wired")
	}
	reviewerID := strings.TrimSpace(input.ReviewerID)
	if reviewerID == "" {
		return ReviewItemView{}, errors.New("reviewer id is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return ReviewItemView{}, domain.ErrRejectReasonRequired
	}

	var rejected ports.ReviewItemRow
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reviews.GetReviewItem(txCtx, input.ReviewItemID)
		if err != nil {
			if errors.Is(err, ports.ErrReviewItemNotFound) {
				return fmt.Errorf("%w: id %d", domain.ErrReviewItemNotFound, input.ReviewItemID)
			}
			return err
		}
		fromStatus := domain.ReviewStatus(item.Status)
		if !domain.CanReviewTransition(fromStatus, domain.ReviewRejected) {
			return fmt.Errorf("%w: cannot reject an item in status %s", domain.ErrInvalidTransition, item.Status)
		}

		now := nowUTCString()
		won, err := s.reviews.UpdateReviewState(txCtx, item.ReviewItemID,
			string(fromStatus), string(domain.ReviewRejected), map[string]any{
				"reviewed_by": reviewerID,
				"updated_at":  now,
			})
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: item %d changed state underneath the rejection", domain.ErrReviewConflict, item.ReviewItemID)
		}
		if err := s.jobs.MarkJobFailed(txCtx, item.ProcessingJobID, "rejected by reviewer: "+reason, now); err != nil {
			return err
		}

		item.Status = string(domain.ReviewRejected)
		item.ReviewedBy = stringPtr(reviewerID)
		item.UpdatedAt = now
		rejected = item
		return nil
	}); err != nil {
		return ReviewItemView{}, err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "pipeline.review")),
		"review item rejected",
		slog.Uint64("review_item_id", rejected.ReviewItemID),
		slog.String("reviewer", reviewerID),
		slog.String("reason", reason),
	)
	return reviewItemView(rejected)
}

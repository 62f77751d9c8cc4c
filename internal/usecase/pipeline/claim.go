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

// ClaimReview moves a pending item to in_review for exactly one reviewer.
// A claim racing another reviewer loses with ErrReviewConflict instead of
// silently taking over their work.
func (s *Service) ClaimReview(ctx context.Context, input ClaimReviewInput) (ReviewItemView, error) {
	if ctx == nil {
		return ReviewItemView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ReviewItemView{}, errs.Wrap(err, "check context")
	}
	if s.reviews == nil {
		return ReviewItemView{}, errors.New("review repository is required")
	}

	reviewerID := strings.TrimSpace(input.ReviewerID)
	if reviewerID == "" {
		return ReviewItemView{}, errors.New("reviewer id is required")
	}

	now := nowUTCString()
	won, err := s.reviews.ClaimReviewItem(ctx, input.ReviewItemID, reviewerID, now)
	if err != nil {
		return ReviewItemView{}, err
	}
	if !won {
		item, getErr := s.reviews.GetReviewItem(ctx, input.ReviewItemID)
		if getErr != nil {
			if errors.Is(getErr, ports.ErrReviewItemNotFound) {
				return ReviewItemView{}, fmt.Errorf("%w: id %d", domain.ErrReviewItemNotFound, input.ReviewItemID)
			}
			return ReviewItemView{}, getErr
		}
		return ReviewItemView{}, fmt.Errorf("%w: item is %s (assigned to %s)",
			domain.ErrReviewConflict, item.Status, derefString(item.AssignedTo))
	}

	item, err := s.reviews.GetReviewItem(ctx, input.ReviewItemID)
	if err != nil {
		return ReviewItemView{}, err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "pipeline.review")),
		"review item claimed",
		slog.Uint64("review_item_id", input.ReviewItemID),
		slog.String("reviewer", reviewerID),
	)
	return reviewItemView(item)
}

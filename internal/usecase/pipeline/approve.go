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

// ApproveReview finalizes an in_review item and hands its mapped fields to
// the transfer stage. Approval is refused while a required field is still
// invalid or unresolved.
func (s *Service) ApproveReview(ctx context.Context, input ApproveReviewInput) (ApproveReviewResult, error) {
	if ctx == nil {
		return ApproveReviewResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ApproveReviewResult{}, errs.Wrap(err, "check context")
	}
	if s.reviews == nil || s.jobs == nil || s.configs == nil || s.uow == nil {
		return ApproveReviewResult{}, errors.New("pipeline service is not fully wired")
	}
	reviewerID := strings.TrimSpace(input.ReviewerID)
	if reviewerID == "" {
		return ApproveReviewResult{}, errors.New("reviewer id is required")
	}

	var (
		approved ports.ReviewItemRow
		jobID    uint64
		fields   map[string]string
	)
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reviews.GetReviewItem(txCtx, input.ReviewItemID)
		if err != nil {
			if errors.Is(err, ports.ErrReviewItemNotFound) {
				return fmt.Errorf("%w: id %d", domain.ErrReviewItemNotFound, input.ReviewItemID)
			}
			return err
		}
		if domain.ReviewStatus(item.Status) != domain.ReviewInProgress {
			return fmt.Errorf("%w: cannot approve an item in status %s", domain.ErrInvalidTransition, item.Status)
		}

		job, err := s.jobs.GetJob(txCtx, item.ProcessingJobID)
		if err != nil {
			if errors.Is(err, ports.ErrJobNotFound) {
				return fmt.Errorf("%w: id %d", domain.ErrJobNotFound, item.ProcessingJobID)
			}
			return err
		}
		if job.ConfigID == nil {
			return fmt.Errorf("%w: job %d carries no configuration", domain.ErrConfigNotFound, job.JobID)
		}
		cfgRow, err := s.configs.GetConfigByID(txCtx, *job.ConfigID)
		if err != nil {
			return err
		}
		cfg, err := decodeConfigRow(cfgRow)
		if err != nil {
			return err
		}

		mapped, err := decodeMappedFields(item.MappedFieldsJSON)
		if err != nil {
			return err
		}
		if !domain.RequiredFieldsValid(mapped, cfg.Rules) {
			return fmt.Errorf("%w: review item %d", domain.ErrRequiredFieldsInvalid, item.ReviewItemID)
		}

		now := nowUTCString()
		won, err := s.reviews.UpdateReviewState(txCtx, item.ReviewItemID,
			string(domain.ReviewInProgress), string(domain.ReviewApproved), map[string]any{
				"reviewed_by": reviewerID,
				"updated_at":  now,
			})
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: item %d changed state underneath the approval", domain.ErrReviewConflict, item.ReviewItemID)
		}

		item.Status = string(domain.ReviewApproved)
		item.ReviewedBy = stringPtr(reviewerID)
		item.UpdatedAt = now
		approved = item
		jobID = job.JobID
		fields = fieldValues(mapped)
		return nil
	}); err != nil {
		return ApproveReviewResult{}, err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "pipeline.review")),
		"review item approved",
		slog.Uint64("review_item_id", approved.ReviewItemID),
		slog.String("reviewer", reviewerID),
	)

	itemView, err := reviewItemView(approved)
	if err != nil {
		return ApproveReviewResult{}, err
	}

	// Approval has committed; a transfer failure here does not undo it.
	// The transfer stays retryable via RetryTransfer.
	transfer, err := s.Transfer(ctx, TransferInput{
		ProcessingJobID: jobID,
		Data:            fields,
		TransferType:    domain.TransferManual,
		ReviewItemID:    &approved.ReviewItemID,
	})
	if err != nil {
		return ApproveReviewResult{Item: itemView}, err
	}
	return ApproveReviewResult{Item: itemView, Transfer: transfer}, nil
}

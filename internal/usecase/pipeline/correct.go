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

// CorrectReview overwrites reviewer-supplied field values on an item that is
// being reviewed. Corrections are re-validated against the field rules the
// job was mapped with, but the source text is not re-mapped. A correction
// that leaves required fields invalid parks the item in needs_correction.
func (s *Service) CorrectReview(ctx context.Context, input CorrectReviewInput) (ReviewItemView, error) {
	if ctx == nil {
		return ReviewItemView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return ReviewItemView{}, errs.Wrap(err, "check context")
	}
	if s.reviews == nil || s.jobs == nil || s.configs == nil || s.uow == nil {
		return ReviewItemView{}, errors.New("pipeline service is not fully wired")
	}
	if len(input.Corrections) == 0 {
		return ReviewItemView{}, errors.New("at least one correction is required")
	}
	reviewerID := strings.TrimSpace(input.ReviewerID)
	if reviewerID == "" {
		return ReviewItemView{}, errors.New("reviewer id is required")
	}

	var updated ports.ReviewItemRow
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		item, err := s.reviews.GetReviewItem(txCtx, input.ReviewItemID)
		if err != nil {
			if errors.Is(err, ports.ErrReviewItemNotFound) {
				return fmt.Errorf("%w: id %d", domain.ErrReviewItemNotFound, input.ReviewItemID)
			}
			return err
		}
		fromStatus := domain.ReviewStatus(item.Status)
		if fromStatus != domain.ReviewInProgress && fromStatus != domain.ReviewNeedsCorrection {
			return fmt.Errorf("%w: cannot correct an item in status %s", domain.ErrInvalidTransition, item.Status)
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
			if errors.Is(err, ports.ErrConfigNotFound) {
				return fmt.Errorf("%w: id %d", domain.ErrConfigNotFound, *job.ConfigID)
			}
			return err
		}
		cfg, err := decodeConfigRow(cfgRow)
		if err != nil {
			return err
		}

		fields, err := decodeMappedFields(item.MappedFieldsJSON)
		if err != nil {
			return err
		}
		fields, issues, err := s.engine.ApplyCorrections(fields, input.Corrections, cfg)
		if err != nil {
			return err
		}

		confidenceAvg := domain.WeightedConfidenceAvg(fields, cfg.Rules)
		autoInsertable := domain.RoutingDecision(fields, issues, confidenceAvg, cfg.Settings)

		toStatus := domain.ReviewInProgress
		if !domain.RequiredFieldsValid(fields, cfg.Rules) {
			toStatus = domain.ReviewNeedsCorrection
		}

		fieldsJSON, err := encodeMappedFields(fields)
		if err != nil {
			return err
		}
		issuesJSON, err := encodeFieldIssues(issues)
		if err != nil {
			return err
		}
		correctionsJSON, err := encodeStringMap(input.Corrections)
		if err != nil {
			return err
		}

		now := nowUTCString()
		won, err := s.reviews.UpdateReviewState(txCtx, item.ReviewItemID, string(fromStatus), string(toStatus), map[string]any{
			"mapped_fields_json": fieldsJSON,
			"issues_json":        issuesJSON,
			"correction_json":    correctionsJSON,
			"confidence_avg":     confidenceAvg,
			"auto_insertable":    autoInsertable,
			"reviewed_by":        reviewerID,
			"updated_at":         now,
		})
		if err != nil {
			return err
		}
		if !won {
			return fmt.Errorf("%w: item %d changed state underneath the correction", domain.ErrReviewConflict, item.ReviewItemID)
		}
		if err := s.jobs.UpdateJobConfidence(txCtx, job.JobID, confidenceAvg, now); err != nil {
			return err
		}

		item.MappedFieldsJSON = fieldsJSON
		item.IssuesJSON = issuesJSON
		item.CorrectionJSON = correctionsJSON
		item.ConfidenceAvg = confidenceAvg
		item.AutoInsertable = autoInsertable
		item.Status = string(toStatus)
		item.ReviewedBy = stringPtr(reviewerID)
		item.UpdatedAt = now
		updated = item
		return nil
	}); err != nil {
		return ReviewItemView{}, err
	}

	logging.Info(logging.WithAttrs(ctx, slog.String("component", "pipeline.review")),
		"review corrections applied",
		slog.Uint64("review_item_id", updated.ReviewItemID),
		slog.Int("corrections", len(input.Corrections)),
		slog.String("status", updated.Status),
	)
	return reviewItemView(updated)
}

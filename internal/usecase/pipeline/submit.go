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
	"recordbridge/internal/mapping"
	"recordbridge/internal/ports"
)

// SubmitExtraction records a finished OCR extraction, runs the mapping
// engine against the active field configuration and routes the result:
// auto-transfer on high confidence, review queue otherwise.
//
// Resubmitting a source job re-runs mapping unless the job already
// transferred or sits in an open review.
func (s *Service) SubmitExtraction(ctx context.Context, input SubmitExtractionInput) (JobStatusView, error) {
	if ctx == nil {
		return JobStatusView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return JobStatusView{}, errs.Wrap(err, "check context")
	}
	if s.jobs == nil || s.configs == nil || s.uow == nil {
		return JobStatusView{}, errors.New("pipeline service is not fully wired")
	}

	if input.OrganizationID == 0 {
		return JobStatusView{}, errors.New("organization id is required")
	}
	sourceJobID := strings.TrimSpace(input.SourceJobID)
	if sourceJobID == "" {
		return JobStatusView{}, errors.New("source job id is required")
	}
	recordType, err := domain.NormalizeRecordType(input.RecordType)
	if err != nil {
		return JobStatusView{}, err
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "pipeline.submit"),
		slog.String("source_job_id", sourceJobID),
		slog.Uint64("organization_id", input.OrganizationID),
	)

	now := nowUTCString()
	var job ports.ProcessingJobRow
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.jobs.GetJobBySourceID(txCtx, sourceJobID)
		switch {
		case err == nil:
			if existing.Status == string(domain.JobTransferred) {
				return fmt.Errorf("%w: source job %s", domain.ErrJobAlreadyTransferred, sourceJobID)
			}
			if item, reviewErr := s.reviews.GetReviewItemByJobID(txCtx, existing.JobID); reviewErr == nil {
				switch domain.ReviewStatus(item.Status) {
				case domain.ReviewApproved, domain.ReviewRejected:
					// Closed reviews do not block a fresh run.
				default:
					return fmt.Errorf("%w: source job %s is under review", domain.ErrReviewConflict, sourceJobID)
				}
			} else if !errors.Is(reviewErr, ports.ErrReviewItemNotFound) {
				return reviewErr
			}
			job = existing
		case errors.Is(err, ports.ErrJobNotFound):
			metaJSON, metaErr := encodeJobMetadata(jobMetadata{Extra: input.Metadata})
			if metaErr != nil {
				return metaErr
			}
			created, createErr := s.jobs.CreateJob(txCtx, ports.ProcessingJobRow{
				OrganizationID: input.OrganizationID,
				SourceJobID:    sourceJobID,
				RecordType:     recordType,
				Filename:       strings.TrimSpace(input.Filename),
				Status:         string(domain.JobPending),
				MetadataJSON:   metaJSON,
				CreatedAt:      now,
				UpdatedAt:      now,
			})
			if createErr != nil {
				return createErr
			}
			job = created
		default:
			return err
		}

		return s.jobs.MarkJobProcessing(txCtx, job.JobID, now)
	}); err != nil {
		return JobStatusView{}, err
	}

	configRow, err := s.configs.GetActiveConfig(ctx, input.OrganizationID, recordType)
	if err != nil {
		if errors.Is(err, ports.ErrConfigNotFound) {
			return JobStatusView{}, s.failJobOnConfig(logCtx, job.JobID, input.OrganizationID, recordType)
		}
		return JobStatusView{}, err
	}
	cfg, err := decodeConfigRow(configRow)
	if err != nil {
		return JobStatusView{}, err
	}

	result := s.engine.Map(mapping.Extraction{
		Text:       input.Text,
		Confidence: input.Confidence,
		Entities:   entityCandidates(input.Entities),
	}, cfg)

	logging.Info(logCtx, "mapping completed",
		slog.Float64("confidence_avg", result.ConfidenceAvg),
		slog.Bool("auto_insertable", result.AutoInsertable),
		slog.Int("field_issues", len(result.Issues)),
	)

	completedAt := nowUTCString()
	metaJSON, err := encodeJobMetadata(jobMetadata{
		Extra:        input.Metadata,
		MappedFields: result.Fields,
		Issues:       result.Issues,
	})
	if err != nil {
		return JobStatusView{}, err
	}
	fieldsJSON, err := encodeMappedFields(result.Fields)
	if err != nil {
		return JobStatusView{}, err
	}
	issuesJSON, err := encodeFieldIssues(result.Issues)
	if err != nil {
		return JobStatusView{}, err
	}

	var reviewItem *ports.ReviewItemRow
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.jobs.MarkJobCompleted(txCtx, job.JobID, result.ConfidenceAvg, cfg.ID, completedAt); err != nil {
			return err
		}
		if err := s.jobs.UpdateJobMetadata(txCtx, job.JobID, metaJSON, completedAt); err != nil {
			return err
		}
		if result.AutoInsertable {
			return nil
		}

		created, err := s.reviews.CreateReviewItem(txCtx, ports.ReviewItemRow{
			ProcessingJobID:  job.JobID,
			ExtractedText:    input.Text,
			MappedFieldsJSON: fieldsJSON,
			IssuesJSON:       issuesJSON,
			ConfidenceAvg:    result.ConfidenceAvg,
			Status:           string(domain.ReviewPending),
			Priority:         string(result.Priority),
			AutoInsertable:   false,
			CreatedAt:        completedAt,
			UpdatedAt:        completedAt,
		})
		if err != nil {
			return err
		}
		reviewItem = &created
		return nil
	}); err != nil {
		return JobStatusView{}, err
	}

	view := jobStatusView(job)
	view.Status = domain.JobCompleted
	view.ConfidenceScore = result.ConfidenceAvg
	view.CompletedAt = completedAt

	if reviewItem != nil {
		itemView, err := reviewItemView(*reviewItem)
		if err != nil {
			return JobStatusView{}, err
		}
		view.Review = &itemView
		logging.Info(logCtx, "job routed to review queue",
			slog.Uint64("review_item_id", reviewItem.ReviewItemID),
			slog.String("priority", string(result.Priority)),
		)
		return view, nil
	}

	transfer, err := s.Transfer(ctx, TransferInput{
		ProcessingJobID: job.JobID,
		Data:            fieldValues(result.Fields),
		TransferType:    domain.TransferAuto,
	})
	if err != nil {
		// Mapping already succeeded; the transfer stage is separately
		// recoverable, so report the job view alongside the error.
		logging.Error(logCtx, "auto transfer failed", slog.Any("err", errs.Loggable(err)))
		return view, err
	}
	view.Transfer = &transfer
	view.Status = domain.JobTransferred
	return view, nil
}

func (s *Service) failJobOnConfig(ctx context.Context, jobID uint64, organizationID uint64, recordType string) error {
	reason := fmt.Sprintf("no active field configuration for organization %d record type %s", organizationID, recordType)
	now := nowUTCString()
	if err := s.jobs.MarkJobFailed(ctx, jobID, reason, now); err != nil {
		return err
	}
	logging.Warn(ctx, "job failed: missing field configuration", slog.Uint64("job_id", jobID))
	return fmt.Errorf("%w: organization %d record type %s", domain.ErrConfigNotFound, organizationID, recordType)
}

func entityCandidates(entities []EntityInput) []mapping.Candidate {
	if len(entities) == 0 {
		return nil
	}
	out := make([]mapping.Candidate, 0, len(entities))
	for _, entity := range entities {
		out = append(out, mapping.Candidate{
			Label:      entity.Label,
			Value:      entity.Value,
			Confidence: entity.Confidence,
		})
	}
	return out
}

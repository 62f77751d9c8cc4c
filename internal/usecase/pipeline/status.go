package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recordbridge/internal/bootstrap/logging"
	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/errs"
	"recordbridge/internal/ports"
)

// GetJobStatus reports a job together with its review item and latest
// transfer, looked up by the caller's source job id.
func (s *Service) GetJobStatus(ctx context.Context, sourceJobID string) (JobStatusView, error) {
	if ctx == nil {
		return JobStatusView{}, errors.New("context is required")
	}
	if s.jobs == nil {
		return JobStatusView{}, errors.New("job repository is required")
	}
	sourceJobID = strings.TrimSpace(sourceJobID)
	if sourceJobID == "" {
		return JobStatusView{}, errors.New("source job id is required")
	}

	job, err := s.jobs.GetJobBySourceID(ctx, sourceJobID)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			return JobStatusView{}, fmt.Errorf("%w: source job %s", domain.ErrJobNotFound, sourceJobID)
		}
		return JobStatusView{}, err
	}
	view := jobStatusView(job)

	if s.reviews != nil {
		item, err := s.reviews.GetReviewItemByJobID(ctx, job.JobID)
		switch {
		case err == nil:
			itemView, err := reviewItemView(item)
			if err != nil {
				return JobStatusView{}, err
			}
			view.Review = &itemView
		case errors.Is(err, ports.ErrReviewItemNotFound):
		default:
			return JobStatusView{}, err
		}
	}

	if s.transfers != nil {
		rec, found, err := s.transfers.FindLatestTransfer(ctx, sourceJobID)
		if err != nil {
			return JobStatusView{}, err
		}
		if found {
			transfer, err := transferView(rec)
			if err != nil {
				return JobStatusView{}, err
			}
			view.Transfer = &transfer
		}
	}
	return view, nil
}

// ListReviewQueue returns pending review items ordered urgent first.
func (s *Service) ListReviewQueue(ctx context.Context, limit int) ([]ReviewItemView, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if s.reviews == nil {
		return nil, errors.New("review repository is required")
	}

	rows, err := s.reviews.ListPendingReviewItems(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]ReviewItemView, 0, len(rows))
	for _, row := range rows {
		view, err := reviewItemView(row)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// ListStalledJobs reports jobs stuck in processing longer than the
// configured stall window, so an operator can resubmit or fail them.
func (s *Service) ListStalledJobs(ctx context.Context) ([]JobStatusView, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if s.jobs == nil {
		return nil, errors.New("job repository is required")
	}

	cutoff := time.Now().UTC().Add(-s.opts.StallAfter).Format(time.RFC3339Nano)
	rows, err := s.jobs.ListStalledJobs(ctx, cutoff)
	if err != nil {
		return nil, err
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "pipeline.status"))
	views := make([]JobStatusView, 0, len(rows))
	for _, row := range rows {
		logging.Warn(logCtx, "job stalled in processing",
			slog.Uint64("job_id", row.JobID),
			slog.String("source_job_id", row.SourceJobID),
			slog.String("updated_at", row.UpdatedAt),
		)
		views = append(views, jobStatusView(row))
	}
	return views, nil
}

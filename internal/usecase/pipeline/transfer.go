package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"recordbridge/internal/bootstrap/logging"
	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/errs"
	"recordbridge/internal/ports"
)

// Transfer writes a job's mapped fields into the target record table,
// exactly once per source job. When an active transfer already exists for
// the source job it is returned unchanged instead of creating a second one.
func (s *Service) Transfer(ctx context.Context, input TransferInput) (TransferView, error) {
	if ctx == nil {
		return TransferView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return TransferView{}, errs.Wrap(err, "check context")
	}
	if s.jobs == nil || s.transfers == nil || s.uow == nil {
		return TransferView{}, errors.New("pipeline service is not fully wired")
	}
	if len(input.Data) == 0 {
		return TransferView{}, errors.New("transfer data is required")
	}
	transferType := input.TransferType
	if transferType == "" {
		transferType = domain.TransferManual
	}

	job, err := s.jobs.GetJob(ctx, input.ProcessingJobID)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			return TransferView{}, fmt.Errorf("%w: id %d", domain.ErrJobNotFound, input.ProcessingJobID)
		}
		return TransferView{}, err
	}
	switch domain.JobStatus(job.Status) {
	case domain.JobCompleted, domain.JobTransferred:
	default:
		return TransferView{}, fmt.Errorf("cannot transfer job %d in status %s", job.JobID, job.Status)
	}

	targetTable, err := domain.TargetTableFor(job.RecordType)
	if err != nil {
		return TransferView{}, err
	}
	dataJSON, err := encodeStringMap(input.Data)
	if err != nil {
		return TransferView{}, err
	}

	var (
		rec     ports.TransferRecordRow
		created bool
	)
	if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		existing, found, err := s.transfers.FindActiveTransfer(txCtx, job.SourceJobID)
		if err != nil {
			return err
		}
		if found {
			rec = existing
			return nil
		}

		now := nowUTCString()
		rec, err = s.transfers.CreateTransfer(txCtx, ports.TransferRecordRow{
			SourceJobID:         job.SourceJobID,
			ReviewItemID:        input.ReviewItemID,
			TransferStatus:      string(domain.TransferPending),
			TransferType:        string(transferType),
			TargetTable:         targetTable,
			TransferredDataJSON: dataJSON,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		if err != nil {
			return err
		}
		created = true
		return nil
	}); err != nil {
		return TransferView{}, err
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "pipeline.transfer"),
		slog.Uint64("transfer_id", rec.TransferID),
		slog.String("source_job_id", job.SourceJobID),
	)
	if !created {
		logging.Info(logCtx, "transfer already exists for source job",
			slog.String("status", rec.TransferStatus))
		return transferView(rec)
	}

	rec, err = s.executeTransfer(logCtx, job, rec)
	view, viewErr := transferView(rec)
	if err != nil {
		return view, err
	}
	return view, viewErr
}

// executeTransfer drives a pending transfer to completed or failed,
// retrying transient target-store failures with exponential backoff.
// retry_count persists across process restarts, so a retried transfer
// resumes its attempt budget instead of starting over.
func (s *Service) executeTransfer(ctx context.Context, job ports.ProcessingJobRow, rec ports.TransferRecordRow) (ports.TransferRecordRow, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.opts.TransferRetryBackoff

	failures := rec.RetryCount
	for {
		now := nowUTCString()
		if err := s.transfers.MarkTransferInProgress(ctx, rec.TransferID, now); err != nil {
			return rec, err
		}
		rec.TransferStatus = string(domain.TransferInProgress)
		rec.StartedAt = stringPtr(now)

		recordID, writeErr := s.recordWriter(ctx, job.OrganizationID, rec.TargetTable, rec.TransferredDataJSON, now)
		if writeErr == nil {
			completedAt := nowUTCString()
			if err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
				if err := s.transfers.MarkTransferCompleted(txCtx, rec.TransferID, recordID, completedAt); err != nil {
					return err
				}
				return s.jobs.MarkJobTransferred(txCtx, job.JobID, completedAt)
			}); err != nil {
				return rec, err
			}
			rec.TransferStatus = string(domain.TransferCompleted)
			rec.TargetRecordID = &recordID
			rec.CompletedAt = stringPtr(completedAt)
			rec.RetryCount = failures
			logging.Info(ctx, "transfer completed",
				slog.Uint64("target_record_id", recordID),
				slog.Int("retry_count", failures),
			)
			return rec, nil
		}

		failures++
		if failures >= s.opts.TransferMaxAttempts {
			failedAt := nowUTCString()
			if err := s.transfers.MarkTransferFailed(ctx, rec.TransferID, failures, writeErr.Error(), failedAt); err != nil {
				return rec, err
			}
			rec.TransferStatus = string(domain.TransferFailed)
			rec.RetryCount = failures
			rec.ErrorMessage = stringPtr(writeErr.Error())
			logging.Error(ctx, "transfer failed, attempt budget exhausted",
				slog.Int("attempts", failures),
				slog.Any("err", errs.Loggable(writeErr)),
			)
			return rec, fmt.Errorf("%w: source job %s: %v", domain.ErrTransferWrite, rec.SourceJobID, writeErr)
		}

		retryAt := nowUTCString()
		if err := s.transfers.RecordTransferRetry(ctx, rec.TransferID, failures, retryAt); err != nil {
			return rec, err
		}
		rec.RetryCount = failures
		wait := bo.NextBackOff()
		logging.Warn(ctx, "transfer attempt failed, retrying",
			slog.Int("retry_count", failures),
			slog.Duration("backoff", wait),
			slog.Any("err", errs.Loggable(writeErr)),
		)
		select {
		case <-ctx.Done():
			return rec, errs.Wrap(ctx.Err(), "wait for transfer retry")
		case <-time.After(wait):
		}
	}
}

// CancelTransfer cancels a transfer that has not started executing. A
// cancelled transfer no longer blocks a fresh transfer for its source job.
func (s *Service) CancelTransfer(ctx context.Context, transferID uint64) (TransferView, error) {
	if ctx == nil {
		return TransferView{}, errors.New("context is required")
	}
	if s.transfers == nil {
		return TransferView{}, errors.New("transfer repository is required")
	}

	now := nowUTCString()
	won, err := s.transfers.CancelPendingTransfer(ctx, transferID, now)
	if err != nil {
		return TransferView{}, err
	}
	if !won {
		rec, getErr := s.transfers.GetTransfer(ctx, transferID)
		if getErr != nil {
			if errors.Is(getErr, ports.ErrTransferNotFound) {
				return TransferView{}, fmt.Errorf("%w: id %d", domain.ErrTransferNotFound, transferID)
			}
			return TransferView{}, getErr
		}
		return TransferView{}, fmt.Errorf("%w: transfer %d is %s", domain.ErrTransferNotPending, transferID, rec.TransferStatus)
	}

	rec, err := s.transfers.GetTransfer(ctx, transferID)
	if err != nil {
		return TransferView{}, err
	}
	logging.Info(logging.WithAttrs(ctx, slog.String("component", "pipeline.transfer")),
		"transfer cancelled", slog.Uint64("transfer_id", transferID))
	return transferView(rec)
}

// RetryTransfer puts a failed transfer back to pending and runs it again
// with its stored payload. The persisted retry count carries over, so the
// overall attempt budget still holds.
func (s *Service) RetryTransfer(ctx context.Context, transferID uint64) (TransferView, error) {
	if ctx == nil {
		return TransferView{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return TransferView{}, errs.Wrap(err, "check context")
	}
	if s.transfers == nil || s.jobs == nil {
		return TransferView{}, errors.New("pipeline service is not fully wired")
	}

	rec, err := s.transfers.GetTransfer(ctx, transferID)
	if err != nil {
		if errors.Is(err, ports.ErrTransferNotFound) {
			return TransferView{}, fmt.Errorf("%w: id %d", domain.ErrTransferNotFound, transferID)
		}
		return TransferView{}, err
	}
	if domain.TransferStatus(rec.TransferStatus) != domain.TransferFailed {
		return TransferView{}, fmt.Errorf("%w: transfer %d is %s", domain.ErrTransferNotFailed, transferID, rec.TransferStatus)
	}

	now := nowUTCString()
	won, err := s.transfers.ResetFailedTransfer(ctx, transferID, now)
	if err != nil {
		return TransferView{}, err
	}
	if !won {
		return TransferView{}, fmt.Errorf("%w: transfer %d is no longer failed", domain.ErrTransferNotFailed, transferID)
	}
	rec.TransferStatus = string(domain.TransferPending)
	rec.ErrorMessage = nil

	job, err := s.jobs.GetJobBySourceID(ctx, rec.SourceJobID)
	if err != nil {
		if errors.Is(err, ports.ErrJobNotFound) {
			return TransferView{}, fmt.Errorf("%w: source job %s", domain.ErrJobNotFound, rec.SourceJobID)
		}
		return TransferView{}, err
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "pipeline.transfer"),
		slog.Uint64("transfer_id", rec.TransferID),
		slog.String("source_job_id", rec.SourceJobID),
	)
	logging.Info(logCtx, "retrying failed transfer", slog.Int("retry_count", rec.RetryCount))

	rec, err = s.executeTransfer(logCtx, job, rec)
	view, viewErr := transferView(rec)
	if err != nil {
		return view, err
	}
	return view, viewErr
}

// BatchTransferResult summarizes a batch run: which transfers completed and
// which jobs failed to transfer.
type BatchTransferResult struct {
	Completed  []TransferView
	FailedJobs []uint64
}

// BatchTransfer picks up completed jobs that never reached the target store
// (approved reviews and auto-insertable jobs whose transfer was lost or
// cancelled) and transfers them in one pass. Failures are recorded per job
// and do not stop the batch.
func (s *Service) BatchTransfer(ctx context.Context, organizationID uint64, limit int) (BatchTransferResult, error) {
	if ctx == nil {
		return BatchTransferResult{}, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return BatchTransferResult{}, errs.Wrap(err, "check context")
	}
	if s.jobs == nil {
		return BatchTransferResult{}, errors.New("job repository is required")
	}
	if organizationID == 0 {
		return BatchTransferResult{}, errors.New("organization id is required")
	}

	jobs, err := s.jobs.ListJobsForBatchTransfer(ctx, organizationID, limit)
	if err != nil {
		return BatchTransferResult{}, err
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "pipeline.transfer"),
		slog.Uint64("organization_id", organizationID),
	)
	logging.Info(logCtx, "batch transfer started", slog.Int("candidate_jobs", len(jobs)))

	var result BatchTransferResult
	for _, job := range jobs {
		meta, err := decodeJobMetadata(job.MetadataJSON)
		if err != nil || len(meta.MappedFields) == 0 {
			logging.Warn(logCtx, "skipping job without stored mapping result",
				slog.Uint64("job_id", job.JobID))
			result.FailedJobs = append(result.FailedJobs, job.JobID)
			continue
		}

		view, err := s.Transfer(ctx, TransferInput{
			ProcessingJobID: job.JobID,
			Data:            fieldValues(meta.MappedFields),
			TransferType:    domain.TransferBatch,
		})
		if err != nil {
			logging.Error(logCtx, "batch transfer job failed",
				slog.Uint64("job_id", job.JobID),
				slog.Any("err", errs.Loggable(err)),
			)
			result.FailedJobs = append(result.FailedJobs, job.JobID)
			continue
		}
		result.Completed = append(result.Completed, view)
	}

	logging.Info(logCtx, "batch transfer finished",
		slog.Int("completed", len(result.Completed)),
		slog.Int("failed", len(result.FailedJobs)),
	)
	return result, nil
}

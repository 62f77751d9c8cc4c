package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
)

func transferredJob(t *testing.T, svc *Service, sourceJobID string) JobStatusView {
	t.Helper()
	view, err := svc.SubmitExtraction(context.Background(), highConfidenceSubmission(sourceJobID))
	if err != nil {
		t.Fatalf("submit extraction: %v", err)
	}
	return view
}

func TestTransferIsIdempotentPerSourceJob(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")

	first := transferredJob(t, svc, "ocr-idem-1")
	if first.Transfer == nil {
		t.Fatalf("expected completed auto transfer")
	}

	again, err := svc.Transfer(ctx, TransferInput{
		ProcessingJobID: first.JobID,
		Data:            map[string]string{"person_name": "Anna Meier"},
		TransferType:    domain.TransferManual,
	})
	if err != nil {
		t.Fatalf("second transfer: %v", err)
	}

	if again.TransferID != first.Transfer.TransferID {
		t.Fatalf("second transfer id = %d, want %d", again.TransferID, first.Transfer.TransferID)
	}
	if n := countRows(t, db, &model.TransferRecord{}); n != 1 {
		t.Fatalf("transfer rows = %d, want 1", n)
	}
	if n := countRows(t, db, &model.TargetRecord{}); n != 1 {
		t.Fatalf("target records = %d, want 1", n)
	}
}

func TestTransferRetriesTransientFailures(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	mustCreateConfig(t, svc, 1, "baptism")

	realWriter := svc.recordWriter
	attempts := 0
	svc.recordWriter = func(ctx context.Context, organizationID uint64, tableName string, dataJSON string, createdAt string) (uint64, error) {
		attempts++
		if attempts <= 2 {
			return 0, fmt.Errorf("target store unavailable (attempt %d)", attempts)
		}
		return realWriter(ctx, organizationID, tableName, dataJSON, createdAt)
	}

	view := transferredJob(t, svc, "ocr-retry-1")
	if view.Transfer == nil || view.Transfer.Status != domain.TransferCompleted {
		t.Fatalf("expected completed transfer after retries, got %+v", view.Transfer)
	}
	if view.Transfer.RetryCount != 2 {
		t.Fatalf("retry count = %d, want 2", view.Transfer.RetryCount)
	}
	if attempts != 3 {
		t.Fatalf("writer attempts = %d, want 3", attempts)
	}

	var job model.ProcessingJob
	if err := db.Where("source_job_id = ?", "ocr-retry-1").Take(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != string(domain.JobTransferred) {
		t.Fatalf("job status = %s, want %s", job.Status, domain.JobTransferred)
	}
}

func TestTransferFailsAfterAttemptBudget(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	mustCreateConfig(t, svc, 1, "baptism")

	svc.recordWriter = func(context.Context, uint64, string, string, string) (uint64, error) {
		return 0, errors.New("target store down")
	}

	_, err := svc.SubmitExtraction(context.Background(), highConfidenceSubmission("ocr-fail-1"))
	if !errors.Is(err, domain.ErrTransferWrite) {
		t.Fatalf("err = %v, want ErrTransferWrite", err)
	}

	var rec model.TransferRecord
	if err := db.Where("source_job_id = ?", "ocr-fail-1").Take(&rec).Error; err != nil {
		t.Fatalf("load transfer: %v", err)
	}
	if rec.TransferStatus != string(domain.TransferFailed) {
		t.Fatalf("transfer status = %s, want %s", rec.TransferStatus, domain.TransferFailed)
	}
	if rec.RetryCount != 3 {
		t.Fatalf("retry count = %d, want 3", rec.RetryCount)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage == "" {
		t.Fatalf("expected stored error message")
	}

	// The job keeps its mapping result; only the transfer failed.
	var job model.ProcessingJob
	if err := db.Where("source_job_id = ?", "ocr-fail-1").Take(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != string(domain.JobCompleted) {
		t.Fatalf("job status = %s, want %s", job.Status, domain.JobCompleted)
	}
}

func TestRetryTransferResumesAttemptBudget(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")

	realWriter := svc.recordWriter
	svc.recordWriter = func(context.Context, uint64, string, string, string) (uint64, error) {
		return 0, errors.New("target store down")
	}
	_, err := svc.SubmitExtraction(ctx, highConfidenceSubmission("ocr-retrycmd-1"))
	if !errors.Is(err, domain.ErrTransferWrite) {
		t.Fatalf("submit err = %v, want ErrTransferWrite", err)
	}

	var rec model.TransferRecord
	if err := db.Where("source_job_id = ?", "ocr-retrycmd-1").Take(&rec).Error; err != nil {
		t.Fatalf("load transfer: %v", err)
	}

	svc.recordWriter = realWriter
	view, err := svc.RetryTransfer(ctx, rec.TransferID)
	if err != nil {
		t.Fatalf("retry transfer: %v", err)
	}
	if view.Status != domain.TransferCompleted {
		t.Fatalf("status = %s, want %s", view.Status, domain.TransferCompleted)
	}
	if view.TargetRecordID == 0 {
		t.Fatalf("expected a target record id")
	}

	var job model.ProcessingJob
	if err := db.Where("source_job_id = ?", "ocr-retrycmd-1").Take(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != string(domain.JobTransferred) {
		t.Fatalf("job status = %s, want %s", job.Status, domain.JobTransferred)
	}
}

func TestRetryTransferRequiresFailedState(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")

	view := transferredJob(t, svc, "ocr-retry-comp")
	_, err := svc.RetryTransfer(ctx, view.Transfer.TransferID)
	if !errors.Is(err, domain.ErrTransferNotFailed) {
		t.Fatalf("err = %v, want ErrTransferNotFailed", err)
	}
}

func TestCancelTransferOnlyWhilePending(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")

	view := transferredJob(t, svc, "ocr-cancel-comp")
	_, err := svc.CancelTransfer(ctx, view.Transfer.TransferID)
	if !errors.Is(err, domain.ErrTransferNotPending) {
		t.Fatalf("err = %v, want ErrTransferNotPending", err)
	}

	_, err = svc.CancelTransfer(ctx, 9999)
	if !errors.Is(err, domain.ErrTransferNotFound) {
		t.Fatalf("err = %v, want ErrTransferNotFound", err)
	}
}

func TestBatchTransferPicksUpStrandedJobs(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")

	realWriter := svc.recordWriter
	svc.recordWriter = func(context.Context, uint64, string, string, string) (uint64, error) {
		return 0, errors.New("target store down")
	}
	_, err := svc.SubmitExtraction(ctx, highConfidenceSubmission("ocr-batch-1"))
	if !errors.Is(err, domain.ErrTransferWrite) {
		t.Fatalf("submit err = %v, want ErrTransferWrite", err)
	}
	svc.recordWriter = realWriter

	result, err := svc.BatchTransfer(ctx, 1, 0)
	if err != nil {
		t.Fatalf("batch transfer: %v", err)
	}
	if len(result.Completed) != 1 {
		t.Fatalf("completed = %d, want 1", len(result.Completed))
	}
	if len(result.FailedJobs) != 0 {
		t.Fatalf("failed jobs = %v, want none", result.FailedJobs)
	}
	if result.Completed[0].Type != domain.TransferBatch {
		t.Fatalf("transfer type = %s, want %s", result.Completed[0].Type, domain.TransferBatch)
	}

	var job model.ProcessingJob
	if err := db.Where("source_job_id = ?", "ocr-batch-1").Take(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != string(domain.JobTransferred) {
		t.Fatalf("job status = %s, want %s", job.Status, domain.JobTransferred)
	}

	// Nothing left to pick up on the second run.
	again, err := svc.BatchTransfer(ctx, 1, 0)
	if err != nil {
		t.Fatalf("second batch transfer: %v", err)
	}
	if len(again.Completed) != 0 || len(again.FailedJobs) != 0 {
		t.Fatalf("second run picked up %d/%d, want 0/0", len(again.Completed), len(again.FailedJobs))
	}
}

package pipeline

import (
	"context"
	"errors"
	"testing"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
)

func submitForReview(t *testing.T, svc *Service, sourceJobID string) ReviewItemView {
	t.Helper()
	view, err := svc.SubmitExtraction(context.Background(), lowConfidenceSubmission(sourceJobID))
	if err != nil {
		t.Fatalf("submit extraction: %v", err)
	}
	if view.Review == nil {
		t.Fatalf("expected submission to route to review")
	}
	return *view.Review
}

func TestClaimReviewOnlyOneReviewerWins(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-claim-race")

	first, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"})
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if first.Status != domain.ReviewInProgress || first.AssignedTo != "alice" {
		t.Fatalf("first claim got status=%s assigned=%s", first.Status, first.AssignedTo)
	}

	_, err = svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "bob"})
	if !errors.Is(err, domain.ErrReviewConflict) {
		t.Fatalf("second claim err = %v, want ErrReviewConflict", err)
	}
}

func TestClaimReviewUnknownItem(t *testing.T) {
	svc := setupService(t)

	_, err := svc.ClaimReview(context.Background(), ClaimReviewInput{ReviewItemID: 9999, ReviewerID: "alice"})
	if !errors.Is(err, domain.ErrReviewItemNotFound) {
		t.Fatalf("err = %v, want ErrReviewItemNotFound", err)
	}
}

func TestCorrectReviewRevalidatesAndUpdatesConfidence(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-correct-1")

	if _, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	corrected, err := svc.CorrectReview(ctx, CorrectReviewInput{
		ReviewItemID: item.ReviewItemID,
		ReviewerID:   "alice",
		Corrections:  map[string]string{"person_name": "Karl Huber sen."},
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}

	if corrected.Status != domain.ReviewInProgress {
		t.Fatalf("status = %s, want %s", corrected.Status, domain.ReviewInProgress)
	}
	field, ok := corrected.Fields["person_name"]
	if !ok {
		t.Fatalf("person_name missing after correction")
	}
	if field.Value != "Karl Huber sen." {
		t.Fatalf("person_name = %q", field.Value)
	}
	if field.Confidence != 100 {
		t.Fatalf("corrected confidence = %.1f, want 100", field.Confidence)
	}
	if corrected.ConfidenceAvg <= item.ConfidenceAvg {
		t.Fatalf("confidence avg should rise after correction: %.1f -> %.1f", item.ConfidenceAvg, corrected.ConfidenceAvg)
	}
}

func TestCorrectReviewInvalidCorrectionParksItem(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-correct-invalid")

	if _, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	corrected, err := svc.CorrectReview(ctx, CorrectReviewInput{
		ReviewItemID: item.ReviewItemID,
		ReviewerID:   "alice",
		Corrections:  map[string]string{"baptism_date": "17th of May 1891"},
	})
	if err != nil {
		t.Fatalf("correct: %v", err)
	}
	if corrected.Status != domain.ReviewNeedsCorrection {
		t.Fatalf("status = %s, want %s", corrected.Status, domain.ReviewNeedsCorrection)
	}

	// Approval must refuse while a required field is invalid.
	_, err = svc.ApproveReview(ctx, ApproveReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("approve err = %v, want ErrInvalidTransition", err)
	}
}

func TestCorrectReviewUnknownTargetField(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-correct-unknown")

	if _, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err := svc.CorrectReview(ctx, CorrectReviewInput{
		ReviewItemID: item.ReviewItemID,
		ReviewerID:   "alice",
		Corrections:  map[string]string{"not_a_field": "x"},
	})
	if err == nil {
		t.Fatalf("expected error for unknown target field")
	}
}

func TestApproveReviewTransfersCorrectedData(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-approve-1")

	if _, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"}); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.CorrectReview(ctx, CorrectReviewInput{
		ReviewItemID: item.ReviewItemID,
		ReviewerID:   "alice",
		Corrections:  map[string]string{"person_name": "Karl Huber"},
	}); err != nil {
		t.Fatalf("correct: %v", err)
	}

	result, err := svc.ApproveReview(ctx, ApproveReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if result.Item.Status != domain.ReviewApproved {
		t.Fatalf("item status = %s, want %s", result.Item.Status, domain.ReviewApproved)
	}
	if result.Transfer.Status != domain.TransferCompleted {
		t.Fatalf("transfer status = %s, want %s", result.Transfer.Status, domain.TransferCompleted)
	}
	if result.Transfer.Type != domain.TransferManual {
		t.Fatalf("transfer type = %s, want %s", result.Transfer.Type, domain.TransferManual)
	}
	if result.Transfer.TransferredData["person_name"] != "Karl Huber" {
		t.Fatalf("transferred person_name = %q", result.Transfer.TransferredData["person_name"])
	}
	if result.Transfer.TransferredData["baptism_date"] != "1893-02-01" {
		t.Fatalf("transferred baptism_date = %q", result.Transfer.TransferredData["baptism_date"])
	}

	var job model.ProcessingJob
	if err := db.Where("source_job_id = ?", "ocr-approve-1").Take(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != string(domain.JobTransferred) {
		t.Fatalf("job status = %s, want %s", job.Status, domain.JobTransferred)
	}
}

func TestApproveReviewRequiresClaim(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-approve-unclaimed")

	_, err := svc.ApproveReview(ctx, ApproveReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestRejectReviewFailsJobWithoutTransfer(t *testing.T) {
	svc, db := setupServiceWithDB(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-reject-1")

	if _, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	view, err := svc.RejectReview(ctx, RejectReviewInput{
		ReviewItemID: item.ReviewItemID,
		ReviewerID:   "alice",
		Reason:       "page is illegible",
	})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if view.Status != domain.ReviewRejected {
		t.Fatalf("status = %s, want %s", view.Status, domain.ReviewRejected)
	}

	var job model.ProcessingJob
	if err := db.Where("source_job_id = ?", "ocr-reject-1").Take(&job).Error; err != nil {
		t.Fatalf("load job: %v", err)
	}
	if job.Status != string(domain.JobFailed) {
		t.Fatalf("job status = %s, want %s", job.Status, domain.JobFailed)
	}
	if n := countRows(t, db, &model.TransferRecord{}); n != 0 {
		t.Fatalf("transfers = %d, want 0", n)
	}
	if n := countRows(t, db, &model.TargetRecord{}); n != 0 {
		t.Fatalf("target records = %d, want 0", n)
	}
}

func TestRejectReviewRequiresReason(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")
	item := submitForReview(t, svc, "ocr-reject-noreason")

	if _, err := svc.ClaimReview(ctx, ClaimReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"}); err != nil {
		t.Fatalf("claim: %v", err)
	}

	_, err := svc.RejectReview(ctx, RejectReviewInput{ReviewItemID: item.ReviewItemID, ReviewerID: "alice"})
	if !errors.Is(err, domain.ErrRejectReasonRequired) {
		t.Fatalf("err = %v, want ErrRejectReasonRequired", err)
	}
}

func TestListReviewQueueOrdersByPriority(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	mustCreateConfig(t, svc, 1, "baptism")

	// Urgent: huge confidence deficit.
	submitForReview(t, svc, "ocr-queue-urgent")

	// High: moderate deficit, required fields present and valid.
	medium := SubmitExtractionInput{
		OrganizationID: 1,
		RecordType:     "baptism",
		SourceJobID:    "ocr-queue-high",
		Confidence:     66,
		Entities: []EntityInput{
			{Label: "Name", Value: "Paul Weber", Confidence: 66},
			{Label: "Date of Baptism", Value: "1890-01-02", Confidence: 66},
		},
	}
	if _, err := svc.SubmitExtraction(ctx, medium); err != nil {
		t.Fatalf("submit medium: %v", err)
	}

	queue, err := svc.ListReviewQueue(ctx, 10)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}
	if len(queue) != 2 {
		t.Fatalf("queue length = %d, want 2", len(queue))
	}
	if queue[0].Priority != domain.PriorityUrgent {
		t.Fatalf("first priority = %s, want %s", queue[0].Priority, domain.PriorityUrgent)
	}
}

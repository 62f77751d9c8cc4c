package pipeline

import (
	"fmt"
	"strings"
)

// JobStatus tracks a ProcessingJob through the ledger. Stored as-is in the DB.
type JobStatus string

const (
	JobPending     JobStatus = "pending"
	JobProcessing  JobStatus = "processing"
	JobCompleted   JobStatus = "completed"
	JobFailed      JobStatus = "failed"
	JobTransferred JobStatus = "transferred"
)

// ReviewStatus is the review queue state machine position.
type ReviewStatus string

const (
	ReviewPending         ReviewStatus = "pending_review"
	ReviewInProgress      ReviewStatus = "in_review"
	ReviewApproved        ReviewStatus = "approved"
	ReviewRejected        ReviewStatus = "rejected"
	ReviewNeedsCorrection ReviewStatus = "needs_correction"
)

var reviewTransitions = map[ReviewStatus][]ReviewStatus{
	ReviewPending:         {ReviewInProgress},
	ReviewInProgress:      {ReviewApproved, ReviewRejected, ReviewNeedsCorrection},
	ReviewNeedsCorrection: {ReviewInProgress},
}

// CanReviewTransition reports whether from -> to is a legal queue move.
// Approved and rejected are terminal.
func CanReviewTransition(from ReviewStatus, to ReviewStatus) bool {
	for _, next := range reviewTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReviewPriority orders the human review queue.
type ReviewPriority string

const (
	PriorityLow    ReviewPriority = "low"
	PriorityNormal ReviewPriority = "normal"
	PriorityHigh   ReviewPriority = "high"
	PriorityUrgent ReviewPriority = "urgent"
)

// TransferStatus tracks one commit attempt into the records store.
type TransferStatus string

const (
	TransferPending    TransferStatus = "pending"
	TransferInProgress TransferStatus = "in_progress"
	TransferCompleted  TransferStatus = "completed"
	TransferFailed     TransferStatus = "failed"
	TransferCancelled  TransferStatus = "cancelled"
)

// ActiveTransferStatuses are the statuses that block a duplicate transfer
// for the same source job.
func ActiveTransferStatuses() []TransferStatus {
	return []TransferStatus{TransferPending, TransferInProgress, TransferCompleted}
}

type TransferType string

const (
	TransferAuto   TransferType = "auto"
	TransferManual TransferType = "manual"
	TransferBatch  TransferType = "batch"
)

var targetTables = map[string]string{
	"baptism":  "baptism_records",
	"marriage": "marriage_records",
	"funeral":  "funeral_records",
}

// NormalizeRecordType trims and lowercases a record type and rejects
// anything without a target table.
func NormalizeRecordType(recordType string) (string, error) {
	trimmed := strings.ToLower(strings.TrimSpace(recordType))
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrUnknownRecordType)
	}
	if _, ok := targetTables[trimmed]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, recordType)
	}
	return trimmed, nil
}

// TargetTableFor returns the records-store table for a normalized record type.
func TargetTableFor(recordType string) (string, error) {
	table, ok := targetTables[recordType]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, recordType)
	}
	return table, nil
}

package ports

import (
	"context"
	"errors"
)

var (
	ErrConfigNotFound     = errors.New("field configuration not found")
	ErrJobNotFound        = errors.New("processing job not found")
	ErrReviewItemNotFound = errors.New("review item not found")
	ErrTransferNotFound   = errors.New("transfer record not found")
)

type FieldConfigurationRow struct {
	ConfigID       uint64
	OrganizationID uint64
	RecordType     string
	Version        int
	Active         bool
	RulesJSON      string
	SettingsJSON   string
	CreatedAt      string
	UpdatedAt      string
}

type ProcessingJobRow struct {
	JobID           uint64
	OrganizationID  uint64
	SourceJobID     string
	RecordType      string
	Filename        string
	Status          string
	ConfidenceScore *float64
	ConfigID        *uint64
	StartedAt       *string
	CompletedAt     *string
	ErrorMessage    *string
	MetadataJSON    string
	CreatedAt       string
	UpdatedAt       string
}

type ReviewItemRow struct {
	ReviewItemID     uint64
	ProcessingJobID  uint64
	ExtractedText    string
	MappedFieldsJSON string
	IssuesJSON       string
	ConfidenceAvg    float64
	Status           string
	Priority         string
	AssignedTo       *string
	ReviewedBy       *string
	CorrectionJSON   string
	AutoInsertable   bool
	CreatedAt        string
	UpdatedAt        string
}

type TransferRecordRow struct {
	TransferID          uint64
	SourceJobID         string
	ReviewItemID        *uint64
	TransferStatus      string
	TransferType        string
	TargetTable         string
	TargetRecordID      *uint64
	TransferredDataJSON string
	RetryCount          int
	ErrorMessage        *string
	StartedAt           *string
	CompletedAt         *string
	CreatedAt           string
	UpdatedAt           string
}

type ConfigRepository interface {
	GetActiveConfig(ctx context.Context, organizationID uint64, recordType string) (FieldConfigurationRow, error)
	GetConfigByID(ctx context.Context, configID uint64) (FieldConfigurationRow, error)
	ListConfigVersions(ctx context.Context, organizationID uint64, recordType string) ([]FieldConfigurationRow, error)
	LatestConfigVersion(ctx context.Context, organizationID uint64, recordType string) (int, error)
	DeactivateActiveConfig(ctx context.Context, organizationID uint64, recordType string, updatedAt string) error
	CreateConfig(ctx context.Context, row FieldConfigurationRow) (FieldConfigurationRow, error)
}

type JobRepository interface {
	CreateJob(ctx context.Context, row ProcessingJobRow) (ProcessingJobRow, error)
	GetJob(ctx context.Context, jobID uint64) (ProcessingJobRow, error)
	GetJobBySourceID(ctx context.Context, sourceJobID string) (ProcessingJobRow, error)
	MarkJobProcessing(ctx context.Context, jobID uint64, startedAt string) error
	MarkJobCompleted(ctx context.Context, jobID uint64, confidence float64, configID uint64, completedAt string) error
	MarkJobFailed(ctx context.Context, jobID uint64, errorMessage string, completedAt string) error
	MarkJobTransferred(ctx context.Context, jobID uint64, updatedAt string) error
	UpdateJobConfidence(ctx context.Context, jobID uint64, confidence float64, updatedAt string) error
	UpdateJobMetadata(ctx context.Context, jobID uint64, metadataJSON string, updatedAt string) error
	// ListStalledJobs returns jobs still pending/processing whose last
	// update is older than the cutoff. For monitoring only.
	ListStalledJobs(ctx context.Context, updatedBefore string) ([]ProcessingJobRow, error)
	// ListJobsForBatchTransfer returns completed jobs of one organization
	// with no active transfer and no open review item.
	ListJobsForBatchTransfer(ctx context.Context, organizationID uint64, limit int) ([]ProcessingJobRow, error)
}

type ReviewRepository interface {
	CreateReviewItem(ctx context.Context, row ReviewItemRow) (ReviewItemRow, error)
	GetReviewItem(ctx context.Context, reviewItemID uint64) (ReviewItemRow, error)
	GetReviewItemByJobID(ctx context.Context, processingJobID uint64) (ReviewItemRow, error)
	// ClaimReviewItem moves pending_review -> in_review for exactly one
	// caller; the bool reports whether this caller won the claim.
	ClaimReviewItem(ctx context.Context, reviewItemID uint64, reviewerID string, updatedAt string) (bool, error)
	// UpdateReviewState applies updates only if the item is still in
	// fromStatus; the bool reports whether the optimistic check held.
	UpdateReviewState(ctx context.Context, reviewItemID uint64, fromStatus string, toStatus string, updates map[string]any) (bool, error)
	ListPendingReviewItems(ctx context.Context, limit int) ([]ReviewItemRow, error)
}

type TransferRepository interface {
	// FindActiveTransfer returns the non-failed, non-cancelled transfer
	// for a source job, if one exists. This is the idempotency check.
	FindActiveTransfer(ctx context.Context, sourceJobID string) (TransferRecordRow, bool, error)
	// FindLatestTransfer returns the newest transfer for the source job in
	// any status, for status reporting.
	FindLatestTransfer(ctx context.Context, sourceJobID string) (TransferRecordRow, bool, error)
	CreateTransfer(ctx context.Context, row TransferRecordRow) (TransferRecordRow, error)
	GetTransfer(ctx context.Context, transferID uint64) (TransferRecordRow, error)
	MarkTransferInProgress(ctx context.Context, transferID uint64, startedAt string) error
	MarkTransferCompleted(ctx context.Context, transferID uint64, targetRecordID uint64, completedAt string) error
	MarkTransferFailed(ctx context.Context, transferID uint64, retryCount int, errorMessage string, updatedAt string) error
	// RecordTransferRetry persists the attempt counter so retries survive
	// a process restart.
	RecordTransferRetry(ctx context.Context, transferID uint64, retryCount int, updatedAt string) error
	CancelPendingTransfer(ctx context.Context, transferID uint64, updatedAt string) (bool, error)
	ResetFailedTransfer(ctx context.Context, transferID uint64, updatedAt string) (bool, error)
}

// RecordStore is the organization's permanent records store. One insert is
// one committed record; the write is atomic per row.
type RecordStore interface {
	InsertRecord(ctx context.Context, organizationID uint64, tableName string, dataJSON string, createdAt string) (uint64, error)
}

package pipeline

import (
	"context"
	"time"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/mapping"
	"recordbridge/internal/ports"
)

// Options carry the tunables the service needs from application config.
type Options struct {
	TransferMaxAttempts  int
	TransferRetryBackoff time.Duration
	StallAfter           time.Duration
}

const (
	defaultTransferMaxAttempts  = 3
	defaultTransferRetryBackoff = 500 * time.Millisecond
	defaultStallAfter           = 15 * time.Minute
)

type Service struct {
	configs   ports.ConfigRepository
	jobs      ports.JobRepository
	reviews   ports.ReviewRepository
	transfers ports.TransferRepository
	records   ports.RecordStore
	uow       ports.UnitOfWork
	engine    *mapping.Engine
	opts      Options

	// recordWriter is the target-store write indirection; tests swap it to
	// inject transient failures.
	recordWriter func(ctx context.Context, organizationID uint64, tableName string, dataJSON string, createdAt string) (uint64, error)
}

// NewService wires the pipeline usecases with repositories and the records store.
func NewService(
	configs ports.ConfigRepository,
	jobs ports.JobRepository,
	reviews ports.ReviewRepository,
	transfers ports.TransferRepository,
	records ports.RecordStore,
	uow ports.UnitOfWork,
	opts Options,
) *Service {
	if opts.TransferMaxAttempts <= 0 {
		opts.TransferMaxAttempts = defaultTransferMaxAttempts
	}
	if opts.TransferRetryBackoff <= 0 {
		opts.TransferRetryBackoff = defaultTransferRetryBackoff
	}
	if opts.StallAfter <= 0 {
		opts.StallAfter = defaultStallAfter
	}

	s := &Service{
		configs:   configs,
		jobs:      jobs,
		reviews:   reviews,
		transfers: transfers,
		records:   records,
		uow:       uow,
		engine:    mapping.NewEngine(),
		opts:      opts,
	}
	s.recordWriter = func(ctx context.Context, organizationID uint64, tableName string, dataJSON string, createdAt string) (uint64, error) {
		return s.records.InsertRecord(ctx, organizationID, tableName, dataJSON, createdAt)
	}
	return s
}

type EntityInput struct {
	Label      string  `json:"label"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

type SubmitExtractionInput struct {
	OrganizationID uint64            `json:"organization_id"`
	RecordType     string            `json:"record_type"`
	SourceJobID    string            `json:"source_job_id"`
	Filename       string            `json:"filename"`
	Text           string            `json:"text"`
	Confidence     float64           `json:"confidence"`
	Entities       []EntityInput     `json:"entities"`
	Metadata       map[string]string `json:"metadata"`
}

type ClaimReviewInput struct {
	ReviewItemID uint64
	ReviewerID   string
}

type CorrectReviewInput struct {
	ReviewItemID uint64
	ReviewerID   string
	Corrections  map[string]string
}

type ApproveReviewInput struct {
	ReviewItemID uint64
	ReviewerID   string
}

type RejectReviewInput struct {
	ReviewItemID uint64
	ReviewerID   string
	Reason       string
}

type TransferInput struct {
	ProcessingJobID uint64
	Data            map[string]string
	TransferType    domain.TransferType
	ReviewItemID    *uint64
}

type CreateFieldConfigInput struct {
	OrganizationID uint64
	RecordType     string
	Rules          []domain.FieldRule
	Settings       domain.ConfigSettings
}

type FieldConfigView struct {
	ConfigID       uint64
	OrganizationID uint64
	RecordType     string
	Version        int
	Active         bool
	Rules          []domain.FieldRule
	Settings       domain.ConfigSettings
}

type ReviewItemView struct {
	ReviewItemID    uint64
	ProcessingJobID uint64
	Status          domain.ReviewStatus
	Priority        domain.ReviewPriority
	ConfidenceAvg   float64
	AssignedTo      string
	ReviewedBy      string
	Fields          map[string]domain.MappedField
	Issues          []domain.FieldIssue
	AutoInsertable  bool
}

type TransferView struct {
	TransferID      uint64
	SourceJobID     string
	Status          domain.TransferStatus
	Type            domain.TransferType
	TargetTable     string
	TargetRecordID  uint64
	TransferredData map[string]string
	RetryCount      int
	ErrorMessage    string
}

type JobStatusView struct {
	JobID           uint64
	SourceJobID     string
	OrganizationID  uint64
	RecordType      string
	Filename        string
	Status          domain.JobStatus
	ConfidenceScore float64
	ErrorMessage    string
	StartedAt       string
	CompletedAt     string
	Review          *ReviewItemView
	Transfer        *TransferView
}

type ApproveReviewResult struct {
	Item     ReviewItemView
	Transfer TransferView
}

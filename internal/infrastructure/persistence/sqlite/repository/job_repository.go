package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/errs"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
	"recordbridge/internal/ports"
)

type JobRepository struct {
	db *gorm.DB
}

var _ ports.JobRepository = (*JobRepository)(nil)

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return gormFromContext(ctx, r.db)
}

func (r *JobRepository) CreateJob(ctx context.Context, input ports.ProcessingJobRow) (ports.ProcessingJobRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ProcessingJobRow{}, err
	}

	metadata := input.MetadataJSON
	if strings.TrimSpace(metadata) == "" {
		metadata = "{}"
	}

	row := model.ProcessingJob{
		OrganizationID:  input.OrganizationID,
		SourceJobID:     input.SourceJobID,
		RecordType:      input.RecordType,
		Filename:        input.Filename,
		Status:          input.Status,
		ConfidenceScore: input.ConfidenceScore,
		ConfigID:        input.ConfigID,
		StartedAt:       input.StartedAt,
		CompletedAt:     input.CompletedAt,
		ErrorMessage:    input.ErrorMessage,
		MetadataJSON:    metadata,
		CreatedAt:       input.CreatedAt,
		UpdatedAt:       input.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.ProcessingJobRow{}, errs.Wrap(err, "insert processing job")
	}
	return mapJob(row), nil
}

func (r *JobRepository) GetJob(ctx context.Context, jobID uint64) (ports.ProcessingJobRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ProcessingJobRow{}, err
	}

	var row model.ProcessingJob
	if err := db.Where("job_id = ?", jobID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ProcessingJobRow{}, ports.ErrJobNotFound
		}
		return ports.ProcessingJobRow{}, errs.Wrap(err, "query job by id")
	}
	return mapJob(row), nil
}

func (r *JobRepository) GetJobBySourceID(ctx context.Context, sourceJobID string) (ports.ProcessingJobRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ProcessingJobRow{}, err
	}

	var row model.ProcessingJob
	if err := db.Where("source_job_id = ?", strings.TrimSpace(sourceJobID)).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ProcessingJobRow{}, ports.ErrJobNotFound
		}
		return ports.ProcessingJobRow{}, errs.Wrap(err, "query job by source id")
	}
	return mapJob(row), nil
}

func (r *JobRepository) MarkJobProcessing(ctx context.Context, jobID uint64, startedAt string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"status":     string(domain.JobProcessing),
		"started_at": startedAt,
		"updated_at": startedAt,
	})
}

func (r *JobRepository) MarkJobCompleted(ctx context.Context, jobID uint64, confidence float64, configID uint64, completedAt string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"status":           string(domain.JobCompleted),
		"confidence_score": confidence,
		"config_id":        configID,
		"completed_at":     completedAt,
		"error_message":    nil,
		"updated_at":       completedAt,
	})
}

func (r *JobRepository) MarkJobFailed(ctx context.Context, jobID uint64, errorMessage string, completedAt string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"status":        string(domain.JobFailed),
		"error_message": errorMessage,
		"completed_at":  completedAt,
		"updated_at":    completedAt,
	})
}

func (r *JobRepository) MarkJobTransferred(ctx context.Context, jobID uint64, updatedAt string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"status":     string(domain.JobTransferred),
		"updated_at": updatedAt,
	})
}

func (r *JobRepository) UpdateJobConfidence(ctx context.Context, jobID uint64, confidence float64, updatedAt string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"confidence_score": confidence,
		"updated_at":       updatedAt,
	})
}

func (r *JobRepository) UpdateJobMetadata(ctx context.Context, jobID uint64, metadataJSON string, updatedAt string) error {
	return r.updateJob(ctx, jobID, map[string]any{
		"metadata_json": metadataJSON,
		"updated_at":    updatedAt,
	})
}

func (r *JobRepository) updateJob(ctx context.Context, jobID uint64, updates map[string]any) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.ProcessingJob{}).
		Where("job_id = ?", jobID).
		Updates(updates).Error; err != nil {
		return errs.Wrap(err, "update processing job")
	}
	return nil
}

func (r *JobRepository) ListStalledJobs(ctx context.Context, updatedBefore string) ([]ports.ProcessingJobRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.ProcessingJob
	if err := db.
		Where("status IN ? AND updated_at < ?", []string{string(domain.JobPending), string(domain.JobProcessing)}, updatedBefore).
		Order("updated_at asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query stalled jobs")
	}

	items := make([]ports.ProcessingJobRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapJob(row))
	}
	return items, nil
}

func (r *JobRepository) ListJobsForBatchTransfer(ctx context.Context, organizationID uint64, limit int) ([]ports.ProcessingJobRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	activeTransfers := db.Session(&gorm.Session{NewDB: true}).
		Model(&model.TransferRecord{}).
		Select("source_job_id").
		Where("transfer_status IN ?", activeTransferStatusStrings())
	openReviews := db.Session(&gorm.Session{NewDB: true}).
		Model(&model.ReviewItem{}).
		Select("processing_job_id").
		Where("status NOT IN ?", []string{string(domain.ReviewApproved)})

	query := db.Model(&model.ProcessingJob{}).
		Where("organization_id = ? AND status = ?", organizationID, string(domain.JobCompleted)).
		Where("source_job_id NOT IN (?)", activeTransfers).
		Where("job_id NOT IN (?)", openReviews).
		Order("job_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ProcessingJob
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query batch transfer jobs")
	}

	items := make([]ports.ProcessingJobRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapJob(row))
	}
	return items, nil
}

func activeTransferStatusStrings() []string {
	statuses := domain.ActiveTransferStatuses()
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}

func mapJob(row model.ProcessingJob) ports.ProcessingJobRow {
	return ports.ProcessingJobRow{
		JobID:           row.JobID,
		OrganizationID:  row.OrganizationID,
		SourceJobID:     row.SourceJobID,
		RecordType:      row.RecordType,
		Filename:        row.Filename,
		Status:          row.Status,
		ConfidenceScore: row.ConfidenceScore,
		ConfigID:        row.ConfigID,
		StartedAt:       row.StartedAt,
		CompletedAt:     row.CompletedAt,
		ErrorMessage:    row.ErrorMessage,
		MetadataJSON:    row.MetadataJSON,
		CreatedAt:       row.CreatedAt,
		UpdatedAt:       row.UpdatedAt,
	}
}

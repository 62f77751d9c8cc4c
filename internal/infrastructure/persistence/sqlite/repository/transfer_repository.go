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

type TransferRepository struct {
	db *gorm.DB
}

var _ ports.TransferRepository = (*TransferRepository)(nil)

func NewTransferRepository(db *gorm.DB) *TransferRepository {
	return &TransferRepository{db: db}
}

func (r *TransferRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return gormFromContext(ctx, r.db)
}

func (r *TransferRepository) FindActiveTransfer(ctx context.Context, sourceJobID string) (ports.TransferRecordRow, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.TransferRecordRow{}, false, err
	}

	var row model.TransferRecord
	if err := db.
		Where("source_job_id = ? AND transfer_status IN ?", strings.TrimSpace(sourceJobID), activeTransferStatusStrings()).
		Order("transfer_id asc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.TransferRecordRow{}, false, nil
		}
		return ports.TransferRecordRow{}, false, errs.Wrap(err, "query active transfer")
	}
	return mapTransfer(row), true, nil
}

func (r *TransferRepository) FindLatestTransfer(ctx context.Context, sourceJobID string) (ports.TransferRecordRow, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.TransferRecordRow{}, false, err
	}

	var row model.TransferRecord
	if err := db.
		Where("source_job_id = ?", strings.TrimSpace(sourceJobID)).
		Order("transfer_id desc").
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.TransferRecordRow{}, false, nil
		}
		return ports.TransferRecordRow{}, false, errs.Wrap(err, "query latest transfer")
	}
	return mapTransfer(row), true, nil
}

func (r *TransferRepository) CreateTransfer(ctx context.Context, input ports.TransferRecordRow) (ports.TransferRecordRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.TransferRecordRow{}, err
	}

	row := model.TransferRecord{
		SourceJobID:         input.SourceJobID,
		ReviewItemID:        input.ReviewItemID,
		TransferStatus:      input.TransferStatus,
		TransferType:        input.TransferType,
		TargetTable:         input.TargetTable,
		TargetRecordID:      input.TargetRecordID,
		TransferredDataJSON: input.TransferredDataJSON,
		RetryCount:          input.RetryCount,
		ErrorMessage:        input.ErrorMessage,
		StartedAt:           input.StartedAt,
		CompletedAt:         input.CompletedAt,
		CreatedAt:           input.CreatedAt,
		UpdatedAt:           input.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.TransferRecordRow{}, errs.Wrap(err, "insert transfer record")
	}
	return mapTransfer(row), nil
}

func (r *TransferRepository) GetTransfer(ctx context.Context, transferID uint64) (ports.TransferRecordRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.TransferRecordRow{}, err
	}

	var row model.TransferRecord
	if err := db.Where("transfer_id = ?", transferID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.TransferRecordRow{}, ports.ErrTransferNotFound
		}
		return ports.TransferRecordRow{}, errs.Wrap(err, "query transfer")
	}
	return mapTransfer(row), nil
}

func (r *TransferRepository) MarkTransferInProgress(ctx context.Context, transferID uint64, startedAt string) error {
	return r.updateTransfer(ctx, transferID, map[string]any{
		"transfer_status": string(domain.TransferInProgress),
		"started_at":      startedAt,
		"updated_at":      startedAt,
	})
}

func (r *TransferRepository) MarkTransferCompleted(ctx context.Context, transferID uint64, targetRecordID uint64, completedAt string) error {
	return r.updateTransfer(ctx, transferID, map[string]any{
		"transfer_status":  string(domain.TransferCompleted),
		"target_record_id": targetRecordID,
		"completed_at":     completedAt,
		"error_message":    nil,
		"updated_at":       completedAt,
	})
}

func (r *TransferRepository) MarkTransferFailed(ctx context.Context, transferID uint64, retryCount int, errorMessage string, updatedAt string) error {
	return r.updateTransfer(ctx, transferID, map[string]any{
		"transfer_status": string(domain.TransferFailed),
		"retry_count":     retryCount,
		"error_message":   errorMessage,
		"updated_at":      updatedAt,
	})
}

func (r *TransferRepository) RecordTransferRetry(ctx context.Context, transferID uint64, retryCount int, updatedAt string) error {
	return r.updateTransfer(ctx, transferID, map[string]any{
		"retry_count": retryCount,
		"updated_at":  updatedAt,
	})
}

func (r *TransferRepository) CancelPendingTransfer(ctx context.Context, transferID uint64, updatedAt string) (bool, error) {
	return r.updateTransferOptimistic(ctx, transferID, string(domain.TransferPending), map[string]any{
		"transfer_status": string(domain.TransferCancelled),
		"updated_at":      updatedAt,
	})
}

func (r *TransferRepository) ResetFailedTransfer(ctx context.Context, transferID uint64, updatedAt string) (bool, error) {
	return r.updateTransferOptimistic(ctx, transferID, string(domain.TransferFailed), map[string]any{
		"transfer_status": string(domain.TransferPending),
		"error_message":   nil,
		"updated_at":      updatedAt,
	})
}

func (r *TransferRepository) updateTransfer(ctx context.Context, transferID uint64, updates map[string]any) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.TransferRecord{}).
		Where("transfer_id = ?", transferID).
		Updates(updates).Error; err != nil {
		return errs.Wrap(err, "update transfer record")
	}
	return nil
}

func (r *TransferRepository) updateTransferOptimistic(ctx context.Context, transferID uint64, fromStatus string, updates map[string]any) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.TransferRecord{}).
		Where("transfer_id = ? AND transfer_status = ?", transferID, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "update transfer record")
	}
	return result.RowsAffected == 1, nil
}

func mapTransfer(row model.TransferRecord) ports.TransferRecordRow {
	return ports.TransferRecordRow{
		TransferID:          row.TransferID,
		SourceJobID:         row.SourceJobID,
		ReviewItemID:        row.ReviewItemID,
		TransferStatus:      row.TransferStatus,
		TransferType:        row.TransferType,
		TargetTable:         row.TargetTable,
		TargetRecordID:      row.TargetRecordID,
		TransferredDataJSON: row.TransferredDataJSON,
		RetryCount:          row.RetryCount,
		ErrorMessage:        row.ErrorMessage,
		StartedAt:           row.StartedAt,
		CompletedAt:         row.CompletedAt,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}

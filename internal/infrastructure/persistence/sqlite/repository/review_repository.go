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

type ReviewRepository struct {
	db *gorm.DB
}

var _ ports.ReviewRepository = (*ReviewRepository)(nil)

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

func (r *ReviewRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return gormFromContext(ctx, r.db)
}

func (r *ReviewRepository) CreateReviewItem(ctx context.Context, input ports.ReviewItemRow) (ports.ReviewItemRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ReviewItemRow{}, err
	}

	issues := input.IssuesJSON
	if strings.TrimSpace(issues) == "" {
		issues = "[]"
	}
	correction := input.CorrectionJSON
	if strings.TrimSpace(correction) == "" {
		correction = "{}"
	}

	row := model.ReviewItem{
		ProcessingJobID:  input.ProcessingJobID,
		ExtractedText:    input.ExtractedText,
		MappedFieldsJSON: input.MappedFieldsJSON,
		IssuesJSON:       issues,
		ConfidenceAvg:    input.ConfidenceAvg,
		Status:           input.Status,
		Priority:         input.Priority,
		AssignedTo:       input.AssignedTo,
		ReviewedBy:       input.ReviewedBy,
		CorrectionJSON:   correction,
		AutoInsertable:   input.AutoInsertable,
		CreatedAt:        input.CreatedAt,
		UpdatedAt:        input.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.ReviewItemRow{}, errs.Wrap(err, "insert review item")
	}
	return mapReviewItem(row), nil
}

func (r *ReviewRepository) GetReviewItem(ctx context.Context, reviewItemID uint64) (ports.ReviewItemRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ReviewItemRow{}, err
	}

	var row model.ReviewItem
	if err := db.Where("review_item_id = ?", reviewItemID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ReviewItemRow{}, ports.ErrReviewItemNotFound
		}
		return ports.ReviewItemRow{}, errs.Wrap(err, "query review item")
	}
	return mapReviewItem(row), nil
}

func (r *ReviewRepository) GetReviewItemByJobID(ctx context.Context, processingJobID uint64) (ports.ReviewItemRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.ReviewItemRow{}, err
	}

	// A job can be reviewed more than once after a rejection; report the
	// latest item.
	var row model.ReviewItem
	if err := db.Where("processing_job_id = ?", processingJobID).Order("review_item_id desc").Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.ReviewItemRow{}, ports.ErrReviewItemNotFound
		}
		return ports.ReviewItemRow{}, errs.Wrap(err, "query review item by job")
	}
	return mapReviewItem(row), nil
}

// ClaimReviewItem is the optimistic claim: the WHERE clause only matches a
// still-pending item, so concurrent claims resolve to exactly one winner.
func (r *ReviewRepository) ClaimReviewItem(ctx context.Context, reviewItemID uint64, reviewerID string, updatedAt string) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	result := db.Model(&model.ReviewItem{}).
		Where("review_item_id = ? AND status = ?", reviewItemID, string(domain.ReviewPending)).
		Updates(map[string]any{
			"status":      string(domain.ReviewInProgress),
			"assigned_to": reviewerID,
			"updated_at":  updatedAt,
		})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "claim review item")
	}
	return result.RowsAffected == 1, nil
}

func (r *ReviewRepository) UpdateReviewState(ctx context.Context, reviewItemID uint64, fromStatus string, toStatus string, updates map[string]any) (bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return false, err
	}

	if updates == nil {
		updates = make(map[string]any, 1)
	}
	updates["status"] = toStatus

	result := db.Model(&model.ReviewItem{}).
		Where("review_item_id = ? AND status = ?", reviewItemID, fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "update review state")
	}
	return result.RowsAffected == 1, nil
}

func (r *ReviewRepository) ListPendingReviewItems(ctx context.Context, limit int) ([]ports.ReviewItemRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&model.ReviewItem{}).
		Where("status = ?", string(domain.ReviewPending)).
		Order("CASE priority WHEN 'urgent' THEN 0 WHEN 'high' THEN 1 WHEN 'normal' THEN 2 ELSE 3 END, review_item_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var rows []model.ReviewItem
	if err := query.Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query pending review items")
	}

	items := make([]ports.ReviewItemRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapReviewItem(row))
	}
	return items, nil
}

func mapReviewItem(row model.ReviewItem) ports.ReviewItemRow {
	return ports.ReviewItemRow{
		ReviewItemID:     row.ReviewItemID,
		ProcessingJobID:  row.ProcessingJobID,
		ExtractedText:    row.ExtractedText,
		MappedFieldsJSON: row.MappedFieldsJSON,
		IssuesJSON:       row.IssuesJSON,
		ConfidenceAvg:    row.ConfidenceAvg,
		Status:           row.Status,
		Priority:         row.Priority,
		AssignedTo:       row.AssignedTo,
		ReviewedBy:       row.ReviewedBy,
		CorrectionJSON:   row.CorrectionJSON,
		AutoInsertable:   row.AutoInsertable,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

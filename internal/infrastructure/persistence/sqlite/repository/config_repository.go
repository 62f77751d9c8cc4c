package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"recordbridge/internal/errs"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
	"recordbridge/internal/ports"
)

type ConfigRepository struct {
	db *gorm.DB
}

var _ ports.ConfigRepository = (*ConfigRepository)(nil)

func NewConfigRepository(db *gorm.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

func (r *ConfigRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	return gormFromContext(ctx, r.db)
}

func (r *ConfigRepository) GetActiveConfig(ctx context.Context, organizationID uint64, recordType string) (ports.FieldConfigurationRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.FieldConfigurationRow{}, err
	}

	var row model.FieldConfiguration
	if err := db.
		Where("organization_id = ? AND record_type = ? AND active = ?", organizationID, strings.TrimSpace(recordType), true).
		Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.FieldConfigurationRow{}, ports.ErrConfigNotFound
		}
		return ports.FieldConfigurationRow{}, errs.Wrap(err, "query active config")
	}
	return mapConfig(row), nil
}

func (r *ConfigRepository) GetConfigByID(ctx context.Context, configID uint64) (ports.FieldConfigurationRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.FieldConfigurationRow{}, err
	}

	var row model.FieldConfiguration
	if err := db.Where("config_id = ?", configID).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.FieldConfigurationRow{}, ports.ErrConfigNotFound
		}
		return ports.FieldConfigurationRow{}, errs.Wrap(err, "query config by id")
	}
	return mapConfig(row), nil
}

func (r *ConfigRepository) ListConfigVersions(ctx context.Context, organizationID uint64, recordType string) ([]ports.FieldConfigurationRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.FieldConfiguration
	if err := db.
		Where("organization_id = ? AND record_type = ?", organizationID, strings.TrimSpace(recordType)).
		Order("version asc").
		Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query config versions")
	}

	items := make([]ports.FieldConfigurationRow, 0, len(rows))
	for _, row := range rows {
		items = append(items, mapConfig(row))
	}
	return items, nil
}

func (r *ConfigRepository) LatestConfigVersion(ctx context.Context, organizationID uint64, recordType string) (int, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var latest *int
	if err := db.Model(&model.FieldConfiguration{}).
		Where("organization_id = ? AND record_type = ?", organizationID, strings.TrimSpace(recordType)).
		Select("max(version)").
		Scan(&latest).Error; err != nil {
		return 0, errs.Wrap(err, "query latest config version")
	}
	if latest == nil {
		return 0, nil
	}
	return *latest, nil
}

func (r *ConfigRepository) DeactivateActiveConfig(ctx context.Context, organizationID uint64, recordType string, updatedAt string) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	if err := db.Model(&model.FieldConfiguration{}).
		Where("organization_id = ? AND record_type = ? AND active = ?", organizationID, strings.TrimSpace(recordType), true).
		Updates(map[string]any{
			"active":     false,
			"updated_at": updatedAt,
		}).Error; err != nil {
		return errs.Wrap(err, "deactivate config")
	}
	return nil
}

func (r *ConfigRepository) CreateConfig(ctx context.Context, input ports.FieldConfigurationRow) (ports.FieldConfigurationRow, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.FieldConfigurationRow{}, err
	}
	if input.Version <= 0 {
		return ports.FieldConfigurationRow{}, fmt.Errorf("config version must be positive, got %d", input.Version)
	}

	row := model.FieldConfiguration{
		OrganizationID: input.OrganizationID,
		RecordType:     strings.TrimSpace(input.RecordType),
		Version:        input.Version,
		Active:         input.Active,
		RulesJSON:      input.RulesJSON,
		SettingsJSON:   input.SettingsJSON,
		CreatedAt:      input.CreatedAt,
		UpdatedAt:      input.UpdatedAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.FieldConfigurationRow{}, errs.Wrap(err, "insert config")
	}
	return mapConfig(row), nil
}

func mapConfig(row model.FieldConfiguration) ports.FieldConfigurationRow {
	return ports.FieldConfigurationRow{
		ConfigID:       row.ConfigID,
		OrganizationID: row.OrganizationID,
		RecordType:     row.RecordType,
		Version:        row.Version,
		Active:         row.Active,
		RulesJSON:      row.RulesJSON,
		SettingsJSON:   row.SettingsJSON,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}
}

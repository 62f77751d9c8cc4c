package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"recordbridge/internal/errs"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
	"recordbridge/internal/ports"
)

// RecordStore writes committed records into the tenant-scoped target table.
type RecordStore struct {
	db *gorm.DB
}

var _ ports.RecordStore = (*RecordStore)(nil)

func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) InsertRecord(ctx context.Context, organizationID uint64, tableName string, dataJSON string, createdAt string) (uint64, error) {
	db, err := gormFromContext(ctx, s.db)
	if err != nil {
		return 0, err
	}

	table := strings.TrimSpace(tableName)
	if table == "" {
		return 0, errors.New("table name is required")
	}
	if strings.TrimSpace(dataJSON) == "" {
		return 0, errors.New("record data is required")
	}

	row := model.TargetRecord{
		OrganizationID: organizationID,
		LogicalTable:   table,
		DataJSON:       dataJSON,
		CreatedAt:      createdAt,
	}
	if err := db.Create(&row).Error; err != nil {
		return 0, errs.Wrap(err, "insert target record")
	}
	return row.RecordID, nil
}

package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/infrastructure/persistence/sqlite/model"
	sqliterepo "recordbridge/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "recordbridge/internal/infrastructure/persistence/sqlite/uow"
)

var testDBCounter atomic.Int64

func setupServiceWithDB(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:pipeline_test_%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	if err := db.Exec("PRAGMA foreign_keys = ON;").Error; err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}

	if err := db.AutoMigrate(
		&model.FieldConfiguration{},
		&model.ProcessingJob{},
		&model.ReviewItem{},
		&model.TransferRecord{},
		&model.TargetRecord{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	svc := NewService(
		sqliterepo.NewConfigRepository(db),
		sqliterepo.NewJobRepository(db),
		sqliterepo.NewReviewRepository(db),
		sqliterepo.NewTransferRepository(db),
		sqliterepo.NewRecordStore(db),
		sqliteuow.NewUnitOfWork(db),
		Options{
			TransferMaxAttempts:  3,
			TransferRetryBackoff: time.Millisecond,
			StallAfter:           time.Minute,
		},
	)
	return svc, db
}

func setupService(t *testing.T) *Service {
	t.Helper()
	svc, _ := setupServiceWithDB(t)
	return svc
}

func baptismRules() []domain.FieldRule {
	return []domain.FieldRule{
		{OCRLabel: "Name", TargetField: "person_name", Required: true},
		{OCRLabel: "Date of Baptism", TargetField: "baptism_date", Required: true, ValidationPattern: `^\d{4}-\d{2}-\d{2}$`},
		{OCRLabel: "Father", TargetField: "father_name"},
		{OCRLabel: "Mother", TargetField: "mother_name"},
	}
}

func baptismSettings() domain.ConfigSettings {
	return domain.ConfigSettings{
		AutoInsertThreshold:        85,
		ConfidenceWarningThreshold: 60,
	}
}

func mustCreateConfig(t *testing.T, svc *Service, orgID uint64, recordType string) FieldConfigView {
	t.Helper()
	view, err := svc.CreateFieldConfig(context.Background(), CreateFieldConfigInput{
		OrganizationID: orgID,
		RecordType:     recordType,
		Rules:          baptismRules(),
		Settings:       baptismSettings(),
	})
	if err != nil {
		t.Fatalf("create config: %v", err)
	}
	return view
}

func highConfidenceSubmission(sourceJobID string) SubmitExtractionInput {
	return SubmitExtractionInput{
		OrganizationID: 1,
		RecordType:     "baptism",
		SourceJobID:    sourceJobID,
		Filename:       "register-page-12.png",
		Confidence:     90,
		Entities: []EntityInput{
			{Label: "Name", Value: "Anna Meier", Confidence: 96},
			{Label: "Date of Baptism", Value: "1891-05-17", Confidence: 92},
			{Label: "Father", Value: "Josef Meier", Confidence: 88},
			{Label: "Mother", Value: "Maria Meier", Confidence: 90},
		},
	}
}

func lowConfidenceSubmission(sourceJobID string) SubmitExtractionInput {
	return SubmitExtractionInput{
		OrganizationID: 1,
		RecordType:     "baptism",
		SourceJobID:    sourceJobID,
		Filename:       "register-page-13.png",
		Confidence:     40,
		Entities: []EntityInput{
			{Label: "Name", Value: "Karl Huber", Confidence: 45},
			{Label: "Date of Baptism", Value: "1893-02-01", Confidence: 40},
		},
	}
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return n
}

package model

type ProcessingJob struct {
	JobID           uint64   `gorm:"column:job_id;primaryKey;autoIncrement"`
	OrganizationID  uint64   `gorm:"column:organization_id;not null;index"`
	SourceJobID     string   `gorm:"column:source_job_id;type:text;not null;uniqueIndex"`
	RecordType      string   `gorm:"column:record_type;type:text;not null"`
	Filename        string   `gorm:"column:filename;type:text;not null"`
	Status          string   `gorm:"column:status;type:text;not null;index"`
	ConfidenceScore *float64 `gorm:"column:confidence_score"`
	ConfigID        *uint64  `gorm:"column:config_id"`
	StartedAt       *string  `gorm:"column:started_at;type:text"`
	CompletedAt     *string  `gorm:"column:completed_at;type:text"`
	ErrorMessage    *string  `gorm:"column:error_message;type:text"`
	MetadataJSON    string   `gorm:"column:metadata_json;type:text;not null;default:'{}'"`
	CreatedAt       string   `gorm:"column:created_at;type:text;not null"`
	UpdatedAt       string   `gorm:"column:updated_at;type:text;not null"`
}

func (ProcessingJob) TableName() string {
	return "processing_jobs"
}

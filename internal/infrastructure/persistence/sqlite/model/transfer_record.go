package model

type TransferRecord struct {
	TransferID          uint64  `gorm:"column:transfer_id;primaryKey;autoIncrement"`
	SourceJobID         string  `gorm:"column:source_job_id;type:text;not null;index"`
	ReviewItemID        *uint64 `gorm:"column:review_item_id"`
	TransferStatus      string  `gorm:"column:transfer_status;type:text;not null;index"`
	TransferType        string  `gorm:"column:transfer_type;type:text;not null"`
	TargetTable         string  `gorm:"column:target_table;type:text;not null"`
	TargetRecordID      *uint64 `gorm:"column:target_record_id"`
	TransferredDataJSON string  `gorm:"column:transferred_data_json;type:text;not null"`
	RetryCount          int     `gorm:"column:retry_count;not null;default:0"`
	ErrorMessage        *string `gorm:"column:error_message;type:text"`
	StartedAt           *string `gorm:"column:started_at;type:text"`
	CompletedAt         *string `gorm:"column:completed_at;type:text"`
	CreatedAt           string  `gorm:"column:created_at;type:text;not null"`
	UpdatedAt           string  `gorm:"column:updated_at;type:text;not null"`
}

func (TransferRecord) TableName() string {
	return "transfer_records"
}

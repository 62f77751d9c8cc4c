package model

type ReviewItem struct {
	ReviewItemID     uint64  `gorm:"column:review_item_id;primaryKey;autoIncrement"`
	ProcessingJobID  uint64  `gorm:"column:processing_job_id;not null;index"`
	ExtractedText    string  `gorm:"column:extracted_text;type:text;not null"`
	MappedFieldsJSON string  `gorm:"column:mapped_fields_json;type:text;not null"`
	IssuesJSON       string  `gorm:"column:issues_json;type:text;not null;default:'[]'"`
	ConfidenceAvg    float64 `gorm:"column:confidence_avg;not null"`
	Status           string  `gorm:"column:status;type:text;not null;index"`
	Priority         string  `gorm:"column:priority;type:text;not null"`
	AssignedTo       *string `gorm:"column:assigned_to;type:text"`
	ReviewedBy       *string `gorm:"column:reviewed_by;type:text"`
	CorrectionJSON   string  `gorm:"column:correction_json;type:text;not null;default:'{}'"`
	AutoInsertable   bool    `gorm:"column:auto_insertable;not null;default:0"`
	CreatedAt        string  `gorm:"column:created_at;type:text;not null"`
	UpdatedAt        string  `gorm:"column:updated_at;type:text;not null"`
}

func (ReviewItem) TableName() string {
	return "review_items"
}

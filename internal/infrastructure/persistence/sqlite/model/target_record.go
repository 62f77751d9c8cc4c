package model

// TargetRecord is the permanent records store realized as a tenant-scoped
// table: one row per committed record, scoped by organization and logical
// table name.
type TargetRecord struct {
	RecordID       uint64 `gorm:"column:record_id;primaryKey;autoIncrement"`
	OrganizationID uint64 `gorm:"column:organization_id;not null;index:idx_record_org_table"`
	LogicalTable   string `gorm:"column:table_name;type:text;not null;index:idx_record_org_table"`
	DataJSON       string `gorm:"column:data_json;type:text;not null"`
	CreatedAt      string `gorm:"column:created_at;type:text;not null"`
}

func (TargetRecord) TableName() string {
	return "target_records"
}

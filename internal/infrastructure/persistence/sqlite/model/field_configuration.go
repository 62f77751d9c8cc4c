package model

type FieldConfiguration struct {
	ConfigID       uint64 `gorm:"column:config_id;primaryKey;autoIncrement"`
	OrganizationID uint64 `gorm:"column:organization_id;not null;index:idx_config_org_type"`
	RecordType     string `gorm:"column:record_type;type:text;not null;index:idx_config_org_type"`
	Version        int    `gorm:"column:version;not null"`
	Active         bool   `gorm:"column:active;not null;default:0"`
	RulesJSON      string `gorm:"column:rules_json;type:text;not null"`
	SettingsJSON   string `gorm:"column:settings_json;type:text;not null"`
	CreatedAt      string `gorm:"column:created_at;type:text;not null"`
	UpdatedAt      string `gorm:"column:updated_at;type:text;not null"`
}

func (FieldConfiguration) TableName() string {
	return "field_configurations"
}

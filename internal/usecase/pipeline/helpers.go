package pipeline

import (
	"encoding/json"
	"strings"
	"time"

	domain "recordbridge/internal/domain/pipeline"
	"recordbridge/internal/errs"
	"recordbridge/internal/ports"
)

func nowUTCString() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func derefFloat(ptr *float64) float64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func derefUint(ptr *uint64) uint64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func stringPtr(s string) *string {
	return &s
}

// jobMetadata is what the pipeline keeps on the job row besides caller
// metadata: the mapping result, so a transfer can be rebuilt without an
// open review item.
type jobMetadata struct {
	Extra        map[string]string             `json:"extra,omitempty"`
	MappedFields map[string]domain.MappedField `json:"mapped_fields,omitempty"`
	Issues       []domain.FieldIssue           `json:"issues,omitempty"`
}

func encodeJobMetadata(meta jobMetadata) (string, error) {
	raw, err := json.Marshal(meta)
	if err != nil {
		return "", errs.Wrap(err, "encode job metadata")
	}
	return string(raw), nil
}

func decodeJobMetadata(raw string) (jobMetadata, error) {
	if strings.TrimSpace(raw) == "" {
		return jobMetadata{}, nil
	}
	var meta jobMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		return jobMetadata{}, errs.Wrap(err, "decode job metadata")
	}
	return meta, nil
}

func encodeMappedFields(fields map[string]domain.MappedField) (string, error) {
	raw, err := json.Marshal(fields)
	if err != nil {
		return "", errs.Wrap(err, "encode mapped fields")
	}
	return string(raw), nil
}

func decodeMappedFields(raw string) (map[string]domain.MappedField, error) {
	fields := make(map[string]domain.MappedField)
	if strings.TrimSpace(raw) == "" {
		return fields, nil
	}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, errs.Wrap(err, "decode mapped fields")
	}
	return fields, nil
}

func encodeFieldIssues(issues []domain.FieldIssue) (string, error) {
	if issues == nil {
		issues = []domain.FieldIssue{}
	}
	raw, err := json.Marshal(issues)
	if err != nil {
		return "", errs.Wrap(err, "encode field issues")
	}
	return string(raw), nil
}

func decodeFieldIssues(raw string) ([]domain.FieldIssue, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var issues []domain.FieldIssue
	if err := json.Unmarshal([]byte(raw), &issues); err != nil {
		return nil, errs.Wrap(err, "decode field issues")
	}
	return issues, nil
}

func encodeStringMap(data map[string]string) (string, error) {
	if data == nil {
		data = map[string]string{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", errs.Wrap(err, "encode data map")
	}
	return string(raw), nil
}

func decodeStringMap(raw string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, errs.Wrap(err, "decode data map")
	}
	return out, nil
}

// decodeConfigRow hydrates the domain configuration from its stored row.
func decodeConfigRow(row ports.FieldConfigurationRow) (domain.FieldConfiguration, error) {
	var rules []domain.FieldRule
	if err := json.Unmarshal([]byte(row.RulesJSON), &rules); err != nil {
		return domain.FieldConfiguration{}, errs.Wrap(err, "decode config rules")
	}
	var settings domain.ConfigSettings
	if err := json.Unmarshal([]byte(row.SettingsJSON), &settings); err != nil {
		return domain.FieldConfiguration{}, errs.Wrap(err, "decode config settings")
	}
	return domain.FieldConfiguration{
		ID:             row.ConfigID,
		OrganizationID: row.OrganizationID,
		RecordType:     row.RecordType,
		Version:        row.Version,
		Active:         row.Active,
		Rules:          rules,
		Settings:       settings,
	}, nil
}

func encodeConfig(cfg domain.FieldConfiguration) (rulesJSON string, settingsJSON string, err error) {
	rules, err := json.Marshal(cfg.Rules)
	if err != nil {
		return "", "", errs.Wrap(err, "encode config rules")
	}
	settings, err := json.Marshal(cfg.Settings)
	if err != nil {
		return "", "", errs.Wrap(err, "encode config settings")
	}
	return string(rules), string(settings), nil
}

// fieldValues flattens mapped fields into the targetField -> value form
// written to the records store.
func fieldValues(fields map[string]domain.MappedField) map[string]string {
	out := make(map[string]string, len(fields))
	for name, field := range fields {
		out[name] = field.Value
	}
	return out
}

func reviewItemView(row ports.ReviewItemRow) (ReviewItemView, error) {
	fields, err := decodeMappedFields(row.MappedFieldsJSON)
	if err != nil {
		return ReviewItemView{}, err
	}
	issues, err := decodeFieldIssues(row.IssuesJSON)
	if err != nil {
		return ReviewItemView{}, err
	}
	return ReviewItemView{
		ReviewItemID:    row.ReviewItemID,
		ProcessingJobID: row.ProcessingJobID,
		Status:          domain.ReviewStatus(row.Status),
		Priority:        domain.ReviewPriority(row.Priority),
		ConfidenceAvg:   row.ConfidenceAvg,
		AssignedTo:      derefString(row.AssignedTo),
		ReviewedBy:      derefString(row.ReviewedBy),
		Fields:          fields,
		Issues:          issues,
		AutoInsertable:  row.AutoInsertable,
	}, nil
}

func transferView(row ports.TransferRecordRow) (TransferView, error) {
	data, err := decodeStringMap(row.TransferredDataJSON)
	if err != nil {
		return TransferView{}, err
	}
	return TransferView{
		TransferID:      row.TransferID,
		SourceJobID:     row.SourceJobID,
		Status:          domain.TransferStatus(row.TransferStatus),
		Type:            domain.TransferType(row.TransferType),
		TargetTable:     row.TargetTable,
		TargetRecordID:  derefUint(row.TargetRecordID),
		TransferredData: data,
		RetryCount:      row.RetryCount,
		ErrorMessage:    derefString(row.ErrorMessage),
	}, nil
}

func jobStatusView(row ports.ProcessingJobRow) JobStatusView {
	return JobStatusView{
		JobID:           row.JobID,
		SourceJobID:     row.SourceJobID,
		OrganizationID:  row.OrganizationID,
		RecordType:      row.RecordType,
		Filename:        row.Filename,
		Status:          domain.JobStatus(row.Status),
		ConfidenceScore: derefFloat(row.ConfidenceScore),
		ErrorMessage:    derefString(row.ErrorMessage),
		StartedAt:       derefString(row.StartedAt),
		CompletedAt:     derefString(row.CompletedAt),
	}
}

func configView(row ports.FieldConfigurationRow) (FieldConfigView, error) {
	cfg, err := decodeConfigRow(row)
	if err != nil {
		return FieldConfigView{}, err
	}
	return FieldConfigView{
		ConfigID:       cfg.ID,
		OrganizationID: cfg.OrganizationID,
		RecordType:     cfg.RecordType,
		Version:        cfg.Version,
		Active:         cfg.Active,
		Rules:          cfg.Rules,
		Settings:       cfg.Settings,
	}, nil
}

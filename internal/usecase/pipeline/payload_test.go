package pipeline

import (
	"strings"
	"testing"
)

func TestParseExtractionPayload(t *testing.T) {
	raw := []byte(`{
		"organization_id": 1,
		"record_type": "baptism",
		"source_job_id": "ocr-batch-17",
		"filename": "register_1891_p14.png",
		"confidence": 91.5,
		"entities": [
			{"label": "Name", "value": "Anna Meier", "confidence": 96},
			{"label": "Date of Baptism", "value": "1891-05-17", "confidence": 92}
		],
		"metadata": {"scanner": "fi-7160"}
	}`)

	input, err := ParseExtractionPayload(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if input.SourceJobID != "ocr-batch-17" {
		t.Fatalf("source_job_id = %q", input.SourceJobID)
	}
	if len(input.Entities) != 2 || input.Entities[0].Label != "Name" {
		t.Fatalf("entities = %+v", input.Entities)
	}
	if input.Metadata["scanner"] != "fi-7160" {
		t.Fatalf("metadata = %+v", input.Metadata)
	}
}

func TestParseExtractionPayloadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"organization_id": 1,`},
		{"missing source job id", `{"organization_id": 1, "record_type": "baptism", "confidence": 90}`},
		{"missing confidence", `{"organization_id": 1, "record_type": "baptism", "source_job_id": "j1"}`},
		{"entity without value", `{
			"organization_id": 1, "record_type": "baptism", "source_job_id": "j1", "confidence": 90,
			"entities": [{"label": "Name"}]
		}`},
		{"non-string metadata", `{
			"organization_id": 1, "record_type": "baptism", "source_job_id": "j1", "confidence": 90,
			"metadata": {"page": 14}
		}`},
		{"organization id as string", `{
			"organization_id": "1", "record_type": "baptism", "source_job_id": "j1", "confidence": 90
		}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseExtractionPayload([]byte(tt.raw)); err == nil {
				t.Fatalf("payload should be rejected")
			}
		})
	}
}

func TestParseExtractionPayloadUnknownRecordTypeStillParses(t *testing.T) {
	// Record type vocabulary is a domain rule, not a payload shape rule;
	// the submit path rejects it with a job-level failure instead.
	raw := []byte(`{"organization_id": 1, "record_type": "census", "source_job_id": "j1", "confidence": 90}`)
	input, err := ParseExtractionPayload(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !strings.EqualFold(input.RecordType, "census") {
		t.Fatalf("record_type = %q", input.RecordType)
	}
}

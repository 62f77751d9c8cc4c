package pipeline

import (
	"encoding/json"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"recordbridge/internal/errs"
)

// extractionPayloadSchema is the contract for extraction payloads arriving
// over HTTP or from the drop directory. Validation runs before any database
// work, so malformed payloads never create a job.
const extractionPayloadSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["organization_id", "record_type", "source_job_id", "confidence"],
  "properties": {
    "organization_id": {"type": "integer", "minimum": 1},
    "record_type": {"type": "string", "minLength": 1},
    "source_job_id": {"type": "string", "minLength": 1},
    "filename": {"type": "string"},
    "text": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 100},
    "entities": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["label", "value"],
        "properties": {
          "label": {"type": "string", "minLength": 1},
          "value": {"type": "string"},
          "confidence": {"type": "number", "minimum": 0, "maximum": 100}
        }
      }
    },
    "metadata": {
      "type": "object",
      "additionalProperties": {"type": "string"}
    }
  }
}`

var compiledPayloadSchema = jsonschema.MustCompileString("extraction_payload.json", extractionPayloadSchema)

// ParseExtractionPayload validates raw JSON against the payload schema and
// decodes it into a submit input.
func ParseExtractionPayload(raw []byte) (SubmitExtractionInput, error) {
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return SubmitExtractionInput{}, errs.Wrap(err, "decode extraction payload")
	}
	if err := compiledPayloadSchema.Validate(generic); err != nil {
		return SubmitExtractionInput{}, errs.Wrap(err, "validate extraction payload")
	}

	var input SubmitExtractionInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return SubmitExtractionInput{}, errs.Wrap(err, "decode extraction payload")
	}
	return input, nil
}

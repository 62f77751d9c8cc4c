package pipeline

import (
	"fmt"
	"strings"
)

// FieldRule maps one recognized OCR label onto a structured target field.
type FieldRule struct {
	OCRLabel          string `json:"ocr_label"`
	TargetField       string `json:"target_field"`
	Required          bool   `json:"required"`
	ValidationPattern string `json:"validation_pattern,omitempty"`
	FormatTemplate    string `json:"format_template,omitempty"`
}

// ConfigSettings gate the routing decision for a mapped job.
// Thresholds are on the 0-100 confidence scale.
type ConfigSettings struct {
	AutoInsertThreshold        float64  `json:"auto_insert_threshold"`
	ConfidenceWarningThreshold float64  `json:"confidence_warning_threshold"`
	RequireManualReviewFields  []string `json:"require_manual_review_fields,omitempty"`
	FuzzyMaxDistance           int      `json:"fuzzy_max_distance,omitempty"`
}

// FieldConfiguration is one version of the mapping ruleset for
// (organization, record type). At most one version is active at a time;
// superseded versions stay in the store for traceability.
type FieldConfiguration struct {
	ID             uint64
	OrganizationID uint64
	RecordType     string
	Version        int
	Active         bool
	Rules          []FieldRule
	Settings       ConfigSettings
}

const defaultFuzzyMaxDistance = 2

// MaxFuzzyDistance returns the configured fuzzy match bound or the default.
func (s ConfigSettings) MaxFuzzyDistance() int {
	if s.FuzzyMaxDistance > 0 {
		return s.FuzzyMaxDistance
	}
	return defaultFuzzyMaxDistance
}

// RequiresManualReview reports whether targetField is on the always-review list.
func (s ConfigSettings) RequiresManualReview(targetField string) bool {
	for _, name := range s.RequireManualReviewFields {
		if strings.EqualFold(strings.TrimSpace(name), targetField) {
			return true
		}
	}
	return false
}

// ValidateRules rejects rule sets that cannot be applied: duplicate targets,
// missing labels on non-template rules, or thresholds out of range.
func ValidateRules(rules []FieldRule, settings ConfigSettings) error {
	if len(rules) == 0 {
		return fmt.Errorf("%w: no rules", ErrInvalidRuleSet)
	}
	if settings.AutoInsertThreshold < 0 || settings.AutoInsertThreshold > 100 {
		return fmt.Errorf("%w: auto_insert_threshold %v out of range", ErrInvalidRuleSet, settings.AutoInsertThreshold)
	}
	if settings.ConfidenceWarningThreshold < 0 || settings.ConfidenceWarningThreshold > 100 {
		return fmt.Errorf("%w: confidence_warning_threshold %v out of range", ErrInvalidRuleSet, settings.ConfidenceWarningThreshold)
	}

	seen := make(map[string]struct{}, len(rules))
	for i, rule := range rules {
		target := strings.TrimSpace(rule.TargetField)
		if target == "" {
			return fmt.Errorf("%w: rule %d has no target field", ErrInvalidRuleSet, i)
		}
		if _, ok := seen[target]; ok {
			return fmt.Errorf("%w: duplicate target field %q", ErrInvalidRuleSet, target)
		}
		seen[target] = struct{}{}

		if strings.TrimSpace(rule.OCRLabel) == "" && strings.TrimSpace(rule.FormatTemplate) == "" {
			return fmt.Errorf("%w: rule %q needs an ocr label or a format template", ErrInvalidRuleSet, target)
		}
	}
	return nil
}

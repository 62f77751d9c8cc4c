package pipeline

// MappedField is one mapping outcome surfaced to review and transfer.
// Confidence is on the 0-100 scale. Invalid values are kept, not dropped,
// so a reviewer can correct them.
type MappedField struct {
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Valid      bool    `json:"valid"`
}

// FieldIssue records a per-field mapping or validation failure.
type FieldIssue struct {
	TargetField string `json:"target_field"`
	Reason      string `json:"reason"`
	Required    bool   `json:"required"`
}

const (
	requiredFieldWeight = 2.0
	optionalFieldWeight = 1.0
)

// WeightedConfidenceAvg computes the aggregate confidence for a mapping,
// weighting required fields at twice the weight of optional fields.
// An unset required field contributes zero at full weight; unset optional
// fields are excluded.
func WeightedConfidenceAvg(fields map[string]MappedField, rules []FieldRule) float64 {
	var sum, weight float64
	for _, rule := range rules {
		field, ok := fields[rule.TargetField]
		if rule.Required {
			weight += requiredFieldWeight
			if ok {
				sum += field.Confidence * requiredFieldWeight
			}
			continue
		}
		if ok {
			sum += field.Confidence * optionalFieldWeight
			weight += optionalFieldWeight
		}
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// RoutingDecision is a pure function of three conditions: aggregate
// confidence against the auto-insert threshold, warning-listed fields
// against the warning threshold, and required-field failures.
func RoutingDecision(fields map[string]MappedField, issues []FieldIssue, confidenceAvg float64, settings ConfigSettings) bool {
	if confidenceAvg < settings.AutoInsertThreshold {
		return false
	}
	for _, issue := range issues {
		if issue.Required {
			return false
		}
	}
	for name, field := range fields {
		if settings.RequiresManualReview(name) && field.Confidence < settings.ConfidenceWarningThreshold {
			return false
		}
	}
	return true
}

// DerivePriority ranks a review item by how far the aggregate confidence
// fell below the auto-insert threshold. Required-field failures never rank
// below high.
func DerivePriority(confidenceAvg float64, settings ConfigSettings, requiredIssue bool) ReviewPriority {
	deficit := settings.AutoInsertThreshold - confidenceAvg
	switch {
	case deficit >= 35:
		return PriorityUrgent
	case deficit >= 15 || requiredIssue:
		return PriorityHigh
	case deficit > 0:
		return PriorityNormal
	default:
		// Routed only by a warning-listed field; confidence itself was fine.
		return PriorityLow
	}
}

// HasRequiredIssue reports whether any per-field issue is on a required field.
func HasRequiredIssue(issues []FieldIssue) bool {
	for _, issue := range issues {
		if issue.Required {
			return true
		}
	}
	return false
}

// RequiredFieldsValid reports whether every required rule has a set, valid value.
func RequiredFieldsValid(fields map[string]MappedField, rules []FieldRule) bool {
	for _, rule := range rules {
		if !rule.Required {
			continue
		}
		field, ok := fields[rule.TargetField]
		if !ok || !field.Valid {
			return false
		}
	}
	return true
}

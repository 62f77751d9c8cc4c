// Package mapping turns raw OCR extraction output into structured field
// values according to an organization's field configuration. The engine is
// pure: it touches no storage and carries no state besides a regexp cache.
package mapping

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/agext/levenshtein"

	domain "recordbridge/internal/domain/pipeline"
)

// Candidate is one (label, value) pair found in the OCR output, either an
// engine-reported entity or a "Label: value" line parsed from raw text.
type Candidate struct {
	Label      string
	Value      string
	Confidence float64
}

// Extraction is the OCR engine output handed to the mapping engine.
type Extraction struct {
	Text string
	// Confidence is the job-level OCR confidence (0-100), used for
	// candidates parsed out of raw text that carry no confidence of
	// their own.
	Confidence float64
	Entities   []Candidate
}

// Result is the full mapping outcome for one job.
type Result struct {
	Fields         map[string]domain.MappedField
	Issues         []domain.FieldIssue
	ConfidenceAvg  float64
	AutoInsertable bool
	Priority       domain.ReviewPriority
}

type Engine struct {
	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewEngine() *Engine {
	return &Engine{patterns: make(map[string]*regexp.Regexp)}
}

var templateVarPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// Map applies the configuration's rules in order. Rules with a format
// template compose from fields mapped by earlier rules, so rule order in the
// configuration is significant.
func (e *Engine) Map(extraction Extraction, cfg domain.FieldConfiguration) Result {
	candidates := collectCandidates(extraction)
	maxDistance := cfg.Settings.MaxFuzzyDistance()

	result := Result{
		Fields: make(map[string]domain.MappedField, len(cfg.Rules)),
	}

	for _, rule := range cfg.Rules {
		field, found := e.mapRule(rule, candidates, result.Fields, maxDistance)
		if !found {
			if rule.Required {
				result.Issues = append(result.Issues, domain.FieldIssue{
					TargetField: rule.TargetField,
					Reason:      fmt.Sprintf("label %q not found in OCR output", rule.OCRLabel),
					Required:    true,
				})
			}
			continue
		}

		field.Valid = true
		if rule.ValidationPattern != "" {
			valid, reason := e.validate(rule.ValidationPattern, field.Value)
			if !valid {
				field.Valid = false
				result.Issues = append(result.Issues, domain.FieldIssue{
					TargetField: rule.TargetField,
					Reason:      reason,
					Required:    rule.Required,
				})
			}
		}

		result.Fields[rule.TargetField] = field
	}

	result.ConfidenceAvg = domain.WeightedConfidenceAvg(result.Fields, cfg.Rules)
	result.AutoInsertable = domain.RoutingDecision(result.Fields, result.Issues, result.ConfidenceAvg, cfg.Settings)
	result.Priority = domain.DerivePriority(result.ConfidenceAvg, cfg.Settings, domain.HasRequiredIssue(result.Issues))
	return result
}

func (e *Engine) mapRule(rule domain.FieldRule, candidates []Candidate, mapped map[string]domain.MappedField, maxDistance int) (domain.MappedField, bool) {
	if strings.TrimSpace(rule.FormatTemplate) != "" {
		return composeFromTemplate(rule.FormatTemplate, mapped)
	}

	label := normalizeLabel(rule.OCRLabel)
	if label == "" {
		return domain.MappedField{}, false
	}

	// Exact normalized match wins over any fuzzy match.
	for _, candidate := range candidates {
		if normalizeLabel(candidate.Label) == label {
			return domain.MappedField{Value: candidate.Value, Confidence: candidate.Confidence}, true
		}
	}

	for _, candidate := range candidates {
		if levenshtein.Distance(normalizeLabel(candidate.Label), label, nil) <= maxDistance {
			return domain.MappedField{Value: candidate.Value, Confidence: candidate.Confidence}, true
		}
	}

	return domain.MappedField{}, false
}

// composeFromTemplate fills "{first_name} {last_name}" style templates from
// already-mapped fields. Any unresolved variable leaves the field unset.
// The composed confidence is the minimum of the component confidences.
func composeFromTemplate(template string, mapped map[string]domain.MappedField) (domain.MappedField, bool) {
	matches := templateVarPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return domain.MappedField{}, false
	}

	confidence := -1.0
	value := template
	for _, match := range matches {
		name := match[1]
		field, ok := mapped[name]
		if !ok || strings.TrimSpace(field.Value) == "" {
			return domain.MappedField{}, false
		}
		value = strings.ReplaceAll(value, match[0], field.Value)
		if confidence < 0 || field.Confidence < confidence {
			confidence = field.Confidence
		}
	}

	return domain.MappedField{Value: strings.TrimSpace(value), Confidence: confidence}, true
}

// humanConfidence is assigned to reviewer-entered values.
const humanConfidence = 100.0

// ApplyCorrections overwrites specific field values with reviewer input and
// re-runs validation only; it does not re-map from OCR output. Unknown
// target fields are rejected.
func (e *Engine) ApplyCorrections(fields map[string]domain.MappedField, corrections map[string]string, cfg domain.FieldConfiguration) (map[string]domain.MappedField, []domain.FieldIssue, error) {
	rulesByTarget := make(map[string]domain.FieldRule, len(cfg.Rules))
	for _, rule := range cfg.Rules {
		rulesByTarget[rule.TargetField] = rule
	}

	updated := make(map[string]domain.MappedField, len(fields)+len(corrections))
	for name, field := range fields {
		updated[name] = field
	}

	for target, value := range corrections {
		if _, ok := rulesByTarget[target]; !ok {
			return nil, nil, fmt.Errorf("correction targets unknown field %q", target)
		}
		updated[target] = domain.MappedField{
			Value:      strings.TrimSpace(value),
			Confidence: humanConfidence,
			Valid:      true,
		}
	}

	var issues []domain.FieldIssue
	for _, rule := range cfg.Rules {
		field, ok := updated[rule.TargetField]
		if !ok {
			if rule.Required {
				issues = append(issues, domain.FieldIssue{
					TargetField: rule.TargetField,
					Reason:      "required field has no value",
					Required:    true,
				})
			}
			continue
		}

		field.Valid = true
		if rule.ValidationPattern != "" {
			valid, reason := e.validate(rule.ValidationPattern, field.Value)
			if !valid {
				field.Valid = false
				issues = append(issues, domain.FieldIssue{
					TargetField: rule.TargetField,
					Reason:      reason,
					Required:    rule.Required,
				})
			}
		}
		if strings.TrimSpace(field.Value) == "" && rule.Required {
			field.Valid = false
			issues = append(issues, domain.FieldIssue{
				TargetField: rule.TargetField,
				Reason:      "required field is empty",
				Required:    true,
			})
		}
		updated[rule.TargetField] = field
	}

	return updated, issues, nil
}

func (e *Engine) validate(pattern string, value string) (bool, string) {
	re, err := e.compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid validation pattern: %v", err)
	}
	if !re.MatchString(value) {
		return false, fmt.Sprintf("value %q does not match pattern %q", value, pattern)
	}
	return true, ""
}

func (e *Engine) compile(pattern string) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if re, ok := e.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	e.patterns[pattern] = re
	return re, nil
}

func collectCandidates(extraction Extraction) []Candidate {
	candidates := make([]Candidate, 0, len(extraction.Entities)+8)
	for _, entity := range extraction.Entities {
		if strings.TrimSpace(entity.Label) == "" {
			continue
		}
		candidates = append(candidates, entity)
	}
	candidates = append(candidates, parseTextCandidates(extraction.Text, extraction.Confidence)...)
	return candidates
}

// parseTextCandidates pulls "Label: value" pairs out of raw OCR text.
// These carry the job-level confidence since the engine reported no
// per-token score for them.
func parseTextCandidates(text string, confidence float64) []Candidate {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var out []Candidate
	for _, line := range strings.Split(text, "\n") {
		idx := strings.Index(line, ":")
		if idx <= 0 {
			continue
		}
		label := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		if label == "" || value == "" {
			continue
		}
		out = append(out, Candidate{Label: label, Value: value, Confidence: confidence})
	}
	return out
}

func normalizeLabel(label string) string {
	trimmed := strings.ToLower(strings.TrimSpace(label))
	trimmed = strings.TrimSuffix(trimmed, ":")
	return strings.Join(strings.Fields(trimmed), " ")
}

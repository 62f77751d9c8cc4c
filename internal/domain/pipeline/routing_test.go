package pipeline

import "testing"

var routingRules = []FieldRule{
	{OCRLabel: "Name", TargetField: "person_name", Required: true},
	{OCRLabel: "Date", TargetField: "event_date", Required: true},
	{OCRLabel: "Father", TargetField: "father_name"},
	{OCRLabel: "Mother", TargetField: "mother_name"},
}

func TestWeightedConfidenceAvg(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]MappedField
		want   float64
	}{
		{
			name: "required fields weigh double",
			fields: map[string]MappedField{
				"person_name": {Confidence: 90},
				"event_date":  {Confidence: 90},
				"father_name": {Confidence: 60},
			},
			// (90*2 + 90*2 + 60*1) / 5
			want: 84,
		},
		{
			name: "missing required field drags at full weight",
			fields: map[string]MappedField{
				"person_name": {Confidence: 100},
			},
			// (100*2 + 0*2) / 4
			want: 50,
		},
		{
			name: "missing optional field is excluded",
			fields: map[string]MappedField{
				"person_name": {Confidence: 80},
				"event_date":  {Confidence: 80},
			},
			want: 80,
		},
		{
			name:   "no fields at all",
			fields: map[string]MappedField{},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WeightedConfidenceAvg(tt.fields, routingRules)
			if got != tt.want {
				t.Fatalf("WeightedConfidenceAvg = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWeightedConfidenceAvgNoRules(t *testing.T) {
	if got := WeightedConfidenceAvg(map[string]MappedField{"x": {Confidence: 50}}, nil); got != 0 {
		t.Fatalf("avg with no rules = %v, want 0", got)
	}
}

func TestRoutingDecision(t *testing.T) {
	settings := ConfigSettings{
		AutoInsertThreshold:        85,
		ConfidenceWarningThreshold: 60,
		RequireManualReviewFields:  []string{"event_date"},
	}

	fields := map[string]MappedField{
		"person_name": {Confidence: 95, Valid: true},
		"event_date":  {Confidence: 90, Valid: true},
	}

	if !RoutingDecision(fields, nil, 92, settings) {
		t.Fatalf("clean high-confidence mapping should auto-insert")
	}
	if RoutingDecision(fields, nil, 84.9, settings) {
		t.Fatalf("aggregate below threshold must route to review")
	}
	if RoutingDecision(fields, []FieldIssue{{TargetField: "event_date", Required: true}}, 92, settings) {
		t.Fatalf("required issue must route to review")
	}
	if !RoutingDecision(fields, []FieldIssue{{TargetField: "father_name"}}, 92, settings) {
		t.Fatalf("optional-field issue alone should not block auto-insert")
	}

	low := map[string]MappedField{
		"person_name": {Confidence: 95, Valid: true},
		"event_date":  {Confidence: 59, Valid: true},
	}
	if RoutingDecision(low, nil, 92, settings) {
		t.Fatalf("warning-listed field below warning threshold must route to review")
	}
}

func TestDerivePriority(t *testing.T) {
	settings := ConfigSettings{AutoInsertThreshold: 85}

	tests := []struct {
		name          string
		confidenceAvg float64
		requiredIssue bool
		want          ReviewPriority
	}{
		{"deep deficit", 42.5, false, PriorityUrgent},
		{"boundary to urgent", 50, false, PriorityUrgent},
		{"moderate deficit", 66, false, PriorityHigh},
		{"small deficit", 80, false, PriorityNormal},
		{"required issue elevates", 80, true, PriorityHigh},
		{"above threshold with required issue", 95, true, PriorityHigh},
		{"warning-listed field only", 95, false, PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DerivePriority(tt.confidenceAvg, settings, tt.requiredIssue)
			if got != tt.want {
				t.Fatalf("DerivePriority(%v, required=%v) = %s, want %s", tt.confidenceAvg, tt.requiredIssue, got, tt.want)
			}
		})
	}
}

func TestRequiredFieldsValid(t *testing.T) {
	valid := map[string]MappedField{
		"person_name": {Value: "Anna Meier", Valid: true},
		"event_date":  {Value: "1891-05-17", Valid: true},
	}
	if !RequiredFieldsValid(valid, routingRules) {
		t.Fatalf("all required fields set and valid")
	}

	invalid := map[string]MappedField{
		"person_name": {Value: "Anna Meier", Valid: true},
		"event_date":  {Value: "17.05.1891", Valid: false},
	}
	if RequiredFieldsValid(invalid, routingRules) {
		t.Fatalf("invalid required field must fail the check")
	}

	missing := map[string]MappedField{
		"person_name": {Value: "Anna Meier", Valid: true},
	}
	if RequiredFieldsValid(missing, routingRules) {
		t.Fatalf("unset required field must fail the check")
	}
}

func TestCanReviewTransition(t *testing.T) {
	allowed := []struct{ from, to ReviewStatus }{
		{ReviewPending, ReviewInProgress},
		{ReviewInProgress, ReviewApproved},
		{ReviewInProgress, ReviewRejected},
		{ReviewInProgress, ReviewNeedsCorrection},
		{ReviewNeedsCorrection, ReviewInProgress},
	}
	for _, tr := range allowed {
		if !CanReviewTransition(tr.from, tr.to) {
			t.Fatalf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	denied := []struct{ from, to ReviewStatus }{
		{ReviewPending, ReviewApproved},
		{ReviewPending, ReviewRejected},
		{ReviewApproved, ReviewInProgress},
		{ReviewRejected, ReviewInProgress},
		{ReviewNeedsCorrection, ReviewApproved},
	}
	for _, tr := range denied {
		if CanReviewTransition(tr.from, tr.to) {
			t.Fatalf("%s -> %s should be denied", tr.from, tr.to)
		}
	}
}

func TestNormalizeRecordType(t *testing.T) {
	for input, want := range map[string]string{
		"baptism":    "baptism",
		" Marriage ": "marriage",
		"FUNERAL":    "funeral",
	} {
		got, err := NormalizeRecordType(input)
		if err != nil {
			t.Fatalf("NormalizeRecordType(%q): %v", input, err)
		}
		if got != want {
			t.Fatalf("NormalizeRecordType(%q) = %q, want %q", input, got, want)
		}
	}

	for _, input := range []string{"", "census", "baptisms"} {
		if _, err := NormalizeRecordType(input); err == nil {
			t.Fatalf("NormalizeRecordType(%q) should fail", input)
		}
	}
}

func TestTargetTableFor(t *testing.T) {
	table, err := TargetTableFor("marriage")
	if err != nil {
		t.Fatalf("TargetTableFor: %v", err)
	}
	if table != "marriage_records" {
		t.Fatalf("table = %q", table)
	}
	if _, err := TargetTableFor("census"); err == nil {
		t.Fatalf("unknown record type should fail")
	}
}

func TestValidateRules(t *testing.T) {
	good := ConfigSettings{AutoInsertThreshold: 85, ConfidenceWarningThreshold: 60}

	if err := ValidateRules(routingRules, good); err != nil {
		t.Fatalf("valid rule set rejected: %v", err)
	}
	if err := ValidateRules(nil, good); err == nil {
		t.Fatalf("empty rule set should be rejected")
	}
	if err := ValidateRules(routingRules, ConfigSettings{AutoInsertThreshold: 101}); err == nil {
		t.Fatalf("threshold out of range should be rejected")
	}

	dup := []FieldRule{
		{OCRLabel: "Name", TargetField: "person_name"},
		{OCRLabel: "Full Name", TargetField: "person_name"},
	}
	if err := ValidateRules(dup, good); err == nil {
		t.Fatalf("duplicate target field should be rejected")
	}

	blank := []FieldRule{{TargetField: "person_name"}}
	if err := ValidateRules(blank, good); err == nil {
		t.Fatalf("rule without label or template should be rejected")
	}
}

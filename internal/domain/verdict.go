package domain

// Severity classifies a failed validation verdict.
type Severity string

const (
	// SeverityWarn flags a record without removing it from the success path.
	SeverityWarn Severity = "WARN"
	// SeverityReject removes the record from the success path. The record
	// still appears in the run report.
	SeverityReject Severity = "REJECT"
)

// Verdict is the outcome of one validation rule against one record.
type Verdict struct {
	RuleName string   `json:"rule_name"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message,omitempty"`
}

// Rejected reports whether any verdict fails with REJECT severity.
func Rejected(verdicts []Verdict) bool {
	for _, v := range verdicts {
		if !v.Passed && v.Severity == SeverityReject {
			return true
		}
	}
	return false
}

// FailureReasons collects rule names of failed verdicts at the given
// severity, preserving rule order.
func FailureReasons(verdicts []Verdict, severity Severity) []string {
	var reasons []string
	for _, v := range verdicts {
		if !v.Passed && v.Severity == severity {
			reasons = append(reasons, v.RuleName)
		}
	}
	return reasons
}

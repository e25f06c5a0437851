// Package rules implements the validation rule engine: pure per-record
// predicates composed into named rulesets that are checked against the
// declared input schema at configuration time.
package rules

import (
	"fmt"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Rule is a pure, side-effect-free predicate over one record. Fields lists
// every field the rule reads; the engine refuses rules that reference
// fields absent from the declared input schema.
type Rule interface {
	Name() string
	Fields() []string
	Check(rec domain.Record) (passed bool, message string)
}

// Binding attaches a severity to a rule within a ruleset. The same rule may
// be WARN in one ruleset and REJECT in another.
type Binding struct {
	Rule     Rule
	Severity domain.Severity
}

// Ruleset is a named, ordered collection of rule bindings. Evaluation runs
// every rule so a record surfaces all of its problems in one pass.
type Ruleset struct {
	name     string
	bindings []Binding
}

// NewRuleset validates the bindings against the schema and returns the
// ruleset. All issues are aggregated so a misconfiguration is reported
// completely, not one field at a time.
func NewRuleset(name string, schema domain.Schema, bindings []Binding) (*Ruleset, error) {
	issues := &domain.ConfigError{}
	if strings.TrimSpace(name) == "" {
		issues.Add("ruleset name is required")
	}
	if err := schema.Validate(); err != nil {
		issues.Add(fmt.Sprintf("ruleset %q schema: %v", name, err))
	}

	seen := make(map[string]struct{}, len(bindings))
	for i, binding := range bindings {
		if binding.Rule == nil {
			issues.Add(fmt.Sprintf("ruleset %q binding[%d] has no rule", name, i))
			continue
		}
		ruleName := strings.TrimSpace(binding.Rule.Name())
		if ruleName == "" {
			issues.Add(fmt.Sprintf("ruleset %q binding[%d] rule name is required", name, i))
			continue
		}
		if _, dup := seen[ruleName]; dup {
			issues.Add(fmt.Sprintf("ruleset %q rule %q bound twice", name, ruleName))
		}
		seen[ruleName] = struct{}{}

		switch binding.Severity {
		case domain.SeverityWarn, domain.SeverityReject:
		default:
			issues.Add(fmt.Sprintf("ruleset %q rule %q severity unsupported: %q", name, ruleName, binding.Severity))
		}

		for _, field := range binding.Rule.Fields() {
			if !schema.Has(field) {
				issues.Add(fmt.Sprintf("ruleset %q rule %q reads undeclared field %q", name, ruleName, field))
			}
		}
	}

	if err := issues.OrNil(); err != nil {
		return nil, err
	}
	return &Ruleset{name: name, bindings: bindings}, nil
}

func (rs *Ruleset) Name() string {
	return rs.name
}

// Evaluate runs every bound rule against the record, never short-circuiting
// on the first failure.
func (rs *Ruleset) Evaluate(rec domain.Record) []domain.Verdict {
	verdicts := make([]domain.Verdict, 0, len(rs.bindings))
	for _, binding := range rs.bindings {
		passed, message := binding.Rule.Check(rec)
		verdict := domain.Verdict{
			RuleName: binding.Rule.Name(),
			Passed:   passed,
			Severity: binding.Severity,
		}
		if !passed {
			verdict.Message = message
		}
		verdicts = append(verdicts, verdict)
	}
	return verdicts
}

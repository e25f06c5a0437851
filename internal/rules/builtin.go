package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// RequiredFields passes when every listed field is present and non-null.
func RequiredFields(name string, fields ...string) Rule {
	return &requiredFieldsRule{name: name, fields: fields}
}

type requiredFieldsRule struct {
	name   string
	fields []string
}

func (r *requiredFieldsRule) Name() string     { return r.name }
func (r *requiredFieldsRule) Fields() []string { return append([]string(nil), r.fields...) }

func (r *requiredFieldsRule) Check(rec domain.Record) (bool, string) {
	var missing []string
	for _, field := range r.fields {
		v, ok := rec.Get(field)
		if !ok || v.IsNull() {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return false, fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return true, ""
}

// NumberInRange passes when the field is a number within [min, max]. A nil
// bound is open. Absent or null fields fail.
func NumberInRange(name, field string, min, max *float64) Rule {
	return &numberInRangeRule{name: name, field: field, min: min, max: max}
}

type numberInRangeRule struct {
	name, field string
	min, max    *float64
}

func (r *numberInRangeRule) Name() string     { return r.name }
func (r *numberInRangeRule) Fields() []string { return []string{r.field} }

func (r *numberInRangeRule) Check(rec domain.Record) (bool, string) {
	v, ok := rec.NumberField(r.field)
	if !ok {
		return false, fmt.Sprintf("%s is not a number", r.field)
	}
	if r.min != nil && v < *r.min {
		return false, fmt.Sprintf("%s=%v below minimum %v", r.field, v, *r.min)
	}
	if r.max != nil && v > *r.max {
		return false, fmt.Sprintf("%s=%v above maximum %v", r.field, v, *r.max)
	}
	return true, ""
}

// NonNegativeNumber passes when the field is a number >= 0.
func NonNegativeNumber(name, field string) Rule {
	zero := 0.0
	return NumberInRange(name, field, &zero, nil)
}

// StringIn passes when the field is a string in the allowed set, compared
// case-insensitively.
func StringIn(name, field string, allowed ...string) Rule {
	set := make(map[string]struct{}, len(allowed))
	for _, item := range allowed {
		set[strings.ToLower(strings.TrimSpace(item))] = struct{}{}
	}
	return &stringInRule{name: name, field: field, allowed: set}
}

type stringInRule struct {
	name, field string
	allowed     map[string]struct{}
}

func (r *stringInRule) Name() string     { return r.name }
func (r *stringInRule) Fields() []string { return []string{r.field} }

func (r *stringInRule) Check(rec domain.Record) (bool, string) {
	v, ok := rec.StringField(r.field)
	if !ok {
		return false, fmt.Sprintf("%s is not a string", r.field)
	}
	if _, member := r.allowed[strings.ToLower(strings.TrimSpace(v))]; !member {
		return false, fmt.Sprintf("%s=%q not in allowed set", r.field, v)
	}
	return true, ""
}

// TimestampNotInFuture passes when the field holds a timestamp at or before
// the injected clock. The clock is fixed per run so evaluation stays
// deterministic within a batch.
func TimestampNotInFuture(name, field string, now func() time.Time) Rule {
	if now == nil {
		now = time.Now
	}
	return &notInFutureRule{name: name, field: field, now: now}
}

type notInFutureRule struct {
	name, field string
	now         func() time.Time
}

func (r *notInFutureRule) Name() string     { return r.name }
func (r *notInFutureRule) Fields() []string { return []string{r.field} }

func (r *notInFutureRule) Check(rec domain.Record) (bool, string) {
	v, ok := rec.Get(r.field)
	if !ok {
		return false, fmt.Sprintf("%s is missing", r.field)
	}
	ts, ok := v.AsTimestamp()
	if !ok {
		return false, fmt.Sprintf("%s is not a timestamp", r.field)
	}
	if ts.After(r.now()) {
		return false, fmt.Sprintf("%s=%s is in the future", r.field, ts.Format(time.RFC3339))
	}
	return true, ""
}

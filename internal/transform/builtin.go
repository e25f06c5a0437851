package transform

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// TrimStrings trims surrounding whitespace on every string field present in
// the record.
func TrimStrings(name string) Step {
	return &trimStringsStep{name: name}
}

type trimStringsStep struct {
	name string
}

func (s *trimStringsStep) Name() string       { return s.name }
func (s *trimStringsStep) Requires() []string { return nil }
func (s *trimStringsStep) Produces() []string { return nil }

func (s *trimStringsStep) Apply(rec domain.Record) (domain.Record, bool, error) {
	out := rec
	for _, field := range rec.FieldNames() {
		if v, ok := rec.StringField(field); ok {
			trimmed := strings.TrimSpace(v)
			if trimmed != v {
				out = out.Set(field, domain.String(trimmed))
			}
		}
	}
	return out, true, nil
}

// NormalizeCity lowercases the city field and collapses interior runs of
// whitespace so "Tel  Aviv " and "tel aviv" compare equal downstream.
func NormalizeCity(name, field string) Step {
	return &normalizeCityStep{name: name, field: field}
}

type normalizeCityStep struct {
	name, field string
}

func (s *normalizeCityStep) Name() string       { return s.name }
func (s *normalizeCityStep) Requires() []string { return []string{s.field} }
func (s *normalizeCityStep) Produces() []string { return nil }

func (s *normalizeCityStep) Apply(rec domain.Record) (domain.Record, bool, error) {
	v, ok := rec.StringField(s.field)
	if !ok {
		return rec, true, nil
	}
	normalized := strings.ToLower(strings.Join(strings.Fields(v), " "))
	if normalized == v {
		return rec, true, nil
	}
	return rec.Set(s.field, domain.String(normalized)), true, nil
}

// CoerceNumber parses a string-typed field into a number in place. A value
// that cannot be parsed is a transform failure, not a silent null.
func CoerceNumber(name, field string) Step {
	return &coerceNumberStep{name: name, field: field}
}

type coerceNumberStep struct {
	name, field string
}

func (s *coerceNumberStep) Name() string       { return s.name }
func (s *coerceNumberStep) Requires() []string { return []string{s.field} }
func (s *coerceNumberStep) Produces() []string { return nil }

func (s *coerceNumberStep) Apply(rec domain.Record) (domain.Record, bool, error) {
	v, ok := rec.Get(s.field)
	if !ok || v.IsNull() {
		return rec, true, nil
	}
	if _, already := v.AsNumber(); already {
		return rec, true, nil
	}
	raw, ok := v.AsString()
	if !ok {
		return domain.Record{}, false, fmt.Errorf("field %s is not coercible to number", s.field)
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("field %s: %w", s.field, err)
	}
	return rec.Set(s.field, domain.Number(parsed)), true, nil
}

// AnnualizeRent derives an annual rent field from a monthly one. A missing
// or null monthly rent yields a null annual rent rather than an error.
func AnnualizeRent(name, monthlyField, annualField string) Step {
	return &annualizeRentStep{name: name, monthly: monthlyField, annual: annualField}
}

type annualizeRentStep struct {
	name, monthly, annual string
}

func (s *annualizeRentStep) Name() string       { return s.name }
func (s *annualizeRentStep) Requires() []string { return []string{s.monthly} }
func (s *annualizeRentStep) Produces() []string { return []string{s.annual} }

func (s *annualizeRentStep) Apply(rec domain.Record) (domain.Record, bool, error) {
	monthly, ok := rec.NumberField(s.monthly)
	if !ok {
		return rec.Set(s.annual, domain.Null()), true, nil
	}
	return rec.Set(s.annual, domain.Number(monthly*12)), true, nil
}

// DropMissing filters out records where any of the listed fields is absent
// or null. Filtering is an ok=false outcome, never an error.
func DropMissing(name string, fields ...string) Step {
	return &dropMissingStep{name: name, fields: fields}
}

type dropMissingStep struct {
	name   string
	fields []string
}

func (s *dropMissingStep) Name() string       { return s.name }
func (s *dropMissingStep) Requires() []string { return append([]string(nil), s.fields...) }
func (s *dropMissingStep) Produces() []string { return nil }

func (s *dropMissingStep) Apply(rec domain.Record) (domain.Record, bool, error) {
	for _, field := range s.fields {
		v, ok := rec.Get(field)
		if !ok || v.IsNull() {
			return domain.Record{}, false, nil
		}
	}
	return rec, true, nil
}

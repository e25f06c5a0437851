package domain

import (
	"errors"
	"strings"
	"time"
)

// Record is one property observation flowing through the pipeline. The
// source id and ingestion timestamp are assigned once at creation; field
// mutation always yields a new Record so lineage stays auditable.
type Record struct {
	sourceID   string
	ingestedAt time.Time
	names      []string
	values     map[string]Value
}

func NewRecord(sourceID string, ingestedAt time.Time) (Record, error) {
	if strings.TrimSpace(sourceID) == "" {
		return Record{}, errors.New("record source id is required")
	}
	if ingestedAt.IsZero() {
		return Record{}, errors.New("record ingested_at is required")
	}
	return Record{
		sourceID:   sourceID,
		ingestedAt: ingestedAt.UTC(),
		values:     map[string]Value{},
	}, nil
}

func (r Record) SourceID() string {
	return r.sourceID
}

func (r Record) IngestedAt() time.Time {
	return r.ingestedAt
}

func (r Record) Len() int {
	return len(r.names)
}

func (r Record) Has(name string) bool {
	_, ok := r.values[name]
	return ok
}

// Get returns the field value and whether the field is present. A present
// field may still hold a null Value.
func (r Record) Get(name string) (Value, bool) {
	v, ok := r.values[name]
	return v, ok
}

// FieldNames returns the field names in insertion order.
func (r Record) FieldNames() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Set returns a copy of the Record with the named field set. The receiver
// is never modified.
func (r Record) Set(name string, value Value) Record {
	next := r.clone()
	if _, exists := next.values[name]; !exists {
		next.names = append(next.names, name)
	}
	next.values[name] = value
	return next
}

// Without returns a copy of the Record with the named field removed.
func (r Record) Without(name string) Record {
	if _, exists := r.values[name]; !exists {
		return r
	}
	next := r.clone()
	delete(next.values, name)
	names := make([]string, 0, len(next.names)-1)
	for _, n := range next.names {
		if n != name {
			names = append(names, n)
		}
	}
	next.names = names
	return next
}

// NumberField returns the numeric value of a field, treating absent, null
// and non-numeric fields as not available.
func (r Record) NumberField(name string) (float64, bool) {
	v, ok := r.values[name]
	if !ok {
		return 0, false
	}
	return v.AsNumber()
}

// StringField returns the string value of a field if present and non-null.
func (r Record) StringField(name string) (string, bool) {
	v, ok := r.values[name]
	if !ok {
		return "", false
	}
	return v.AsString()
}

func (r Record) clone() Record {
	names := make([]string, len(r.names))
	copy(names, r.names)
	values := make(map[string]Value, len(r.values)+1)
	for k, v := range r.values {
		values[k] = v
	}
	return Record{
		sourceID:   r.sourceID,
		ingestedAt: r.ingestedAt,
		names:      names,
		values:     values,
	}
}

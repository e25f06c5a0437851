// Package ingest turns raw CSV and NDJSON batches into typed records.
//
// Readers apply the declared schema at the ingestion boundary: every
// field is parsed according to its declared type, and fields the schema
// does not declare are either dropped or, in strict mode, rejected.
package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Options control how raw rows are mapped onto records.
type Options struct {
	// SourceIDField names the raw column carrying the upstream identifier.
	// When empty, or when the column is blank for a row, a UUID is assigned.
	SourceIDField string

	// StrictSchema rejects rows carrying fields the schema does not declare.
	// Otherwise undeclared fields are silently dropped.
	StrictSchema bool

	// Now stamps ingested_at; defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now().UTC()
}

// RowError reports a row that could not be converted into a record.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// parseValue converts a raw string cell into a typed value per the declared
// field type. Empty cells become null for every type.
func parseValue(ft domain.FieldType, raw string) (domain.Value, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Null(), nil
	}
	switch ft {
	case domain.FieldNumber:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return domain.Value{}, fmt.Errorf("parse number %q: %w", raw, err)
		}
		return domain.Number(f), nil
	case domain.FieldString:
		return domain.String(raw), nil
	case domain.FieldTimestamp:
		ts, err := parseTimestamp(raw)
		if err != nil {
			return domain.Value{}, err
		}
		return domain.Timestamp(ts), nil
	default:
		return domain.Value{}, fmt.Errorf("unknown field type %q", ft)
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimestamp(raw string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", raw)
}

// buildRecord maps one raw row (field name → raw cell) onto a record,
// honoring the declared schema and options. Field order follows the
// schema declaration so records ingest deterministically.
func buildRecord(schema domain.Schema, opts Options, row map[string]string) (domain.Record, error) {
	if opts.StrictSchema {
		for name := range row {
			if name == opts.SourceIDField {
				continue
			}
			if !schema.Has(name) {
				return domain.Record{}, fmt.Errorf("undeclared field %q", name)
			}
		}
	}

	sourceID := ""
	if opts.SourceIDField != "" {
		sourceID = strings.TrimSpace(row[opts.SourceIDField])
	}
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	rec, err := domain.NewRecord(sourceID, opts.now())
	if err != nil {
		return domain.Record{}, err
	}

	for _, name := range schema.FieldNames() {
		raw, ok := row[name]
		if !ok {
			rec = rec.Set(name, domain.Null())
			continue
		}
		ft, _ := schema.TypeOf(name)
		val, err := parseValue(ft, raw)
		if err != nil {
			return domain.Record{}, fmt.Errorf("field %q: %w", name, err)
		}
		rec = rec.Set(name, val)
	}
	return rec, nil
}

// Package sink defines the persistence boundary the batch runner writes
// through, plus the reference adapters (Postgres, object store). Writes are
// idempotent per record source id so a crashed run can be re-delivered
// without duplicating rows.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// OutputRecord pairs a validated, transformed record with its computed
// index results.
type OutputRecord struct {
	Record  domain.Record
	Indices []domain.IndexResult
}

// Sink persists one validated batch. Any error is systemic: the batch
// runner transitions to FAILED and the whole batch is retryable because
// Write is idempotent keyed by source id.
type Sink interface {
	Write(ctx context.Context, batch []OutputRecord) error
}

// RejectedRecord is a record excluded from the success path together with
// the reasons, destined for quarantine when configured.
type RejectedRecord struct {
	Record  domain.Record
	Reasons []string
}

// Quarantine holds rejected records for manual review. No retry semantics
// are implied; quarantined records are written once per run and left there.
type Quarantine interface {
	Quarantine(ctx context.Context, runID string, rejected []RejectedRecord) error
}

// EncodeOutput serializes an output record with its field values in
// insertion order, so the same record always produces the same payload.
func EncodeOutput(out OutputRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"source_id":`)
	writeJSON(&buf, out.Record.SourceID())
	buf.WriteString(`,"ingested_at":`)
	writeJSON(&buf, out.Record.IngestedAt().Format(time.RFC3339Nano))
	buf.WriteString(`,"fields":`)
	if err := encodeFields(&buf, out.Record); err != nil {
		return nil, err
	}
	buf.WriteString(`,"indices":`)
	indices := out.Indices
	if indices == nil {
		indices = []domain.IndexResult{}
	}
	raw, err := json.Marshal(indices)
	if err != nil {
		return nil, err
	}
	buf.Write(raw)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeFields(buf *bytes.Buffer, rec domain.Record) error {
	buf.WriteByte('{')
	for i, name := range rec.FieldNames() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSON(buf, name)
		buf.WriteByte(':')
		value, _ := rec.Get(name)
		raw, err := value.MarshalJSON()
		if err != nil {
			return fmt.Errorf("encode field %s: %w", name, err)
		}
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return nil
}

func writeJSON(buf *bytes.Buffer, v any) {
	raw, _ := json.Marshal(v)
	buf.Write(raw)
}

// Memory is an in-process sink keyed by source id. It backs tests and local
// runs without external services; repeated delivery of the same record
// overwrites in place, matching the idempotency contract.
type Memory struct {
	mu          sync.Mutex
	rows        map[string][]byte
	quarantined map[string][]RejectedRecord
	failWrites  error
}

func NewMemory() *Memory {
	return &Memory{
		rows:        map[string][]byte{},
		quarantined: map[string][]RejectedRecord{},
	}
}

// FailWrites makes every subsequent Write return err. Used to exercise the
// runner's FAILED transition.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = err
}

func (m *Memory) Write(ctx context.Context, batch []OutputRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	for _, out := range batch {
		payload, err := EncodeOutput(out)
		if err != nil {
			return err
		}
		m.rows[out.Record.SourceID()] = payload
	}
	return nil
}

func (m *Memory) Quarantine(ctx context.Context, runID string, rejected []RejectedRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites != nil {
		return m.failWrites
	}
	m.quarantined[runID] = append([]RejectedRecord(nil), rejected...)
	return nil
}

// Len reports the number of distinct rows held.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// Row returns the stored payload for a source id.
func (m *Memory) Row(sourceID string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.rows[sourceID]
	return payload, ok
}

// Quarantined returns the rejected records held for a run.
func (m *Memory) Quarantined(runID string) []RejectedRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quarantined[runID]
}

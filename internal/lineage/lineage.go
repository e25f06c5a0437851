// Package lineage records an auditable trail of pipeline runs: which run
// produced which batch, and the full run report, hashed for integrity.
package lineage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Event links one pipeline run to the batch it consumed or produced.
type Event struct {
	OccurredAt time.Time
	RunID      string
	Pipeline   string
	Predicate  string
	ObjectType string
	ObjectID   string
	Metadata   any
}

const (
	PredicateConsumed = "consumed"
	PredicateProduced = "produced"
)

// Querier is the narrow database surface lineage writes need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (e Event) Validate() error {
	if e.OccurredAt.IsZero() {
		return errors.New("OccurredAt is required")
	}
	if strings.TrimSpace(e.RunID) == "" {
		return errors.New("RunID is required")
	}
	if strings.TrimSpace(e.Pipeline) == "" {
		return errors.New("Pipeline is required")
	}
	switch strings.TrimSpace(e.Predicate) {
	case PredicateConsumed, PredicateProduced:
	default:
		return fmt.Errorf("Predicate unsupported: %q", e.Predicate)
	}
	if strings.TrimSpace(e.ObjectType) == "" {
		return errors.New("ObjectType is required")
	}
	if strings.TrimSpace(e.ObjectID) == "" {
		return errors.New("ObjectID is required")
	}
	return nil
}

const createLineageTable = `CREATE TABLE IF NOT EXISTS pipeline_lineage (
	event_id         BIGSERIAL PRIMARY KEY,
	occurred_at      TIMESTAMPTZ NOT NULL,
	run_id           TEXT NOT NULL,
	pipeline         TEXT NOT NULL,
	predicate        TEXT NOT NULL,
	object_type      TEXT NOT NULL,
	object_id        TEXT NOT NULL,
	metadata         JSONB NOT NULL,
	integrity_sha256 TEXT NOT NULL
)`

const createReportsTable = `CREATE TABLE IF NOT EXISTS run_reports (
	run_id     TEXT PRIMARY KEY,
	pipeline   TEXT NOT NULL,
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the lineage and report tables if missing.
func EnsureSchema(ctx context.Context, q Querier) error {
	if _, err := q.ExecContext(ctx, createLineageTable); err != nil {
		return fmt.Errorf("ensure pipeline_lineage: %w", err)
	}
	if _, err := q.ExecContext(ctx, createReportsTable); err != nil {
		return fmt.Errorf("ensure run_reports: %w", err)
	}
	return nil
}

// Insert appends one lineage event and returns its id.
func Insert(ctx context.Context, q Querier, event Event) (int64, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := event.Validate(); err != nil {
		return 0, err
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, fmt.Errorf("marshal metadata: %w", err)
	}

	integrity, err := ComputeIntegritySHA256(event, metadataJSON)
	if err != nil {
		return 0, err
	}

	var id int64
	err = q.QueryRowContext(
		ctx,
		`INSERT INTO pipeline_lineage (
			occurred_at,
			run_id,
			pipeline,
			predicate,
			object_type,
			object_id,
			metadata,
			integrity_sha256
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING event_id`,
		event.OccurredAt.UTC(),
		strings.TrimSpace(event.RunID),
		strings.TrimSpace(event.Pipeline),
		strings.TrimSpace(event.Predicate),
		strings.TrimSpace(event.ObjectType),
		strings.TrimSpace(event.ObjectID),
		metadataJSON,
		integrity,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lineage event: %w", err)
	}
	return id, nil
}

// SaveReport persists the finalized run report. Keyed by run id; saving the
// same report twice is a no-op.
func SaveReport(ctx context.Context, q Querier, report domain.RunReport) error {
	if strings.TrimSpace(report.RunID) == "" {
		return errors.New("report run id is required")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	_, err = q.ExecContext(
		ctx,
		`INSERT INTO run_reports (run_id, pipeline, report)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO NOTHING`,
		report.RunID,
		report.Pipeline,
		payload,
	)
	if err != nil {
		return fmt.Errorf("insert run report: %w", err)
	}
	return nil
}

// ComputeIntegritySHA256 hashes the canonical event payload so tampering
// with stored lineage is detectable.
func ComputeIntegritySHA256(event Event, metadataJSON []byte) (string, error) {
	type integrityInput struct {
		OccurredAt time.Time       `json:"occurred_at"`
		RunID      string          `json:"run_id"`
		Pipeline   string          `json:"pipeline"`
		Predicate  string          `json:"predicate"`
		ObjectType string          `json:"object_type"`
		ObjectID   string          `json:"object_id"`
		Metadata   json.RawMessage `json:"metadata"`
	}

	in := integrityInput{
		OccurredAt: event.OccurredAt.UTC(),
		RunID:      strings.TrimSpace(event.RunID),
		Pipeline:   strings.TrimSpace(event.Pipeline),
		Predicate:  strings.TrimSpace(event.Predicate),
		ObjectType: strings.TrimSpace(event.ObjectType),
		ObjectID:   strings.TrimSpace(event.ObjectID),
		Metadata:   metadataJSON,
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("marshal integrity payload: %w", err)
	}
	digest := sha256.Sum256(payload)
	return hex.EncodeToString(digest[:]), nil
}

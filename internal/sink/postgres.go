package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// DB is the narrow database surface the Postgres sink needs.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Postgres writes validated records to a relational warehouse table. The
// upsert is keyed by source_id, so re-delivery after a crash updates the
// existing row instead of inserting a duplicate.
type Postgres struct {
	db DB
}

func NewPostgres(db DB) (*Postgres, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	return &Postgres{db: db}, nil
}

const createListingsTable = `CREATE TABLE IF NOT EXISTS listings_clean (
	source_id   TEXT PRIMARY KEY,
	ingested_at TIMESTAMPTZ NOT NULL,
	fields      JSONB NOT NULL,
	indices     JSONB NOT NULL,
	written_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertListing = `INSERT INTO listings_clean (source_id, ingested_at, fields, indices, written_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (source_id) DO UPDATE SET
	fields = EXCLUDED.fields,
	indices = EXCLUDED.indices,
	written_at = EXCLUDED.written_at`

// EnsureSchema creates the warehouse table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createListingsTable); err != nil {
		return fmt.Errorf("ensure listings_clean: %w", err)
	}
	return nil
}

func (p *Postgres) Write(ctx context.Context, batch []OutputRecord) error {
	for _, out := range batch {
		fields, indices, err := encodeColumns(out)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(
			ctx,
			upsertListing,
			out.Record.SourceID(),
			out.Record.IngestedAt(),
			fields,
			indices,
		); err != nil {
			return fmt.Errorf("upsert record %s: %w", out.Record.SourceID(), err)
		}
	}
	return nil
}

func encodeColumns(out OutputRecord) ([]byte, []byte, error) {
	fieldValues := make(map[string]domain.Value, out.Record.Len())
	for _, name := range out.Record.FieldNames() {
		v, _ := out.Record.Get(name)
		fieldValues[name] = v
	}
	fields, err := json.Marshal(fieldValues)
	if err != nil {
		return nil, nil, fmt.Errorf("encode fields for %s: %w", out.Record.SourceID(), err)
	}
	indexResults := out.Indices
	if indexResults == nil {
		indexResults = []domain.IndexResult{}
	}
	indices, err := json.Marshal(indexResults)
	if err != nil {
		return nil, nil, fmt.Errorf("encode indices for %s: %w", out.Record.SourceID(), err)
	}
	return fields, indices, nil
}

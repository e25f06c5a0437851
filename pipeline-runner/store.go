package main

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
	"github.com/parcelflow-labs/parcelflow-go/internal/lineage"
)

// runStore is the persistence surface the API needs around a run: the
// lineage trail, the finalized report, and report lookup.
type runStore interface {
	SaveLineage(ctx context.Context, event lineage.Event) error
	SaveReport(ctx context.Context, report domain.RunReport) error
	LoadReport(ctx context.Context, runID string) (json.RawMessage, error)
}

type postgresRunStore struct {
	db *sql.DB
}

func newPostgresRunStore(db *sql.DB) *postgresRunStore {
	return &postgresRunStore{db: db}
}

func (s *postgresRunStore) SaveLineage(ctx context.Context, event lineage.Event) error {
	_, err := lineage.Insert(ctx, s.db, event)
	return err
}

func (s *postgresRunStore) SaveReport(ctx context.Context, report domain.RunReport) error {
	return lineage.SaveReport(ctx, s.db, report)
}

func (s *postgresRunStore) LoadReport(ctx context.Context, runID string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(
		ctx,
		`SELECT report FROM run_reports WHERE run_id = $1`,
		runID,
	).Scan(&raw)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

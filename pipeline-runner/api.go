package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
	"github.com/parcelflow-labs/parcelflow-go/internal/ingest"
	"github.com/parcelflow-labs/parcelflow-go/internal/lineage"
	"github.com/parcelflow-labs/parcelflow-go/internal/runner"
)

// fetchFunc retrieves a raw batch object from the data lake by key.
type fetchFunc func(ctx context.Context, key string) (io.ReadCloser, error)

type pipelineAPI struct {
	logger    *slog.Logger
	runner    *runner.Runner
	store     runStore
	fetch     fetchFunc
	pipelines map[string]pipelineEntry
	lakeName  string
}

func newPipelineAPI(logger *slog.Logger, r *runner.Runner, store runStore, fetch fetchFunc, pipelines map[string]pipelineEntry, lakeName string) *pipelineAPI {
	return &pipelineAPI{
		logger:    logger,
		runner:    r,
		store:     store,
		fetch:     fetch,
		pipelines: pipelines,
		lakeName:  lakeName,
	}
}

func (api *pipelineAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/runs", api.handleCreateRun)
	mux.HandleFunc("GET /v1/runs/{run_id}/report", api.handleGetReport)
}

type createRunRequest struct {
	Pipeline string         `json:"pipeline"`
	RunID    string         `json:"run_id,omitempty"`
	Input    createRunInput `json:"input"`
}

type createRunInput struct {
	Key           string `json:"key"`
	Format        string `json:"format,omitempty"`
	SourceIDField string `json:"source_id_field,omitempty"`
}

func (api *pipelineAPI) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	name := strings.TrimSpace(req.Pipeline)
	if name == "" {
		api.writeError(w, r, http.StatusBadRequest, "pipeline_required")
		return
	}
	entry, ok := api.pipelines[name]
	if !ok {
		api.writeError(w, r, http.StatusNotFound, "pipeline_not_found")
		return
	}

	key := strings.TrimSpace(req.Input.Key)
	if key == "" {
		api.writeError(w, r, http.StatusBadRequest, "input_key_required")
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Input.Format))
	if format == "" {
		format = "ndjson"
	}
	if format != "ndjson" && format != "csv" {
		api.writeError(w, r, http.StatusBadRequest, "unsupported_format")
		return
	}

	body, err := api.fetch(r.Context(), key)
	if err != nil {
		api.logger.Error("batch fetch failed", "key", key, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "batch_fetch_failed")
		return
	}
	defer func() { _ = body.Close() }()

	opts := ingest.Options{
		SourceIDField: strings.TrimSpace(req.Input.SourceIDField),
		StrictSchema:  entry.Definition.Options.StrictSchema,
	}
	var batch []domain.Record
	switch format {
	case "csv":
		batch, err = ingest.ReadCSV(body, entry.Definition.Input, opts)
	default:
		batch, err = ingest.ReadNDJSON(body, entry.Definition.Input, opts)
	}
	if err != nil {
		api.logger.Error("batch ingest failed", "key", key, "error", err)
		api.writeError(w, r, http.StatusBadRequest, "invalid_batch")
		return
	}

	runID := strings.TrimSpace(req.RunID)
	if runID == "" {
		runID = uuid.NewString()
	}

	now := time.Now().UTC()
	err = api.store.SaveLineage(r.Context(), lineage.Event{
		OccurredAt: now,
		RunID:      runID,
		Pipeline:   name,
		Predicate:  lineage.PredicateConsumed,
		ObjectType: "batch_object",
		ObjectID:   api.lakeName + "/" + key,
		Metadata:   map[string]any{"format": format, "records": len(batch)},
	})
	if err != nil {
		api.logger.Error("lineage write failed", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	report, runErr := api.runner.Run(r.Context(), runID, entry.Resolved, batch)

	if err := api.store.SaveReport(r.Context(), report); err != nil {
		api.logger.Error("report save failed", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	if runErr != nil {
		api.writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":      "run_failed",
			"run_id":     runID,
			"request_id": r.Header.Get("X-Request-Id"),
			"report":     report,
		})
		return
	}

	err = api.store.SaveLineage(r.Context(), lineage.Event{
		OccurredAt: time.Now().UTC(),
		RunID:      runID,
		Pipeline:   name,
		Predicate:  lineage.PredicateProduced,
		ObjectType: "cleaned_batch",
		ObjectID:   runID,
		Metadata:   map[string]any{"total_out": report.TotalOut, "rejected": len(report.Rejected)},
	})
	if err != nil {
		api.logger.Error("lineage write failed", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Location", "/v1/runs/"+runID+"/report")
	api.writeJSON(w, http.StatusCreated, report)
}

func (api *pipelineAPI) handleGetReport(w http.ResponseWriter, r *http.Request) {
	runID := strings.TrimSpace(r.PathValue("run_id"))
	if runID == "" {
		api.writeError(w, r, http.StatusBadRequest, "run_id_required")
		return
	}

	raw, err := api.store.LoadReport(r.Context(), runID)
	if errors.Is(err, sql.ErrNoRows) {
		api.writeError(w, r, http.StatusNotFound, "run_not_found")
		return
	}
	if err != nil {
		api.logger.Error("report load failed", "run_id", runID, "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, 4<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("multiple JSON values")
	}
	return nil
}

func (api *pipelineAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *pipelineAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
	"github.com/parcelflow-labs/parcelflow-go/internal/lineage"
	"github.com/parcelflow-labs/parcelflow-go/internal/runner"
	"github.com/parcelflow-labs/parcelflow-go/internal/sink"
)

type memoryRunStore struct {
	events  []lineage.Event
	reports map[string]json.RawMessage
}

func newMemoryRunStore() *memoryRunStore {
	return &memoryRunStore{reports: map[string]json.RawMessage{}}
}

func (s *memoryRunStore) SaveLineage(ctx context.Context, event lineage.Event) error {
	s.events = append(s.events, event)
	return nil
}

func (s *memoryRunStore) SaveReport(ctx context.Context, report domain.RunReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return err
	}
	s.reports[report.RunID] = raw
	return nil
}

func (s *memoryRunStore) LoadReport(ctx context.Context, runID string) (json.RawMessage, error) {
	raw, ok := s.reports[runID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return raw, nil
}

func testPipelines(t *testing.T) map[string]pipelineEntry {
	t.Helper()
	steps, err := defaultStepCatalog()
	if err != nil {
		t.Fatalf("defaultStepCatalog: %v", err)
	}
	ruleCatalog, err := defaultRuleCatalog()
	if err != nil {
		t.Fatalf("defaultRuleCatalog: %v", err)
	}
	registry, err := defaultIndexRegistry()
	if err != nil {
		t.Fatalf("defaultIndexRegistry: %v", err)
	}
	pipelines, err := loadDefinitions("../definitions", steps, ruleCatalog, registry)
	if err != nil {
		t.Fatalf("loadDefinitions: %v", err)
	}
	return pipelines
}

func testAPI(t *testing.T, store runStore, fetch fetchFunc) (*pipelineAPI, *sink.Memory, *sink.Memory) {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	outputs := sink.NewMemory()
	quarantine := sink.NewMemory()
	batchRunner, err := runner.New(logger, outputs, runner.WithQuarantine(quarantine))
	if err != nil {
		t.Fatalf("runner.New: %v", err)
	}
	api := newPipelineAPI(logger, batchRunner, store, fetch, testPipelines(t), "data-lake")
	return api, outputs, quarantine
}

func noFetch(ctx context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader("")), nil
}

func postRun(t *testing.T, api *pipelineAPI, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	api.register(mux)
	req := httptest.NewRequest(http.MethodPost, "http://example.test/v1/runs", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestLoadDefinitions_ShippedDefinitionsResolve(t *testing.T) {
	pipelines := testPipelines(t)
	if _, ok := pipelines["listings_clean"]; !ok {
		t.Fatalf("expected listings_clean pipeline, got %v", len(pipelines))
	}
}

func TestCreateRun_InvalidJSON(t *testing.T) {
	api, _, _ := testAPI(t, newMemoryRunStore(), noFetch)
	rec := postRun(t, api, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestCreateRun_UnknownPipeline(t *testing.T) {
	api, _, _ := testAPI(t, newMemoryRunStore(), noFetch)
	rec := postRun(t, api, `{"pipeline":"nope","input":{"key":"batches/x.ndjson"}}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "pipeline_not_found") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestCreateRun_RequiresInputKey(t *testing.T) {
	api, _, _ := testAPI(t, newMemoryRunStore(), noFetch)
	rec := postRun(t, api, `{"pipeline":"listings_clean","input":{"key":""}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
}

func TestCreateRun_UnsupportedFormat(t *testing.T) {
	api, _, _ := testAPI(t, newMemoryRunStore(), noFetch)
	rec := postRun(t, api, `{"pipeline":"listings_clean","input":{"key":"batches/x.parquet","format":"parquet"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported_format") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestCreateRun_EndToEnd(t *testing.T) {
	batch := `{"id":"s1","city":" Tel Aviv ","price":1000000,"monthly_rent":4000,"listed_at":"2024-02-10"}` + "\n" +
		`{"id":"s2","city":"haifa","price":-5,"monthly_rent":100,"listed_at":"2024-02-10"}` + "\n"
	fetch := func(ctx context.Context, key string) (io.ReadCloser, error) {
		if key != "batches/feb.ndjson" {
			t.Fatalf("fetch key=%q", key)
		}
		return io.NopCloser(strings.NewReader(batch)), nil
	}
	store := newMemoryRunStore()
	api, outputs, quarantine := testAPI(t, store, fetch)

	rec := postRun(t, api, `{"pipeline":"listings_clean","run_id":"run-42","input":{"key":"batches/feb.ndjson","source_id_field":"id"}}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status=%d, want 201: %s", rec.Code, rec.Body.String())
	}
	if loc := rec.Header().Get("Location"); loc != "/v1/runs/run-42/report" {
		t.Fatalf("Location=%q", loc)
	}

	var report domain.RunReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.TotalIn != 2 || report.TotalOut != 1 || len(report.Rejected) != 1 {
		t.Fatalf("report in=%d out=%d rejected=%d, want 2/1/1", report.TotalIn, report.TotalOut, len(report.Rejected))
	}
	if report.Rejected[0].SourceID != "s2" {
		t.Fatalf("rejected=%q, want s2", report.Rejected[0].SourceID)
	}

	row, ok := outputs.Row("s1")
	if !ok {
		t.Fatalf("s1 missing from sink")
	}
	if !strings.Contains(string(row), "tel aviv") {
		t.Fatalf("expected normalized city in sink row: %s", row)
	}
	if got := len(quarantine.Quarantined("run-42")); got != 1 {
		t.Fatalf("quarantined=%d, want 1", got)
	}

	if _, ok := store.reports["run-42"]; !ok {
		t.Fatalf("report not saved")
	}
	if len(store.events) != 2 {
		t.Fatalf("lineage events=%d, want consumed+produced", len(store.events))
	}
	if store.events[0].Predicate != lineage.PredicateConsumed || store.events[1].Predicate != lineage.PredicateProduced {
		t.Fatalf("predicates=%q,%q", store.events[0].Predicate, store.events[1].Predicate)
	}
	if store.events[0].ObjectID != "data-lake/batches/feb.ndjson" {
		t.Fatalf("consumed object=%q", store.events[0].ObjectID)
	}
}

func TestCreateRun_BadBatchRows(t *testing.T) {
	fetch := func(ctx context.Context, key string) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader("{broken\n")), nil
	}
	api, _, _ := testAPI(t, newMemoryRunStore(), fetch)
	rec := postRun(t, api, `{"pipeline":"listings_clean","input":{"key":"batches/bad.ndjson"}}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "invalid_batch") {
		t.Fatalf("body=%s", rec.Body.String())
	}
}

func TestGetReport(t *testing.T) {
	store := newMemoryRunStore()
	store.reports["run-7"] = json.RawMessage(`{"run_id":"run-7"}`)
	api, _, _ := testAPI(t, store, noFetch)

	mux := http.NewServeMux()
	api.register(mux)

	req := httptest.NewRequest(http.MethodGet, "http://example.test/v1/runs/run-7/report", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "run-7") {
		t.Fatalf("body=%s", rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "http://example.test/v1/runs/missing/report", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rec.Code)
	}
}

func TestDecodeJSON_DisallowUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader(`{"pipeline":"a","extra":1}`))
	var dst createRunRequest
	if err := decodeJSON(req, &dst); err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeJSON_RejectsExtraValue(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "http://example.test/", strings.NewReader(`{"pipeline":"a"} {"pipeline":"b"}`))
	var dst createRunRequest
	if err := decodeJSON(req, &dst); err == nil {
		t.Fatalf("expected error")
	}
}

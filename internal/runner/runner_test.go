package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/parcelflow-labs/parcelflow-go/internal/config"
	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
	"github.com/parcelflow-labs/parcelflow-go/internal/index"
	"github.com/parcelflow-labs/parcelflow-go/internal/rules"
	"github.com/parcelflow-labs/parcelflow-go/internal/sink"
	"github.com/parcelflow-labs/parcelflow-go/internal/transform"
)

const testDefinition = `
schema: parcelflow.pipeline.definition.v1
name: listings_cleaning
input:
  fields:
    - {name: price, type: number}
    - {name: monthly_rent, type: number}
    - {name: city, type: string}
steps:
  - trim_strings
  - normalize_city
  - annualize_rent
ruleset:
  - {rule: price_non_negative, severity: REJECT}
  - {rule: city_known, severity: WARN}
indexes:
  - {name: price_to_rent, version: 1}
  - {name: rental_yield, version: 1}
options:
  parallelism: %d
  on_reject: %s
`

func resolvedConfig(t *testing.T, parallelism int, onReject string) config.Resolved {
	t.Helper()
	steps := transform.NewCatalog()
	for _, step := range []transform.Step{
		transform.TrimStrings("trim_strings"),
		transform.NormalizeCity("normalize_city", "city"),
		transform.AnnualizeRent("annualize_rent", "monthly_rent", "annual_rent"),
	} {
		if err := steps.Register(step); err != nil {
			t.Fatalf("register step: %v", err)
		}
	}
	ruleCatalog := rules.NewCatalog()
	for _, rule := range []rules.Rule{
		rules.NonNegativeNumber("price_non_negative", "price"),
		rules.StringIn("city_known", "city", "tel aviv", "haifa", "jerusalem"),
	} {
		if err := ruleCatalog.Register(rule); err != nil {
			t.Fatalf("register rule: %v", err)
		}
	}
	registry, err := index.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}

	def, err := config.Parse([]byte(fmt.Sprintf(testDefinition, parallelism, onReject)))
	if err != nil {
		t.Fatalf("parse definition: %v", err)
	}
	resolved, err := def.Resolve(steps, ruleCatalog, registry)
	if err != nil {
		t.Fatalf("resolve definition: %v", err)
	}
	return resolved
}

func listing(t *testing.T, sourceID string, price, monthlyRent float64, city string) domain.Record {
	t.Helper()
	rec, err := domain.NewRecord(sourceID, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("NewRecord: %v", err)
	}
	return rec.
		Set("price", domain.Number(price)).
		Set("monthly_rent", domain.Number(monthlyRent)).
		Set("city", domain.String(city))
}

func testBatch(t *testing.T) []domain.Record {
	return []domain.Record{
		listing(t, "s1", 1_200_000, 5_000, " Tel  Aviv "),
		listing(t, "s2", -10, 4_000, "haifa"),       // rejected: negative price
		listing(t, "s3", 950_000, 3_500, "eilat"),   // warned: unknown city
		listing(t, "s4", 800_000, 0, "jerusalem"),   // p2r uncomputable (zero rent)
		listing(t, "s5", 2_000_000, 7_200, "haifa"), // clean
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Unix(1700000000, 0).UTC() }
}

func TestRun_EndToEnd(t *testing.T) {
	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := r.Run(context.Background(), "run-1", resolvedConfig(t, 1, "drop"), testBatch(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.State != string(StateDone) {
		t.Fatalf("state=%q, want DONE", report.State)
	}
	if report.TotalIn != 5 || report.TotalOut != 4 {
		t.Fatalf("totals in=%d out=%d, want 5/4", report.TotalIn, report.TotalOut)
	}
	if !report.Conserved() {
		t.Fatal("total_in must equal total_out + rejected")
	}
	if len(report.Rejected) != 1 || report.Rejected[0].SourceID != "s2" {
		t.Fatalf("rejected=%v, want s2 only", report.Rejected)
	}
	if report.Rejected[0].Reasons[0] != "price_non_negative" {
		t.Fatalf("rejection reasons=%v", report.Rejected[0].Reasons)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].SourceID != "s3" {
		t.Fatalf("warnings=%v, want s3 only", report.Warnings)
	}
	// s4 has zero rent, so price_to_rent covers 3 of 4 survivors while
	// rental_yield covers all 4.
	if report.IndexCoverage["price_to_rent@v1"] != 3 {
		t.Fatalf("p2r coverage=%d, want 3", report.IndexCoverage["price_to_rent@v1"])
	}
	if report.IndexCoverage["rental_yield@v1"] != 4 {
		t.Fatalf("yield coverage=%d, want 4", report.IndexCoverage["rental_yield@v1"])
	}

	if mem.Len() != 4 {
		t.Fatalf("sink rows=%d, want 4", mem.Len())
	}
	if _, ok := mem.Row("s2"); ok {
		t.Fatal("rejected record must never reach the sink")
	}

	// Cleaned city landed in the sink, not the raw one.
	row, _ := mem.Row("s1")
	if !strings.Contains(string(row), `"city":"tel aviv"`) {
		t.Fatalf("s1 row not normalized: %s", row)
	}
	// Uncomputable index persisted as null, not zero.
	row, _ = mem.Row("s4")
	if !strings.Contains(string(row), `"index_name":"price_to_rent","version":1,"value":null`) {
		t.Fatalf("s4 row should carry a null p2r: %s", row)
	}
}

func TestRun_DeterministicAcrossParallelism(t *testing.T) {
	var reports []domain.RunReport
	for _, parallelism := range []int{1, 4} {
		mem := sink.NewMemory()
		r, err := New(testLogger(), mem, WithClock(fixedClock()))
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		report, err := r.Run(context.Background(), "run-1", resolvedConfig(t, parallelism, "drop"), testBatch(t))
		if err != nil {
			t.Fatalf("run (parallelism=%d): %v", parallelism, err)
		}
		reports = append(reports, report)
	}
	if !reflect.DeepEqual(reports[0], reports[1]) {
		t.Fatalf("reports differ across parallelism:\n%+v\n%+v", reports[0], reports[1])
	}
}

func TestRun_RerunIsIdempotent(t *testing.T) {
	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	resolved := resolvedConfig(t, 2, "drop")
	batch := testBatch(t)
	first, err := r.Run(context.Background(), "run-1", resolved, batch)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Simulated restart after interruption: same input batch again.
	second, err := r.Run(context.Background(), "run-1", resolved, batch)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("re-run produced a different report:\n%+v\n%+v", first, second)
	}
	if mem.Len() != 4 {
		t.Fatalf("sink rows=%d after re-run, want 4", mem.Len())
	}
}

func TestRun_SinkFailureFailsTheRun(t *testing.T) {
	mem := sink.NewMemory()
	mem.FailWrites(errors.New("warehouse unreachable"))
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := r.Run(context.Background(), "run-1", resolvedConfig(t, 1, "drop"), testBatch(t))
	if err == nil {
		t.Fatal("expected systemic sink failure")
	}
	if report.State != string(StateFailed) {
		t.Fatalf("state=%q, want FAILED", report.State)
	}
	if !strings.Contains(report.Error, "warehouse unreachable") {
		t.Fatalf("report error=%q", report.Error)
	}
}

func TestRun_QuarantineHoldsRejectedRecords(t *testing.T) {
	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithQuarantine(mem), WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := r.Run(context.Background(), "run-1", resolvedConfig(t, 1, "quarantine"), testBatch(t))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.State != string(StateDone) {
		t.Fatalf("state=%q, want DONE", report.State)
	}

	held := mem.Quarantined("run-1")
	if len(held) != 1 || held[0].Record.SourceID() != "s2" {
		t.Fatalf("quarantined=%v, want s2", held)
	}
	if held[0].Reasons[0] != "price_non_negative" {
		t.Fatalf("quarantine reasons=%v", held[0].Reasons)
	}
}

func TestRun_QuarantineRequiresDestination(t *testing.T) {
	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := r.Run(context.Background(), "run-1", resolvedConfig(t, 1, "quarantine"), testBatch(t))
	if err == nil {
		t.Fatal("expected configuration error before any record is processed")
	}
	if report.State != string(StateFailed) {
		t.Fatalf("state=%q, want FAILED", report.State)
	}
	if report.TotalOut != 0 {
		t.Fatalf("total_out=%d, want 0", report.TotalOut)
	}
}

func TestRun_CancelledBetweenRecords(t *testing.T) {
	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.Run(ctx, "run-1", resolvedConfig(t, 1, "drop"), testBatch(t))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if report.State != string(StateFailed) {
		t.Fatalf("state=%q, want FAILED", report.State)
	}
	if mem.Len() != 0 {
		t.Fatal("cancelled run must not persist records")
	}
}

func TestRun_TransformFailureIsPerRecord(t *testing.T) {
	// A pipeline whose coercion step fails on one malformed record must
	// reject that record alone and keep the batch alive.
	steps := transform.NewCatalog()
	if err := steps.Register(transform.CoerceNumber("coerce_price", "price")); err != nil {
		t.Fatalf("register: %v", err)
	}
	ruleCatalog := rules.NewCatalog()
	if err := ruleCatalog.Register(rules.RequiredFields("price_present", "price")); err != nil {
		t.Fatalf("register: %v", err)
	}
	registry, err := index.DefaultRegistry()
	if err != nil {
		t.Fatalf("DefaultRegistry: %v", err)
	}
	def, err := config.Parse([]byte(`
schema: parcelflow.pipeline.definition.v1
name: coercion
input:
  fields:
    - {name: price, type: string}
steps:
  - coerce_price
ruleset:
  - {rule: price_present, severity: REJECT}
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	resolved, err := def.Resolve(steps, ruleCatalog, registry)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	good, _ := domain.NewRecord("ok", time.Unix(1700000000, 0))
	good = good.Set("price", domain.String("100000"))
	bad, _ := domain.NewRecord("bad", time.Unix(1700000000, 0))
	bad = bad.Set("price", domain.String("one million"))

	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := r.Run(context.Background(), "run-1", resolved, []domain.Record{good, bad})
	if err != nil {
		t.Fatalf("run must survive a per-record transform failure: %v", err)
	}
	if report.TotalOut != 1 || len(report.Rejected) != 1 {
		t.Fatalf("totals out=%d rejected=%d, want 1/1", report.TotalOut, len(report.Rejected))
	}
	if report.Rejected[0].SourceID != "bad" {
		t.Fatalf("rejected=%v", report.Rejected)
	}
	if !strings.HasPrefix(report.Rejected[0].Reasons[0], "transform_failure:") {
		t.Fatalf("reasons=%v", report.Rejected[0].Reasons)
	}
	if !report.Conserved() {
		t.Fatal("conservation must hold with transform failures")
	}
}

func TestRun_WarnAndRejectOnSameRecord(t *testing.T) {
	batch := []domain.Record{
		listing(t, "s1", 2_000_000, 7_200, "haifa"),
		listing(t, "s2", -10, 4_000, "eilat"), // fails the REJECT price rule and the WARN city rule
	}

	mem := sink.NewMemory()
	r, err := New(testLogger(), mem, WithClock(fixedClock()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	report, err := r.Run(context.Background(), "run-1", resolvedConfig(t, 1, "drop"), batch)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Both verdicts surface; the record is excluded exactly once.
	if len(report.Rejected) != 1 || report.Rejected[0].SourceID != "s2" {
		t.Fatalf("rejected=%v, want s2 only", report.Rejected)
	}
	if len(report.Warnings) != 1 || report.Warnings[0].SourceID != "s2" {
		t.Fatalf("warnings=%v, want s2 only", report.Warnings)
	}
	if report.TotalOut != 1 || !report.Conserved() {
		t.Fatalf("out=%d conserved=%v, want 1/true", report.TotalOut, report.Conserved())
	}
}

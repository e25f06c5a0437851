// Package runner executes a resolved pipeline over a batch of records. The
// run advances through PENDING, VALIDATING, TRANSFORMING, INDEXING,
// PERSISTING and DONE; only systemic failures (sink unreachable, broken
// configuration) fail the run, never a single record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/parcelflow-labs/parcelflow-go/internal/config"
	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
	"github.com/parcelflow-labs/parcelflow-go/internal/sink"
)

// State is the batch run lifecycle phase.
type State string

const (
	StatePending      State = "PENDING"
	StateValidating   State = "VALIDATING"
	StateTransforming State = "TRANSFORMING"
	StateIndexing     State = "INDEXING"
	StatePersisting   State = "PERSISTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Runner drives batch executions. It is safe for concurrent use; all
// per-run state lives on the stack of Run.
type Runner struct {
	logger     *slog.Logger
	sink       sink.Sink
	quarantine sink.Quarantine
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithQuarantine installs the destination for rejected records when the
// pipeline runs with on_reject: quarantine.
func WithQuarantine(q sink.Quarantine) Option {
	return func(r *Runner) { r.quarantine = q }
}

// WithClock fixes the runner's clock, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func New(logger *slog.Logger, s sink.Sink, opts ...Option) (*Runner, error) {
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	if s == nil {
		return nil, errors.New("sink is required")
	}
	r := &Runner{logger: logger, sink: s, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// recordOutcome is the result of pushing one record through validation,
// transformation and indexing. Exactly one of output, rejected is set.
type recordOutcome struct {
	output   *sink.OutputRecord
	rejected *sink.RejectedRecord
	warnings []string
}

func (o recordOutcome) partialReport() domain.RunReport {
	partial := domain.NewRunReport()
	partial.TotalIn = 1
	sourceID := ""
	switch {
	case o.output != nil:
		sourceID = o.output.Record.SourceID()
		partial.TotalOut = 1
		for _, result := range o.output.Indices {
			if result.Computed() {
				partial.IndexCoverage[result.Key().String()]++
			}
		}
	case o.rejected != nil:
		sourceID = o.rejected.Record.SourceID()
		partial.Rejected = append(partial.Rejected, domain.RecordIssues{
			SourceID: sourceID,
			Reasons:  o.rejected.Reasons,
		})
	}
	if len(o.warnings) > 0 {
		partial.Warnings = append(partial.Warnings, domain.RecordIssues{SourceID: sourceID, Reasons: o.warnings})
	}
	return partial
}

// Run executes the resolved pipeline over the batch and returns the run
// report. The report is returned even when the run fails, with State FAILED
// and the systemic error recorded.
func (r *Runner) Run(ctx context.Context, runID string, resolved config.Resolved, batch []domain.Record) (domain.RunReport, error) {
	if runID == "" {
		runID = uuid.NewString()
	}

	report := domain.NewRunReport()
	report.RunID = runID
	report.Pipeline = resolved.Pipeline.Name()
	report.StartedAt = r.now().UTC()

	state := StatePending
	_ = state
	transition := func(next State) {
		state = next
		r.logger.Info("run state", "run_id", runID, "pipeline", report.Pipeline, "state", string(next))
	}
	fail := func(err error) (domain.RunReport, error) {
		transition(StateFailed)
		report.State = string(StateFailed)
		report.Error = err.Error()
		report.FinishedAt = r.now().UTC()
		report.Finalize()
		return report, err
	}

	if resolved.Options.OnReject == config.OnRejectQuarantine && r.quarantine == nil {
		return fail(fmt.Errorf("on_reject is quarantine but no quarantine destination is configured"))
	}

	// The per-record phases run per worker chunk; the run-level state
	// reflects the furthest phase any record has entered.
	transition(StateValidating)
	transition(StateTransforming)
	transition(StateIndexing)

	outcomes, err := r.processRecords(ctx, resolved, batch)
	if err != nil {
		return fail(err)
	}

	// Accumulation barrier: per-record partial reports fold into the run
	// report through the associative, commutative Merge.
	outputs := make([]sink.OutputRecord, 0, len(batch))
	var rejected []sink.RejectedRecord
	for _, outcome := range outcomes {
		report.Merge(outcome.partialReport())
		if outcome.rejected != nil {
			rejected = append(rejected, *outcome.rejected)
		}
		if outcome.output != nil {
			outputs = append(outputs, *outcome.output)
		}
	}

	transition(StatePersisting)
	if err := r.sink.Write(ctx, outputs); err != nil {
		return fail(fmt.Errorf("sink write: %w", err))
	}
	if resolved.Options.OnReject == config.OnRejectQuarantine && len(rejected) > 0 {
		if err := r.quarantine.Quarantine(ctx, runID, rejected); err != nil {
			return fail(fmt.Errorf("quarantine write: %w", err))
		}
	}

	transition(StateDone)
	report.State = string(StateDone)
	report.FinishedAt = r.now().UTC()
	report.Finalize()
	r.logger.Info("run complete",
		"run_id", runID,
		"pipeline", report.Pipeline,
		"total_in", report.TotalIn,
		"total_out", report.TotalOut,
		"rejected", len(report.Rejected),
	)
	return report, nil
}

// processRecords fans the batch out over worker goroutines. Each record's
// outcome lands in its own slot, so workers never share mutable state; the
// single-threaded loop in Run is the accumulation barrier.
func (r *Runner) processRecords(ctx context.Context, resolved config.Resolved, batch []domain.Record) ([]recordOutcome, error) {
	outcomes := make([]recordOutcome, len(batch))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(resolved.Options.Parallelism)
	for i := range batch {
		group.Go(func() error {
			// Cooperative cancellation between records; a record already
			// being processed runs to completion.
			if err := groupCtx.Err(); err != nil {
				return err
			}
			outcome, err := processRecord(resolved, batch[i])
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// processRecord pushes one record through every phase. Per-record problems
// become outcomes, never errors; an error return is systemic.
func processRecord(resolved config.Resolved, rec domain.Record) (recordOutcome, error) {
	verdicts := resolved.Ruleset.Evaluate(rec)
	outcome := recordOutcome{
		warnings: domain.FailureReasons(verdicts, domain.SeverityWarn),
	}
	if domain.Rejected(verdicts) {
		outcome.rejected = &sink.RejectedRecord{
			Record:  rec,
			Reasons: domain.FailureReasons(verdicts, domain.SeverityReject),
		}
		return outcome, nil
	}

	transformed, filteredBy, err := resolved.Pipeline.Apply(rec)
	if err != nil {
		// Typed per-record transform failure: recorded, not escalated.
		outcome.rejected = &sink.RejectedRecord{
			Record:  rec,
			Reasons: []string{fmt.Sprintf("transform_failure: %v", err)},
		}
		return outcome, nil
	}
	if filteredBy != "" {
		outcome.rejected = &sink.RejectedRecord{
			Record:  rec,
			Reasons: []string{fmt.Sprintf("filtered_by: %s", filteredBy)},
		}
		return outcome, nil
	}

	indices := make([]domain.IndexResult, 0, len(resolved.Indexes))
	for _, key := range resolved.Indexes {
		result, err := resolved.Registry.Compute(key.Name, key.Version, transformed)
		if err != nil {
			// Unreachable after Resolve; if it happens the configuration is
			// broken and the whole run must stop.
			return recordOutcome{}, err
		}
		indices = append(indices, result)
	}

	outcome.output = &sink.OutputRecord{Record: transformed, Indices: indices}
	return outcome, nil
}

package domain

import (
	"sort"
	"time"
)

const RunReportSchemaV1 = "parcelflow.pipeline.run_report.v1"

// RecordIssues pairs a record's source id with the reasons it was rejected
// or flagged.
type RecordIssues struct {
	SourceID string   `json:"source_id"`
	Reasons  []string `json:"reasons"`
}

// RunReport is the aggregate outcome of one batch run. It is the single
// source of truth for what succeeded, what was rejected and why, and which
// indices could not be computed.
type RunReport struct {
	Schema        string         `json:"schema"`
	RunID         string         `json:"run_id"`
	Pipeline      string         `json:"pipeline"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	State         string         `json:"state"`
	TotalIn       int            `json:"total_in"`
	TotalOut      int            `json:"total_out"`
	Rejected      []RecordIssues `json:"rejected"`
	Warnings      []RecordIssues `json:"warnings"`
	IndexCoverage map[string]int `json:"index_coverage"`
	Error         string         `json:"error,omitempty"`
}

// NewRunReport returns an empty report for accumulation. Per-worker partial
// reports are merged into a final one, so every collection starts non-nil.
func NewRunReport() RunReport {
	return RunReport{
		Schema:        RunReportSchemaV1,
		Rejected:      []RecordIssues{},
		Warnings:      []RecordIssues{},
		IndexCoverage: map[string]int{},
	}
}

// Merge folds another partial report into the receiver. The combine is
// associative and commutative up to ordering of the issue lists, which
// Finalize normalizes.
func (r *RunReport) Merge(other RunReport) {
	r.TotalIn += other.TotalIn
	r.TotalOut += other.TotalOut
	r.Rejected = append(r.Rejected, other.Rejected...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	for key, count := range other.IndexCoverage {
		r.IndexCoverage[key] += count
	}
}

// Finalize orders the issue lists by source id so the same batch always
// produces the same report regardless of worker scheduling.
func (r *RunReport) Finalize() {
	sort.Slice(r.Rejected, func(i, j int) bool {
		return r.Rejected[i].SourceID < r.Rejected[j].SourceID
	})
	sort.Slice(r.Warnings, func(i, j int) bool {
		return r.Warnings[i].SourceID < r.Warnings[j].SourceID
	})
}

// Conserved reports whether every input record is accounted for either in
// the output or in the rejected list.
func (r RunReport) Conserved() bool {
	return r.TotalIn == r.TotalOut+len(r.Rejected)
}

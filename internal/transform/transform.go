// Package transform implements record transform steps and their composition
// into pipelines. Field dependencies between steps are checked when the
// pipeline is constructed, never discovered mid-batch.
package transform

import (
	"fmt"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Step is a pure transformation of one record. Apply returns ok=false when
// the record is filtered out, which is a valid outcome distinct from an
// error. Steps must hold no state shared across records; that is what makes
// batch parallelism safe.
type Step interface {
	Name() string
	// Requires lists fields the step reads. The pipeline refuses an order
	// where a required field is neither in the input schema nor produced by
	// an earlier step.
	Requires() []string
	// Produces lists fields the step adds to the record.
	Produces() []string
	Apply(rec domain.Record) (out domain.Record, ok bool, err error)
}

// StepError is a per-record transform failure. It drops the record from the
// success path and is recorded in the run report; it never aborts the batch.
type StepError struct {
	Step     string
	SourceID string
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s failed for record %s: %v", e.Step, e.SourceID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline is a named, ordered composition of steps. Composition is
// associative: extending a pipeline with more steps behaves exactly like
// constructing the concatenation up front.
type Pipeline struct {
	name   string
	schema domain.Schema
	steps  []Step
}

// NewPipeline checks step ordering against the input schema and returns the
// pipeline. All dependency violations are aggregated into one error.
func NewPipeline(name string, schema domain.Schema, steps []Step) (*Pipeline, error) {
	issues := &domain.ConfigError{}
	if strings.TrimSpace(name) == "" {
		issues.Add("pipeline name is required")
	}
	if err := schema.Validate(); err != nil {
		issues.Add(fmt.Sprintf("pipeline %q schema: %v", name, err))
	}

	available := make(map[string]struct{}, len(schema.Fields))
	for _, field := range schema.Fields {
		available[field.Name] = struct{}{}
	}

	seen := make(map[string]struct{}, len(steps))
	for i, step := range steps {
		if step == nil {
			issues.Add(fmt.Sprintf("pipeline %q step[%d] is nil", name, i))
			continue
		}
		stepName := strings.TrimSpace(step.Name())
		if stepName == "" {
			issues.Add(fmt.Sprintf("pipeline %q step[%d] name is required", name, i))
			continue
		}
		if _, dup := seen[stepName]; dup {
			issues.Add(fmt.Sprintf("pipeline %q step %q appears twice", name, stepName))
		}
		seen[stepName] = struct{}{}

		for _, field := range step.Requires() {
			if _, ok := available[field]; !ok {
				issues.Add(fmt.Sprintf("pipeline %q step %q requires field %q which no earlier step produces and the schema does not declare", name, stepName, field))
			}
		}
		for _, field := range step.Produces() {
			available[field] = struct{}{}
		}
	}

	if err := issues.OrNil(); err != nil {
		return nil, err
	}
	return &Pipeline{name: name, schema: schema, steps: steps}, nil
}

func (p *Pipeline) Name() string {
	return p.name
}

func (p *Pipeline) StepNames() []string {
	out := make([]string, 0, len(p.steps))
	for _, step := range p.steps {
		out = append(out, step.Name())
	}
	return out
}

// Extend returns a new pipeline with more steps appended, re-running the
// dependency check over the full sequence.
func (p *Pipeline) Extend(steps ...Step) (*Pipeline, error) {
	combined := make([]Step, 0, len(p.steps)+len(steps))
	combined = append(combined, p.steps...)
	combined = append(combined, steps...)
	return NewPipeline(p.name, p.schema, combined)
}

// OutputFields returns every field available after the full pipeline: the
// declared schema plus everything the steps produce. Index selections are
// checked against this set at configuration time.
func (p *Pipeline) OutputFields() map[string]struct{} {
	available := make(map[string]struct{}, len(p.schema.Fields))
	for _, field := range p.schema.Fields {
		available[field.Name] = struct{}{}
	}
	for _, step := range p.steps {
		for _, field := range step.Produces() {
			available[field] = struct{}{}
		}
	}
	return available
}

// Apply runs the steps left to right. A filtered-out record short-circuits
// and filteredBy names the step that dropped it, so the run report can
// account for every input record. A step failure short-circuits with a
// *StepError.
func (p *Pipeline) Apply(rec domain.Record) (out domain.Record, filteredBy string, err error) {
	current := rec
	for _, step := range p.steps {
		next, ok, err := step.Apply(current)
		if err != nil {
			return domain.Record{}, "", &StepError{Step: step.Name(), SourceID: rec.SourceID(), Err: err}
		}
		if !ok {
			return domain.Record{}, step.Name(), nil
		}
		current = next
	}
	return current, "", nil
}

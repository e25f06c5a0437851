// Package config parses pipeline definitions: the declarative surface that
// names steps, rules, severities, index selections and run options. Names
// resolve against catalogs at configuration time; nothing is looked up
// dynamically once a batch is running.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
	"github.com/parcelflow-labs/parcelflow-go/internal/index"
	"github.com/parcelflow-labs/parcelflow-go/internal/rules"
	"github.com/parcelflow-labs/parcelflow-go/internal/transform"
)

const DefinitionSchemaV1 = "parcelflow.pipeline.definition.v1"

const (
	OnRejectDrop       = "drop"
	OnRejectQuarantine = "quarantine"
)

// Options are the recognized per-run knobs.
type Options struct {
	Parallelism  int    `json:"parallelism,omitempty" yaml:"parallelism,omitempty"`
	OnReject     string `json:"on_reject,omitempty" yaml:"on_reject,omitempty"`
	StrictSchema bool   `json:"strict_schema,omitempty" yaml:"strict_schema,omitempty"`
}

// Definition is one named pipeline: input schema, ordered step names,
// ruleset entries, index selections and options.
type Definition struct {
	Schema  string               `json:"schema" yaml:"schema"`
	Name    string               `json:"name" yaml:"name"`
	Input   domain.Schema        `json:"input" yaml:"input"`
	Steps   []string             `json:"steps" yaml:"steps"`
	Ruleset []rules.RulesetEntry `json:"ruleset" yaml:"ruleset"`
	Indexes []domain.IndexKey    `json:"indexes" yaml:"indexes"`
	Options Options              `json:"options,omitempty" yaml:"options,omitempty"`
}

// Parse decodes a YAML definition and validates its shape. Resolution
// against catalogs is a separate step so shape errors and binding errors
// are reported at the right layer.
func Parse(input []byte) (Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(input, &def); err != nil {
		return Definition{}, fmt.Errorf("parse definition: %w", err)
	}
	if def.Options.Parallelism == 0 {
		def.Options.Parallelism = 1
	}
	if strings.TrimSpace(def.Options.OnReject) == "" {
		def.Options.OnReject = OnRejectDrop
	}
	if err := def.Validate(); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func (d Definition) Validate() error {
	issues := &domain.ConfigError{}
	if strings.TrimSpace(d.Schema) != DefinitionSchemaV1 {
		issues.Add(fmt.Sprintf("definition.schema must be %q", DefinitionSchemaV1))
	}
	if strings.TrimSpace(d.Name) == "" {
		issues.Add("definition.name is required")
	}
	if err := d.Input.Validate(); err != nil {
		issues.Add(fmt.Sprintf("definition.input: %v", err))
	}
	for i, step := range d.Steps {
		if strings.TrimSpace(step) == "" {
			issues.Add(fmt.Sprintf("definition.steps[%d] is empty", i))
		}
	}
	for i, entry := range d.Ruleset {
		if strings.TrimSpace(entry.Rule) == "" {
			issues.Add(fmt.Sprintf("definition.ruleset[%d].rule is required", i))
		}
		switch entry.Severity {
		case domain.SeverityWarn, domain.SeverityReject:
		default:
			issues.Add(fmt.Sprintf("definition.ruleset[%d].severity unsupported: %q", i, entry.Severity))
		}
	}
	seen := make(map[domain.IndexKey]struct{}, len(d.Indexes))
	for i, key := range d.Indexes {
		if strings.TrimSpace(key.Name) == "" {
			issues.Add(fmt.Sprintf("definition.indexes[%d].name is required", i))
			continue
		}
		if key.Version < 1 {
			issues.Add(fmt.Sprintf("definition.indexes[%d].version must be >= 1", i))
			continue
		}
		if _, dup := seen[key]; dup {
			issues.Add(fmt.Sprintf("definition.indexes[%d] duplicates %s", i, key))
		}
		seen[key] = struct{}{}
	}
	if d.Options.Parallelism < 1 {
		issues.Add("definition.options.parallelism must be >= 1")
	}
	switch d.Options.OnReject {
	case OnRejectDrop, OnRejectQuarantine:
	default:
		issues.Add(fmt.Sprintf("definition.options.on_reject unsupported: %q", d.Options.OnReject))
	}
	return issues.OrNil()
}

// Resolved is a definition bound to concrete implementations, ready to run.
type Resolved struct {
	Pipeline *transform.Pipeline
	Ruleset  *rules.Ruleset
	Registry *index.Registry
	Indexes  []domain.IndexKey
	Options  Options
}

// Resolve binds the definition's names against the step catalog, rule
// catalog and index registry. Every binding problem is aggregated; a
// definition that resolves never fails a name lookup at run time.
func (d Definition) Resolve(steps *transform.Catalog, ruleCatalog *rules.Catalog, registry *index.Registry) (Resolved, error) {
	if err := d.Validate(); err != nil {
		return Resolved{}, err
	}
	issues := &domain.ConfigError{}

	pipeline, err := steps.Resolve(d.Name, d.Input, d.Steps)
	if err != nil {
		appendIssues(issues, err)
	}
	ruleset, err := ruleCatalog.Resolve(d.Name, d.Input, d.Ruleset)
	if err != nil {
		appendIssues(issues, err)
	}

	if pipeline != nil {
		available := pipeline.OutputFields()
		for _, key := range d.Indexes {
			required, err := registry.RequiredFields(key)
			if err != nil {
				issues.Add(err.Error())
				continue
			}
			for _, field := range required {
				if _, ok := available[field]; !ok {
					issues.Add(fmt.Sprintf("index %s requires field %q which the pipeline does not provide", key, field))
				}
			}
		}
	}

	if err := issues.OrNil(); err != nil {
		return Resolved{}, err
	}
	return Resolved{
		Pipeline: pipeline,
		Ruleset:  ruleset,
		Registry: registry,
		Indexes:  append([]domain.IndexKey(nil), d.Indexes...),
		Options:  d.Options,
	}, nil
}

func appendIssues(dst *domain.ConfigError, err error) {
	if cfgErr, ok := err.(*domain.ConfigError); ok {
		dst.Issues = append(dst.Issues, cfgErr.Issues...)
		return
	}
	dst.Add(err.Error())
}

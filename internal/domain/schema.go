package domain

import (
	"errors"
	"fmt"
	"strings"
)

// FieldType is the declared type of a schema field.
type FieldType string

const (
	FieldNumber    FieldType = "number"
	FieldString    FieldType = "string"
	FieldTimestamp FieldType = "timestamp"
)

// SchemaField declares one field of the batch input schema.
type SchemaField struct {
	Name string    `json:"name" yaml:"name"`
	Type FieldType `json:"type" yaml:"type"`
}

// Schema is the declared field layout delivered with a raw batch. Rules and
// transform steps are checked against it at configuration time.
type Schema struct {
	Fields []SchemaField `json:"fields" yaml:"fields"`
}

func (s Schema) Validate() error {
	if len(s.Fields) == 0 {
		return errors.New("schema must declare at least one field")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i, field := range s.Fields {
		name := strings.TrimSpace(field.Name)
		if name == "" {
			return fmt.Errorf("schema.fields[%d].name is required", i)
		}
		if name != field.Name {
			return fmt.Errorf("schema.fields[%d].name has surrounding whitespace", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("schema.fields[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[name] = struct{}{}

		switch field.Type {
		case FieldNumber, FieldString, FieldTimestamp:
		default:
			return fmt.Errorf("schema.fields[%d].type unsupported: %q", i, field.Type)
		}
	}
	return nil
}

func (s Schema) Has(name string) bool {
	for _, field := range s.Fields {
		if field.Name == name {
			return true
		}
	}
	return false
}

// TypeOf returns the declared type of a field and whether it is declared.
func (s Schema) TypeOf(name string) (FieldType, bool) {
	for _, field := range s.Fields {
		if field.Name == name {
			return field.Type, true
		}
	}
	return "", false
}

// FieldNames returns the declared field names in declaration order.
func (s Schema) FieldNames() []string {
	out := make([]string, 0, len(s.Fields))
	for _, field := range s.Fields {
		out = append(out, field.Name)
	}
	return out
}

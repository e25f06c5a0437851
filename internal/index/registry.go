// Package index implements the registry of named, versioned index
// functions: pure derived metrics computed per record, keyed by
// (name, version) so historical results stay reproducible after a formula
// changes.
package index

import (
	"fmt"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Func computes a derived metric from one record. Implementations must be
// pure and total over their declared domain: out-of-domain inputs yield nil,
// never a panic or a sentinel zero.
type Func func(rec domain.Record) *float64

type entry struct {
	fn       Func
	required []string
}

// Registry holds index functions keyed by (name, version). Registration
// happens once at startup, single-threaded; the registry is read-only for
// the duration of a run.
type Registry struct {
	keys    []domain.IndexKey
	entries map[domain.IndexKey]entry
}

func NewRegistry() *Registry {
	return &Registry{entries: map[domain.IndexKey]entry{}}
}

// Register adds an index function. Re-registering an existing
// (name, version) is a hard configuration error: an already-published
// version must never change meaning silently.
func (r *Registry) Register(name string, version int, fn Func, requiredFields []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("index name is required")
	}
	if version < 1 {
		return fmt.Errorf("index %q version must be >= 1", name)
	}
	if fn == nil {
		return fmt.Errorf("index %s@v%d function is required", name, version)
	}
	key := domain.IndexKey{Name: name, Version: version}
	if _, exists := r.entries[key]; exists {
		return fmt.Errorf("index %s already registered; versions are immutable", key)
	}
	r.keys = append(r.keys, key)
	r.entries[key] = entry{fn: fn, required: append([]string(nil), requiredFields...)}
	return nil
}

// Keys returns the registered index keys in registration order.
func (r *Registry) Keys() []domain.IndexKey {
	out := make([]domain.IndexKey, len(r.keys))
	copy(out, r.keys)
	return out
}

// RequiredFields returns the declared inputs of a registered index.
func (r *Registry) RequiredFields(key domain.IndexKey) ([]string, error) {
	e, ok := r.entries[key]
	if !ok {
		return nil, fmt.Errorf("index %s is not registered", key)
	}
	return append([]string(nil), e.required...), nil
}

// Compute evaluates one registered index against one record. A missing or
// null required input yields a nil value without invoking the function; the
// function itself yields nil for out-of-domain inputs. Either way the
// result is recorded, never thrown.
func (r *Registry) Compute(name string, version int, rec domain.Record) (domain.IndexResult, error) {
	key := domain.IndexKey{Name: name, Version: version}
	e, ok := r.entries[key]
	if !ok {
		return domain.IndexResult{}, fmt.Errorf("index %s is not registered", key)
	}

	result := domain.IndexResult{
		IndexName:  name,
		Version:    version,
		InputsUsed: append([]string(nil), e.required...),
	}
	for _, field := range e.required {
		v, present := rec.Get(field)
		if !present || v.IsNull() {
			return result, nil
		}
	}
	result.Value = e.fn(rec)
	return result, nil
}

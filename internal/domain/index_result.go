package domain

import "fmt"

// IndexKey identifies one registered index function. Versions of the same
// index coexist so historical results stay reproducible.
type IndexKey struct {
	Name    string `json:"name" yaml:"name"`
	Version int    `json:"version" yaml:"version"`
}

func (k IndexKey) String() string {
	return fmt.Sprintf("%s@v%d", k.Name, k.Version)
}

// IndexResult is the outcome of computing one index for one record. Value
// is nil when required inputs are missing or out of domain, which is
// distinct from a computed zero.
type IndexResult struct {
	IndexName  string   `json:"index_name"`
	Version    int      `json:"version"`
	Value      *float64 `json:"value"`
	InputsUsed []string `json:"inputs_used"`
}

func (r IndexResult) Key() IndexKey {
	return IndexKey{Name: r.IndexName, Version: r.Version}
}

func (r IndexResult) Computed() bool {
	return r.Value != nil
}

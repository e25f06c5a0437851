package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/config"
	"github.com/parcelflow-labs/parcelflow-go/internal/index"
	"github.com/parcelflow-labs/parcelflow-go/internal/rules"
	"github.com/parcelflow-labs/parcelflow-go/internal/transform"
)

// pipelineEntry is one loaded definition bound to the catalogs, ready to
// run. Binding happens at startup so a service that comes up never fails a
// name lookup mid-run.
type pipelineEntry struct {
	Definition config.Definition
	Resolved   config.Resolved
}

// loadDefinitions parses and resolves every *.yaml/*.yml file in dir,
// keyed by the definition's declared name.
func loadDefinitions(dir string, steps *transform.Catalog, ruleCatalog *rules.Catalog, registry *index.Registry) (map[string]pipelineEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions dir: %w", err)
	}

	pipelines := make(map[string]pipelineEntry)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		def, err := config.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		resolved, err := def.Resolve(steps, ruleCatalog, registry)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", entry.Name(), err)
		}
		if _, exists := pipelines[def.Name]; exists {
			return nil, fmt.Errorf("%s: duplicate pipeline name %q", entry.Name(), def.Name)
		}
		pipelines[def.Name] = pipelineEntry{Definition: def, Resolved: resolved}
	}
	if len(pipelines) == 0 {
		return nil, fmt.Errorf("no pipeline definitions in %s", dir)
	}
	return pipelines, nil
}

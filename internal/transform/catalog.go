package transform

import (
	"fmt"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Catalog resolves step names from a pipeline definition to concrete step
// implementations. Populated once at startup, read-only afterwards.
type Catalog struct {
	names []string
	steps map[string]Step
}

func NewCatalog() *Catalog {
	return &Catalog{steps: map[string]Step{}}
}

func (c *Catalog) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("step is required")
	}
	name := strings.TrimSpace(step.Name())
	if name == "" {
		return fmt.Errorf("step name is required")
	}
	if _, exists := c.steps[name]; exists {
		return fmt.Errorf("step %q already registered", name)
	}
	c.names = append(c.names, name)
	c.steps[name] = step
	return nil
}

func (c *Catalog) Lookup(name string) (Step, bool) {
	step, ok := c.steps[name]
	return step, ok
}

func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Resolve maps an ordered list of step names to a constructed pipeline,
// surfacing unknown names and dependency violations before any record is
// processed.
func (c *Catalog) Resolve(name string, schema domain.Schema, stepNames []string) (*Pipeline, error) {
	issues := &domain.ConfigError{}
	steps := make([]Step, 0, len(stepNames))
	for i, stepName := range stepNames {
		step, ok := c.Lookup(stepName)
		if !ok {
			issues.Add(fmt.Sprintf("pipeline %q step[%d] unknown step %q", name, i, stepName))
			continue
		}
		steps = append(steps, step)
	}
	if err := issues.OrNil(); err != nil {
		return nil, err
	}
	return NewPipeline(name, schema, steps)
}

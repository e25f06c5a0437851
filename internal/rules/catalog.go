package rules

import (
	"fmt"
	"strings"

	"github.com/parcelflow-labs/parcelflow-go/internal/domain"
)

// Catalog resolves rule names from a pipeline definition to concrete rule
// implementations. It is populated once at startup and read-only afterwards.
type Catalog struct {
	names []string
	rules map[string]Rule
}

func NewCatalog() *Catalog {
	return &Catalog{rules: map[string]Rule{}}
}

func (c *Catalog) Register(rule Rule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	name := strings.TrimSpace(rule.Name())
	if name == "" {
		return fmt.Errorf("rule name is required")
	}
	if _, exists := c.rules[name]; exists {
		return fmt.Errorf("rule %q already registered", name)
	}
	c.names = append(c.names, name)
	c.rules[name] = rule
	return nil
}

func (c *Catalog) Lookup(name string) (Rule, bool) {
	rule, ok := c.rules[name]
	return rule, ok
}

func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Resolve turns named ruleset entries into bindings and constructs the
// ruleset against the schema.
func (c *Catalog) Resolve(name string, schema domain.Schema, entries []RulesetEntry) (*Ruleset, error) {
	issues := &domain.ConfigError{}
	bindings := make([]Binding, 0, len(entries))
	for i, entry := range entries {
		rule, ok := c.Lookup(entry.Rule)
		if !ok {
			issues.Add(fmt.Sprintf("ruleset %q entry[%d] unknown rule %q", name, i, entry.Rule))
			continue
		}
		bindings = append(bindings, Binding{Rule: rule, Severity: entry.Severity})
	}
	if err := issues.OrNil(); err != nil {
		return nil, err
	}
	return NewRuleset(name, schema, bindings)
}

// RulesetEntry is one line of a ruleset definition: a rule name and the
// severity its failures carry.
type RulesetEntry struct {
	Rule     string          `json:"rule" yaml:"rule"`
	Severity domain.Severity `json:"severity" yaml:"severity"`
}

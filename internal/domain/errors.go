package domain

import "strings"

// ConfigError aggregates configuration-time issues. Anything it carries is
// fatal: a pipeline, ruleset or index registry that fails construction
// never processes a record.
type ConfigError struct {
	Issues []string
}

func (e *ConfigError) Error() string {
	if len(e.Issues) == 0 {
		return "configuration invalid"
	}
	return "configuration invalid: " + strings.Join(e.Issues, "; ")
}

func (e *ConfigError) Add(issue string) {
	if strings.TrimSpace(issue) == "" {
		return
	}
	e.Issues = append(e.Issues, issue)
}

func (e *ConfigError) OrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}

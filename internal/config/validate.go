package config

import (
	"fmt"
	"strings"
)

// NameSet is an exact-match set of container names.
type NameSet map[string]struct{}

// NewNameSet builds a set from names.
func NewNameSet(names []string) NameSet {
	s := make(NameSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports whether name is in the set.
func (s NameSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// RequiredSet returns the required container names as a set.
func (c Config) RequiredSet() NameSet { return NewNameSet(c.Containers.Required) }

// SkipSet returns the skipped container names as a set.
func (c Config) SkipSet() NameSet { return NewNameSet(c.Containers.Skip) }

// Validate rejects configurations that cannot produce a meaningful run.
func (c Config) Validate() error {
	var problems []string

	if len(c.Containers.Required) == 0 {
		problems = append(problems, "no containers configured")
	}
	if c.Backup.Directory == "" {
		problems = append(problems, "backup directory is empty")
	}

	seen := make(NameSet, len(c.Containers.Required))
	skip := c.SkipSet()
	for _, name := range c.Containers.Required {
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			problems = append(problems, fmt.Sprintf("invalid container name %q", name))
		}
		if seen.Has(name) {
			problems = append(problems, fmt.Sprintf("container %q listed more than once", name))
		}
		seen[name] = struct{}{}
		if skip.Has(name) {
			problems = append(problems, fmt.Sprintf("container %q is both required and skipped", name))
		}
	}

	if c.Heartbeat.Retries < 0 {
		problems = append(problems, "heartbeat retries must not be negative")
	}
	if c.Backup.Timeout < 0 {
		problems = append(problems, "backup timeout must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidateConfig, strings.Join(problems, "; "))
	}
	return nil
}

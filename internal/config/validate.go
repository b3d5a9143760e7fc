package config

import (
	"errors"
	"fmt"
	"strings"
)

var filterKinds = map[string]struct{}{
	"":         {},
	"transfer": {},
	"palette":  {},
	"sketch":   {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateFilters()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.FiltersDir) == "" && len(c.Filters) == 0 {
		return errors.New("paths.filters_dir must be set when no filters are declared")
	}
	if c.Paths.WorkDir == c.Paths.SavedDir {
		return fmt.Errorf("paths.work_dir and paths.saved_dir must differ (both %q)", c.Paths.WorkDir)
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Count < 1 || c.Workers.Count > maxWorkerCount {
		return fmt.Errorf("workers.count must be between 1 and %d", maxWorkerCount)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
}

func (c *Config) validateFilters() error {
	seen := make(map[string]struct{}, len(c.Filters))
	for i, f := range c.Filters {
		if f.Name == "" {
			return fmt.Errorf("filters[%d].name must be set", i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("filters[%d].name %q declared more than once", i, f.Name)
		}
		seen[f.Name] = struct{}{}
		if _, ok := filterKinds[f.Kind]; !ok {
			return fmt.Errorf("filters[%d].kind: unsupported value %q", i, f.Kind)
		}
		if f.Strength <= 0 || f.Strength > 1 {
			return fmt.Errorf("filters[%d].strength must be in (0, 1]", i)
		}
		if len(f.References) == 0 && f.Kind != "sketch" {
			return fmt.Errorf("filters[%d].references must list at least one image", i)
		}
	}
	return nil
}

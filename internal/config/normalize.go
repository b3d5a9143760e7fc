package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeWorkers()
	c.normalizeRetention()
	c.normalizeLogging()
	return c.normalizeFilters()
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("PASTICHE_FILTERS_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.FiltersDir = strings.TrimSpace(value)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}

	fields := []struct {
		key      string
		value    *string
		fallback string
	}{
		{"paths.filters_dir", &c.Paths.FiltersDir, defaultFiltersDir},
		{"paths.work_dir", &c.Paths.WorkDir, defaultWorkDir},
		{"paths.saved_dir", &c.Paths.SavedDir, defaultSavedDir},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, field := range fields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.API.CORSOrigin = strings.TrimSpace(c.API.CORSOrigin)
	if c.API.MaxUploadMiB <= 0 {
		c.API.MaxUploadMiB = defaultMaxUploadMiB
	}
	if c.API.MaxPixels <= 0 {
		c.API.MaxPixels = defaultMaxPixels
	}
}

func (c *Config) normalizeWorkers() {
	if c.Workers.Count <= 0 {
		c.Workers.Count = defaultWorkerCount
	}
	if c.Workers.JobTimeoutSeconds <= 0 {
		c.Workers.JobTimeoutSeconds = defaultJobTimeoutSeconds
	}
	if c.Workers.ShutdownTimeoutSeconds <= 0 {
		c.Workers.ShutdownTimeoutSeconds = defaultShutdownTimeoutSeconds
	}
}

func (c *Config) normalizeRetention() {
	if c.Retention.WorkingTTLMinutes < 0 {
		c.Retention.WorkingTTLMinutes = 0
	}
	if c.Retention.SweepIntervalSeconds <= 0 {
		c.Retention.SweepIntervalSeconds = defaultSweepIntervalSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeFilters() error {
	for i := range c.Filters {
		f := &c.Filters[i]
		f.Name = strings.ToLower(strings.TrimSpace(f.Name))
		f.Kind = strings.ToLower(strings.TrimSpace(f.Kind))
		f.Description = strings.TrimSpace(f.Description)
		if f.Strength == 0 {
			f.Strength = defaultFilterStrength
		}
		refs := make([]string, 0, len(f.References))
		for _, ref := range f.References {
			ref = strings.TrimSpace(ref)
			if ref == "" {
				continue
			}
			if !filepath.IsAbs(ref) && !strings.HasPrefix(ref, "~") {
				ref = filepath.Join(c.Paths.FiltersDir, ref)
			}
			expanded, err := expandPath(ref)
			if err != nil {
				return fmt.Errorf("filters[%d].references: %w", i, err)
			}
			refs = append(refs, expanded)
		}
		f.References = refs
	}
	return nil
}

package testsupport

import (
	"path/filepath"
	"testing"

	"pastiche/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The filters directory is populated with the sketch and vangogh styles from
// StyleDir unless WithFiltersDir overrides it.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.FiltersDir = filepath.Join(base, "filters")
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.SavedDir = filepath.Join(base, "saved")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.API.Bind = "127.0.0.1:0"
	cfgVal.Workers.Count = 2
	cfgVal.Workers.JobTimeoutSeconds = 10
	cfgVal.Workers.ShutdownTimeoutSeconds = 5

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	StyleDir(t, cfgVal.Paths.FiltersDir)

	for _, opt := range opts {
		opt(builder)
	}
	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithWorkers sets the worker pool size.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.Count = count
	}
}

// WithJobTimeoutSeconds sets the per-request await bound.
func WithJobTimeoutSeconds(seconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.JobTimeoutSeconds = seconds
	}
}

// WithFiltersDir points the config at a caller-prepared style directory.
func WithFiltersDir(dir string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.FiltersDir = dir
	}
}

// WithDeclaredFilters adds explicitly declared filter descriptors.
func WithDeclaredFilters(filters ...config.Filter) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Filters = append(b.cfg.Filters, filters...)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}

// WithMaxUploadMiB sets the upload size limit.
func WithMaxUploadMiB(mib int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.API.MaxUploadMiB = mib
	}
}

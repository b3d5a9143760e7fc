package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"pastiche/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWork := filepath.Join(tempHome, ".local", "share", "pastiche", "work")
	if cfg.Paths.WorkDir != wantWork {
		t.Fatalf("unexpected work dir: got %q want %q", cfg.Paths.WorkDir, wantWork)
	}
	if cfg.Paths.SavedDir != filepath.Join(tempHome, ".local", "share", "pastiche", "saved") {
		t.Fatalf("unexpected saved dir: %q", cfg.Paths.SavedDir)
	}
	if cfg.DatabasePath() != filepath.Join(tempHome, ".local", "share", "pastiche", "pastiche.db") {
		t.Fatalf("unexpected database path: %q", cfg.DatabasePath())
	}
	if cfg.API.Bind != "127.0.0.1:5000" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Workers.Count != config.Default().Workers.Count {
		t.Fatalf("unexpected worker count: %d", cfg.Workers.Count)
	}
	if cfg.JobTimeout() != 120*time.Second {
		t.Fatalf("unexpected job timeout: %s", cfg.JobTimeout())
	}
	if !cfg.Retention.PurgeInputs {
		t.Fatal("expected inputs to be purged by default")
	}
	if cfg.MaxUploadBytes() != 32<<20 {
		t.Fatalf("unexpected upload limit: %d", cfg.MaxUploadBytes())
	}
	if cfg.API.MaxPixels != 50_000_000 {
		t.Fatalf("unexpected pixel ceiling: %d", cfg.API.MaxPixels)
	}
}

func TestLoadCustomConfig(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	configPath := filepath.Join(tempHome, "config.toml")
	content := `
[paths]
filters_dir = "~/styles"
work_dir = "~/tmp/work"
saved_dir = "~/saved"

[workers]
count = 2
job_timeout_seconds = 5

[logging]
format = "JSON"
level = "DEBUG"

[[filters]]
name = " VanGogh "
kind = "transfer"
strength = 0.5
references = ["vangogh.jpg", "/abs/ref.png"]

[[filters]]
name = "sketch"
kind = "sketch"
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: %q", resolved)
	}
	if cfg.Paths.FiltersDir != filepath.Join(tempHome, "styles") {
		t.Fatalf("unexpected filters dir: %q", cfg.Paths.FiltersDir)
	}
	if cfg.Workers.Count != 2 || cfg.JobTimeout() != 5*time.Second {
		t.Fatalf("unexpected workers: %+v", cfg.Workers)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging: %+v", cfg.Logging)
	}
	if len(cfg.Filters) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(cfg.Filters))
	}
	vg := cfg.Filters[0]
	if vg.Name != "vangogh" {
		t.Fatalf("expected normalized name, got %q", vg.Name)
	}
	if vg.References[0] != filepath.Join(tempHome, "styles", "vangogh.jpg") {
		t.Fatalf("expected relative reference resolved against filters dir, got %q", vg.References[0])
	}
	if vg.References[1] != "/abs/ref.png" {
		t.Fatalf("expected absolute reference untouched, got %q", vg.References[1])
	}
	if cfg.Filters[1].Strength != 1 {
		t.Fatalf("expected default strength, got %v", cfg.Filters[1].Strength)
	}
}

func TestFiltersDirEnvironmentOverride(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	override := filepath.Join(tempHome, "env-styles")
	t.Setenv("PASTICHE_FILTERS_DIR", override)

	cfg, _, _, err := config.Load(filepath.Join(tempHome, "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.FiltersDir != override {
		t.Fatalf("expected env override, got %q", cfg.Paths.FiltersDir)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{
			name:   "too many workers",
			mutate: func(c *config.Config) { c.Workers.Count = 500 },
			want:   "workers.count",
		},
		{
			name:   "shared work and saved dir",
			mutate: func(c *config.Config) { c.Paths.SavedDir = c.Paths.WorkDir },
			want:   "must differ",
		},
		{
			name:   "unknown level",
			mutate: func(c *config.Config) { c.Logging.Level = "verbose" },
			want:   "logging.level",
		},
		{
			name: "duplicate filter",
			mutate: func(c *config.Config) {
				f := config.Filter{Name: "a", Strength: 1, References: []string{"/x.png"}}
				c.Filters = []config.Filter{f, f}
			},
			want: "more than once",
		},
		{
			name: "bad kind",
			mutate: func(c *config.Config) {
				c.Filters = []config.Filter{{Name: "a", Kind: "oil", Strength: 1, References: []string{"/x.png"}}}
			},
			want: "kind",
		},
		{
			name: "strength out of range",
			mutate: func(c *config.Config) {
				c.Filters = []config.Filter{{Name: "a", Strength: 2, References: []string{"/x.png"}}}
			},
			want: "strength",
		},
		{
			name: "missing references",
			mutate: func(c *config.Config) {
				c.Filters = []config.Filter{{Name: "a", Kind: "transfer", Strength: 1}}
			},
			want: "references",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Paths.WorkDir = "/tmp/work"
			cfg.Paths.SavedDir = "/tmp/saved"
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSampleConfigDecodes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	var cfg config.Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("sample config does not decode: %v", err)
	}
	if cfg.Workers.Count != config.Default().Workers.Count {
		t.Fatalf("sample worker count drifted from defaults: %d", cfg.Workers.Count)
	}
	if cfg.API.Bind != config.Default().API.Bind {
		t.Fatalf("sample bind drifted from defaults: %q", cfg.API.Bind)
	}
	if cfg.API.MaxPixels != config.Default().API.MaxPixels {
		t.Fatalf("sample pixel ceiling drifted from defaults: %d", cfg.API.MaxPixels)
	}
}

func TestEnsureDirectoriesSkipsFiltersDir(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.FiltersDir = filepath.Join(base, "filters")
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.SavedDir = filepath.Join(base, "saved")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkDir, cfg.Paths.SavedDir, cfg.Paths.StateDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected %s to exist", dir)
		}
	}
	if _, err := os.Stat(cfg.Paths.FiltersDir); !os.IsNotExist(err) {
		t.Fatalf("filters dir should not be created, stat err=%v", err)
	}
}

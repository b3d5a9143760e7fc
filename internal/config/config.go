package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the directories pastiche reads from and writes to.
type Paths struct {
	FiltersDir string `toml:"filters_dir"`
	WorkDir    string `toml:"work_dir"`
	SavedDir   string `toml:"saved_dir"`
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
}

// API contains settings for the HTTP adapter.
type API struct {
	Bind         string `toml:"bind"`
	CORSOrigin   string `toml:"cors_origin"`
	MaxUploadMiB int    `toml:"max_upload_mib"`
	// MaxPixels rejects images whose header announces more pixels.
	MaxPixels int64 `toml:"max_pixels"`
}

// Workers contains configuration for the filter worker pool.
type Workers struct {
	Count                  int `toml:"count"`
	JobTimeoutSeconds      int `toml:"job_timeout_seconds"`
	ShutdownTimeoutSeconds int `toml:"shutdown_timeout_seconds"`
}

// Retention controls cleanup of transient artifacts in the working area.
type Retention struct {
	// WorkingTTLMinutes is the age after which working artifacts are swept.
	// Zero disables the background sweep.
	WorkingTTLMinutes    int `toml:"working_ttl_minutes"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
	// PurgeInputs removes the uploaded input as soon as its job finished.
	PurgeInputs bool `toml:"purge_inputs"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Filter declares a style filter explicitly instead of relying on directory
// discovery. Relative reference paths resolve against Paths.FiltersDir.
type Filter struct {
	Name        string   `toml:"name"`
	Kind        string   `toml:"kind"`
	Strength    float64  `toml:"strength"`
	Description string   `toml:"description"`
	References  []string `toml:"references"`
}

// Config encapsulates all configuration values for pastiche.
//
// Configuration sections by subsystem:
//   - Paths: style references, working/persisted areas, state and logs
//   - API: HTTP bind address and upload limits
//   - Workers: pool size, per-request timeout and shutdown drain budget
//   - Retention: working-area sweep policy
//   - Logging: log format, level, and retention
//   - Filters: explicitly declared filter descriptors
type Config struct {
	Paths     Paths     `toml:"paths"`
	API       API       `toml:"api"`
	Workers   Workers   `toml:"workers"`
	Retention Retention `toml:"retention"`
	Logging   Logging   `toml:"logging"`
	Filters   []Filter  `toml:"filters"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("pastiche.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the writable directories the daemon needs. The
// filters directory is read-only input and is never created here.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.SavedDir, c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the location of the artifact index database.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "pastiche.db")
}

// LockPath returns the single-instance daemon lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "pastiche.lock")
}

// PIDPath returns the file holding the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "pastiche.pid")
}

// JobTimeout bounds how long a request waits for its filter job.
func (c *Config) JobTimeout() time.Duration {
	return time.Duration(c.Workers.JobTimeoutSeconds) * time.Second
}

// ShutdownTimeout bounds how long the pool drains in-flight work on stop.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Workers.ShutdownTimeoutSeconds) * time.Second
}

// WorkingTTL returns the age after which working artifacts are swept, or zero
// when sweeping is disabled.
func (c *Config) WorkingTTL() time.Duration {
	return time.Duration(c.Retention.WorkingTTLMinutes) * time.Minute
}

// SweepInterval returns the period of the background working-area sweep.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Retention.SweepIntervalSeconds) * time.Second
}

// MaxUploadBytes returns the request body limit for uploaded images.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.API.MaxUploadMiB) << 20
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Marshal renders the effective configuration as TOML.
func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

package config

const (
	defaultConfigPath             = "~/.config/pastiche/config.toml"
	defaultFiltersDir             = "~/.local/share/pastiche/filters"
	defaultWorkDir                = "~/.local/share/pastiche/work"
	defaultSavedDir               = "~/.local/share/pastiche/saved"
	defaultStateDir               = "~/.local/share/pastiche"
	defaultLogDir                 = "~/.local/share/pastiche/logs"
	defaultAPIBind                = "127.0.0.1:5000"
	defaultCORSOrigin             = "*"
	defaultMaxUploadMiB           = 32
	defaultMaxPixels              = 50_000_000
	defaultWorkerCount            = 4
	defaultJobTimeoutSeconds      = 120
	defaultShutdownTimeoutSeconds = 30
	defaultWorkingTTLMinutes      = 60
	defaultSweepIntervalSeconds   = 300
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultLogRetentionDays       = 30
	defaultFilterStrength         = 1.0

	maxWorkerCount = 64
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			FiltersDir: defaultFiltersDir,
			WorkDir:    defaultWorkDir,
			SavedDir:   defaultSavedDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
		},
		API: API{
			Bind:         defaultAPIBind,
			CORSOrigin:   defaultCORSOrigin,
			MaxUploadMiB: defaultMaxUploadMiB,
			MaxPixels:    defaultMaxPixels,
		},
		Workers: Workers{
			Count:                  defaultWorkerCount,
			JobTimeoutSeconds:      defaultJobTimeoutSeconds,
			ShutdownTimeoutSeconds: defaultShutdownTimeoutSeconds,
		},
		Retention: Retention{
			WorkingTTLMinutes:    defaultWorkingTTLMinutes,
			SweepIntervalSeconds: defaultSweepIntervalSeconds,
			PurgeInputs:          true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}

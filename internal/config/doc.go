// Package config loads, normalizes, and validates pastiche configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// PASTICHE_FILTERS_DIR. The Config type centralizes every knob the daemon and
// CLI need: the style directory, the working and persisted artifact areas, the
// worker pool size and timeouts, retention of transient files, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

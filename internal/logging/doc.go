// Package logging assembles structured slog loggers and formatting helpers used
// across pastiche.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker and request code can
// tag log lines with job IDs, artifact IDs, filter names, and correlation IDs
// without threading them by hand. A no-op logger is provided for tests and
// wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so every component
// emits records with the same field names and routing.
package logging

// Package services defines shared error markers and context helpers consumed
// by the filter registry, artifact store, job pool and request orchestrator.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, artifact IDs, filter names and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so callers can classify
//     failures with errors.Is regardless of how deeply they were wrapped.
//
// Use these helpers when wiring new components so error reporting and
// observability stay uniform across the pipeline.
package services

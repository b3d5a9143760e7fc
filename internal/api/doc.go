// Package api is the request orchestrator behind every pastiche surface.
//
// ImageService turns one "apply filter to this image" request into a job:
// it validates the upload, resolves the filter before anything is written,
// stores the input artifact, submits a job to the worker pool and waits for
// it with the configured timeout. The HTTP daemon and the CLI both call it.
//
// # Key Types
//
// ProcessResult: output path and artifact id returned to the caller.
//
// FilterInfo, ArtifactInfo, JobInfo, StatusSummary: transport DTOs with
// camelCase JSON tags and RFC3339 millisecond timestamps.
//
// ErrorCategory: stable external error names produced by Classify, with an
// HTTP status mapping for the daemon.
//
// # Design Notes
//
// A request that times out does not cancel its job. The job keeps running,
// stays tracked by the pool, and its output becomes reachable through Job and
// the artifact id once it finishes. The consumed input is purged only after
// the job reached a terminal state.
package api

// Package daemon coordinates the long-running pastiche process.
//
// It wires the image service, the job pool, the artifact sweeper and the HTTP
// adapter into a single lifecycle with flock-based locking to prevent two
// daemons from sharing a working area. Start marks journal entries left
// queued or running by a previous process as failed, then launches workers,
// the sweeper and the listener; Stop reverses that order and drains the pool
// within the configured shutdown budget.
//
// Keep orchestration logic here: filter semantics belong to internal/filters
// and request handling to internal/api, while the daemon focuses on startup,
// shutdown, and transport.
package daemon

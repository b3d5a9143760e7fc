// Package metrics exposes Prometheus instrumentation for the job pool, the
// artifact sweeper, and the HTTP adapter.
//
// Each Recorder owns a private registry so tests and multiple daemons in one
// process never collide on metric names.
package metrics

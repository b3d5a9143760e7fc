// Package daemonctl controls a pastiche daemon from another process.
//
// Client wraps the daemon's HTTP adapter for CLI commands. Launch,
// EnsureStarted and Stop manage the daemon process through its pid file and
// single-instance lock.
package daemonctl

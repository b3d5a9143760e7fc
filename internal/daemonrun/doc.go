// Package daemonrun owns the pastiche daemon process: per-run log files with a
// stable pastiche.log pointer, log retention, the pid file, component wiring,
// and signal handling.
package daemonrun

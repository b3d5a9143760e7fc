// Package main hosts the pastiche CLI entrypoint and command graph.
//
// `pastiche serve` runs the daemon in the foreground; `start` and `stop`
// manage it in the background. Image and listing commands talk to a running
// daemon over its HTTP adapter, while `sweep` and `config` work directly on
// local state.
package main

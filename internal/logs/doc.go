// Package logs reads the daemon log for `pastiche logs`.
//
// Last returns the final lines of a file with bounded memory; Follow polls
// for appended lines from an offset until its context ends. A Filter narrows
// both to the lines of one job or artifact.
package logs

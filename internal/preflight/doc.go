// Package preflight provides readiness checks for the filesystem paths, the
// style directory, the state database, and the HTTP daemon that pastiche
// depends on.
//
// The CLI "pastiche status" command runs RunAll to display health, and
// "pastiche serve" refuses to start when a required check fails. Each check
// returns a Result instead of an error so status views can render every
// outcome side by side.
package preflight

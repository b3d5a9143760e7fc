// Package store persists the artifact index and the job journal in SQLite.
//
// The Store owns database connections, schema initialization, busy retries
// and the single-row "last saved" pointer. Files themselves live on disk
// under the artifact package's control; this package only records where they
// are and what they contain.
//
// The database is treated as an index that can be rebuilt by clearing it:
// schema changes bump schemaVersion in schema.go and users delete the
// database to adopt the new schema.
package store

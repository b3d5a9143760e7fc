// Package artifact owns every image file pastiche writes.
//
// Inputs and filter outputs live in the working area as <work>/<id>.<ext>;
// the persisted area holds a single last_saved.<ext> slot that each Save
// replaces wholesale. Writes go through a staging directory on the same
// filesystem and are renamed into place, so readers never see a partial
// file. The id to path mapping and the saved pointer are kept in the SQLite
// index provided by internal/store.
package artifact

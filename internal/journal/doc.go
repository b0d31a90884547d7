// Package journal persists the task to folder to share bindings that linkrelay
// manages.
//
// The journal is always read and written as a whole snapshot. Three backends
// honour the same Store contract: a JSON file (the default, guarded by an
// advisory file lock), SQLite, and Postgres.
package journal

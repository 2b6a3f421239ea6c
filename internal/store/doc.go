// Package store provides SQLite-backed local state for a d1lod process.
//
// The store holds everything a harvest needs to remember between runs:
//   - Documents: the cache of fetched science-metadata documents
//   - Cursors: the "since" timestamp the next harvest starts from
//   - Runs: one row per harvest run with its window, status and report
//   - Run failures: documents a run could not process
//
// The graph repositories are the system of record for entities; nothing
// here is authoritative for them.
//
// The database runs in WAL mode with synchronous=NORMAL and foreign keys
// enforced; the busy timeout defaults to five seconds (WithBusyTimeout).
// Schema upgrades are tracked in PRAGMA user_version.
//
// Timestamps are stored as fixed-width RFC 3339 text in UTC so that they
// order correctly as strings. Document keys are computed by ir.ContentID.
package store

// Package storage persists the scheduler's live task set between runs.
//
// Drivers:
//   - "memory": process-local, for tests and dry runs
//   - "file": one zstd-compressed file, replaced atomically on every save
//   - "sqlite": a SQLite database (modernc.org/sqlite, no cgo)
//
// Records reference the world by handle only; resolving them against the
// world is the scheduler's job after Restore.
package storage

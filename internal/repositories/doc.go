// Package repositories implements SQLite persistence for sync history.
//
// The reconciliation core never persists anything; the CLI hands each finished [models.SyncRun]
// to [RunRepository.Create] so operators can review past runs with `sync history`.
//
// Key Implementations:
//   - [RunRepository] : runs, their per-playlist outcomes, and the added or unmatched tracks
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and
// timestamps. The [NextSequence] function atomically increments per-table sequence counters in
// dedicated sequence tables.
package repositories

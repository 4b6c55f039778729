// Package tasks reconciles destination playlists against their sources with real-time progress reporting.
//
// # Core Operations
//
//  1. [MatchResolver.Resolve] : one catalog search per source track
//     - remote strategy trusts the catalog's top-ranked candidate
//     - similarity strategy also requires title and artists to score above a threshold
//     - search errors are flagged separately from confirmed misses
//
//  2. [ReconciliationEngine.Reconcile] : bring one destination playlist up to date
//     - creates the destination when the pair has no id yet
//     - lists existing catalog ids, the only dedup key
//     - resolves source tracks in order, queueing ids not yet present
//     - adds queued tracks in batches of at most [services.MaxBatchSize]
//
//  3. [SyncRunner.Run] : reconcile every configured pair once, in order
//
// # Failure Isolation
//
// Nothing here returns an error to the caller. Playlist-level failures (source fetch, destination
// listing, playlist creation) abort that pair only and land in [models.SyncOutcome.Err]. Batch
// failures are collected in [models.SyncOutcome.BatchErrors] and the remaining batches still run;
// added batches are never rolled back.
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct carries the pair label, phase, step counters, and optional data.
// Updates use select with default so a slow reader never stalls a sync.
package tasks

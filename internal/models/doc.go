// Package models defines the data types exchanged between the sync engine, its collaborators, and the CLI.
//
// Transient types, created and discarded within one reconciliation pass:
//   - [TrackRecord] : a track from the source page or the destination playlist
//   - [MatchResult] : the single best catalog candidate for a source track
//
// Run-scoped types:
//   - [PlaylistPair] : a configured source/destination pair, mutated only to cache a created destination id
//   - [SyncOutcome] : the per-playlist result handed back to the caller
//   - [SyncRun] : every outcome of one runner invocation, recorded by the CLI in the history store
package models

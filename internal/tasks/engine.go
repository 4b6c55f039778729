package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// EngineOption configures a [ReconciliationEngine].
type EngineOption func(*ReconciliationEngine)

// WithDryRun makes the engine read and resolve without creating playlists or adding tracks.
func WithDryRun(dryRun bool) EngineOption {
	return func(e *ReconciliationEngine) { e.dryRun = dryRun }
}

// WithBatchSize overrides the add batch size. Values outside 1..[services.MaxBatchSize] are clamped.
func WithBatchSize(size int) EngineOption {
	return func(e *ReconciliationEngine) {
		e.batchSize = max(1, min(size, services.MaxBatchSize))
	}
}

// WithLogger sets the engine's logger.
func WithLogger(l *log.Logger) EngineOption {
	return func(e *ReconciliationEngine) { e.logger = l }
}

// ReconciliationEngine brings one destination playlist up to date with its source.
type ReconciliationEngine struct {
	catalog   services.CatalogClient
	source    services.SourceProvider
	resolver  *MatchResolver
	logger    *log.Logger
	batchSize int
	dryRun    bool
}

// NewReconciliationEngine creates an engine over the given collaborators.
func NewReconciliationEngine(catalog services.CatalogClient, source services.SourceProvider, resolver *MatchResolver, opts ...EngineOption) *ReconciliationEngine {
	e := &ReconciliationEngine{
		catalog:   catalog,
		source:    source,
		resolver:  resolver,
		logger:    log.Default(),
		batchSize: services.MaxBatchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// DryRun reports whether the engine skips writes.
func (e *ReconciliationEngine) DryRun() bool {
	return e.dryRun
}

// sendProgress sends a progress update through the channel without blocking.
func (e *ReconciliationEngine) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Reconcile adds every resolvable source track missing from the destination playlist.
//
// Failures are recorded on the returned outcome rather than returned: source fetch, destination
// listing and playlist creation abort the pair; a failed batch marks it failed and the remaining
// batches still run. Tracks of a failed batch go to FailedTracks and are not counted as added.
// A created destination id is written back into pair.
func (e *ReconciliationEngine) Reconcile(ctx context.Context, pair *models.PlaylistPair, progress chan<- ProgressUpdate) *models.SyncOutcome {
	outcome := &models.SyncOutcome{
		Pair:          *pair,
		DestinationID: pair.DestinationID,
		DryRun:        e.dryRun,
	}
	logger := e.logger.With("playlist", pair.Label())

	fail := func(err error) *models.SyncOutcome {
		outcome.Failed = true
		outcome.Err = err
		logger.Error("playlist sync aborted", "error", err)
		return outcome
	}

	if e.catalog == nil || e.source == nil || e.resolver == nil {
		return fail(fmt.Errorf("%w: engine is missing a collaborator", shared.ErrServiceUnavailable))
	}

	if pair.DestinationID == "" && !e.dryRun {
		e.sendProgress(progress, createDestinationUpdate(pair))
		id, err := e.createDestination(ctx, pair)
		if err != nil {
			return fail(err)
		}
		pair.DestinationID = id
		outcome.DestinationID = id
		outcome.Created = true
		outcome.Pair.DestinationID = id
		logger.Info("created destination playlist", "id", id)
		e.sendProgress(progress, createdDestinationUpdate(pair))
	}

	existingIDs := make(map[string]struct{})
	if pair.DestinationID != "" {
		existing, err := e.catalog.ListTracks(ctx, pair.DestinationID)
		if err != nil {
			return fail(fmt.Errorf("%w: %w", shared.ErrDestinationList, err))
		}
		for _, tr := range existing {
			if tr.CatalogID != "" {
				existingIDs[tr.CatalogID] = struct{}{}
			}
		}
		outcome.ExistingCount = len(existing)
	}
	e.sendProgress(progress, listDestinationUpdate(pair, outcome.ExistingCount))

	e.sendProgress(progress, fetchSourceUpdate(pair, nil))
	sourceTracks, err := e.source.FetchTracks(ctx, pair.Source)
	if err != nil {
		if !errors.Is(err, shared.ErrSourceFetch) {
			err = fmt.Errorf("%w: %w", shared.ErrSourceFetch, err)
		}
		return fail(err)
	}
	outcome.SourceCount = len(sourceTracks)
	e.sendProgress(progress, fetchSourceUpdate(pair, sourceTracks))

	var queued []models.TrackRecord
	var newURIs []string
	for i, track := range sourceTracks {
		e.sendProgress(progress, resolveTrackUpdate(pair, i+1, len(sourceTracks), track))

		res := e.resolver.Resolve(ctx, track, e.catalog)
		switch {
		case res.SearchFailed:
			logger.Warn("search failed", "track", track.String(), "error", res.Err)
			outcome.NotFound = append(outcome.NotFound, track)
			outcome.SearchFailed = append(outcome.SearchFailed, track)
		case !res.Resolved():
			logger.Debug("not found", "track", track.String(), "rejected", res.Rejected)
			outcome.NotFound = append(outcome.NotFound, track)
		default:
			if _, ok := existingIDs[res.Match.ID]; ok {
				logger.Debug("already present", "track", track.String(), "id", res.Match.ID)
				outcome.SkippedCount++
				continue
			}
			logger.Debug("queued for addition", "track", track.String(), "id", res.Match.ID)
			existingIDs[res.Match.ID] = struct{}{}
			newURIs = append(newURIs, res.Match.URI)
			queued = append(queued, track.WithMatch(res.Match))
		}
	}

	outcome.Batches = Batches(newURIs, e.batchSize)

	if e.dryRun || len(outcome.Batches) == 0 {
		outcome.AddedTracks = queued
		outcome.AddedCount = len(queued)
		logger.Info("reconciled", "added", outcome.AddedCount, "not_found", len(outcome.NotFound), "dry_run", e.dryRun)
		e.sendProgress(progress, completedUpdate(outcome))
		return outcome
	}

	offset := 0
	for i, batch := range outcome.Batches {
		tracks := queued[offset : offset+len(batch)]
		offset += len(batch)

		err := e.catalog.AddTracks(ctx, pair.DestinationID, batch)
		if err == nil {
			outcome.AddedTracks = append(outcome.AddedTracks, tracks...)
			outcome.AddedCount += len(tracks)
		} else {
			outcome.FailedTracks = append(outcome.FailedTracks, tracks...)
			err = fmt.Errorf("%w: batch %d of %d: %w", shared.ErrBatchAdd, i+1, len(outcome.Batches), err)
			outcome.BatchErrors = append(outcome.BatchErrors, err)
			outcome.Failed = true
			logger.Error("batch add failed", "batch", i+1, "size", len(batch), "error", err)
		}
		e.sendProgress(progress, addBatchUpdate(pair, i+1, len(outcome.Batches), batch, err))
	}

	logger.Info("reconciled", "added", outcome.AddedCount, "not_found", len(outcome.NotFound), "failed", outcome.Failed)
	e.sendProgress(progress, completedUpdate(outcome))
	return outcome
}

// createDestination creates the destination playlist for pair under the authenticated owner.
func (e *ReconciliationEngine) createDestination(ctx context.Context, pair *models.PlaylistPair) (string, error) {
	owner, err := e.catalog.CurrentOwnerID(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: owner lookup: %w", shared.ErrPlaylistCreate, err)
	}
	if owner == "" {
		return "", fmt.Errorf("%w: no owner id", shared.ErrPlaylistCreate)
	}

	name := pair.Name
	if name == "" {
		name = pair.Label()
	}

	id, err := e.catalog.CreatePlaylist(ctx, owner, name, pair.Description)
	if err != nil {
		return "", fmt.Errorf("%w: %w", shared.ErrPlaylistCreate, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: catalog returned no playlist id", shared.ErrPlaylistCreate)
	}
	return id, nil
}

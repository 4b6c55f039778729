package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
)

// Reconciler reconciles a single playlist pair.
type Reconciler interface {
	Reconcile(ctx context.Context, pair *models.PlaylistPair, progress chan<- ProgressUpdate) *models.SyncOutcome
}

// SyncRunner reconciles every configured pair once, in order.
type SyncRunner struct {
	reconciler Reconciler
	dryRun     bool
	logger     *log.Logger
	now        func() time.Time
}

// NewSyncRunner creates a runner over reconciler.
func NewSyncRunner(reconciler Reconciler, logger *log.Logger) *SyncRunner {
	if logger == nil {
		logger = log.Default()
	}
	r := &SyncRunner{reconciler: reconciler, logger: logger, now: time.Now}
	if e, ok := reconciler.(*ReconciliationEngine); ok {
		r.dryRun = e.DryRun()
	}
	return r
}

// Run reconciles each pair exactly once. A failed pair never stops the ones after it.
//
// Pairs are mutated in place when a destination playlist is created.
func (r *SyncRunner) Run(ctx context.Context, pairs []*models.PlaylistPair, progress chan<- ProgressUpdate) *models.SyncRun {
	run := &models.SyncRun{
		ID:        shared.GenerateID(),
		StartedAt: r.now().UTC(),
		DryRun:    r.dryRun,
		Outcomes:  make([]*models.SyncOutcome, 0, len(pairs)),
	}

	r.logger.Info("sync started", "run", run.ID, "playlists", len(pairs), "dry_run", r.dryRun)

	for _, pair := range pairs {
		if pair == nil {
			continue
		}
		run.Outcomes = append(run.Outcomes, r.reconciler.Reconcile(ctx, pair, progress))
	}

	run.FinishedAt = r.now().UTC()
	added, notFound, failed := run.Totals()
	r.logger.Info("sync finished", "run", run.ID, "added", added, "not_found", notFound, "failed", failed,
		"duration", run.FinishedAt.Sub(run.StartedAt))

	return run
}

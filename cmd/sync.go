package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/desertthunder/plsync/internal/formatter"
	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/desertthunder/plsync/internal/tasks"
	"github.com/urfave/cli/v3"
)

// SyncRun reconciles the configured playlists, prints the report, and records the run.
//
// Created destination ids and refreshed tokens are written back to the config file.
// Returns [shared.ErrSyncIncomplete] when any playlist failed.
func (r *Runner) SyncRun(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if err != nil {
		return err
	}

	pairs, err := config.SelectPlaylists(cmd.StringSlice("playlist")...)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return fmt.Errorf("%w: no [[playlists]] configured in %s", shared.ErrInvalidConfig, r.configPath)
	}

	resolver, err := tasks.NewMatchResolver(config.Sync.MatchStrategy, config.Sync.SimilarityThreshold)
	if err != nil {
		return err
	}

	catalog, err := r.catalogClient(ctx, config)
	if err != nil {
		return err
	}

	dryRun := cmd.Bool("dry-run")
	asJSON := cmd.Bool("json")

	engine := tasks.NewReconciliationEngine(catalog, r.sourceProvider(config), resolver,
		tasks.WithDryRun(dryRun),
		tasks.WithLogger(r.logger),
	)
	syncRunner := tasks.NewSyncRunner(engine, r.logger)

	r.logger.Info("starting sync", "playlists", len(pairs), "strategy", resolver.Strategy(), "dry_run", dryRun)

	var progress chan tasks.ProgressUpdate
	done := make(chan struct{})
	if asJSON {
		close(done)
	} else {
		progress = make(chan tasks.ProgressUpdate, 64)
		go func() {
			defer close(done)
			for update := range progress {
				r.printProgress(update)
			}
		}()
	}

	run := syncRunner.Run(ctx, pairs, progress)
	if progress != nil {
		close(progress)
	}
	<-done

	saveErr := r.writeBack(run)

	if !cmd.Bool("no-history") {
		r.recordRun(config, run)
	}

	if path := cmd.String("report"); path != "" {
		if err := formatter.WriteReport(run, path); err != nil {
			r.logger.Error("failed to write report", "path", path, "error", err)
		} else {
			r.logger.Info("report written", "path", path)
		}
	}

	if asJSON {
		if err := r.writeJSON(run, true); err != nil {
			return err
		}
	} else {
		r.writePlain("\n")
		if err := formatter.RenderRun(r.output, run); err != nil {
			return err
		}
	}

	if saveErr != nil {
		return fmt.Errorf("failed to save config: %w", saveErr)
	}

	if run.Failed() {
		_, _, failed := run.Totals()
		return fmt.Errorf("%w: %d of %d playlists", shared.ErrSyncIncomplete, failed, len(run.Outcomes))
	}
	return nil
}

// writeBack saves the config when the run created destinations or the token was refreshed.
func (r *Runner) writeBack(run *models.SyncRun) error {
	created := false
	for _, o := range run.Outcomes {
		if o.Created {
			created = true
			r.logger.Info("recording created destination", "playlist", o.Pair.Label(), "id", o.DestinationID)
		}
	}

	r.mu.Lock()
	changed := created || r.tokenChanged
	r.tokenChanged = false
	r.mu.Unlock()

	if !changed {
		return nil
	}
	return r.saveConfig()
}

// recordRun stores run in the history database. Failures are logged, never returned.
func (r *Runner) recordRun(config *shared.Config, run *models.SyncRun) {
	db, err := shared.OpenHistory(config.Database)
	if err != nil {
		r.logger.Warn("run not recorded", "error", err)
		return
	}
	defer db.Close()

	seq, err := repositories.NewRunRepository(db).Create(run)
	if err != nil {
		r.logger.Warn("run not recorded", "error", err)
		return
	}
	r.logger.Debug("run recorded", "id", run.ID, "sequence", seq)
}

func (r *Runner) printProgress(update tasks.ProgressUpdate) {
	switch update.Phase {
	case tasks.CreateDestination:
		r.writePlain("📝 [%s] %s\n", update.Playlist, update.Message)
	case tasks.FetchSource:
		r.writePlain("📥 [%s] %s\n", update.Playlist, update.Message)
	case tasks.ResolveTracks:
		r.writePlain("   🔍 %s\n", update.Message)
	case tasks.AddTracks:
		r.writePlain("   ➕ %s\n", update.Message)
	case tasks.Completed:
		r.writePlain("✓ %s\n", update.Message)
	}
}

// historyConfig returns the loaded config, or the defaults when no config file exists.
func (r *Runner) historyConfig() (*shared.Config, error) {
	config, err := r.loadConfig()
	if errors.Is(err, shared.ErrMissingConfig) {
		return shared.DefaultConfig(), nil
	}
	return config, err
}

// SyncHistory lists recent runs, newest first.
func (r *Runner) SyncHistory(ctx context.Context, cmd *cli.Command) error {
	config, err := r.historyConfig()
	if err != nil {
		return err
	}

	db, err := shared.OpenHistory(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer db.Close()

	runs, err := repositories.NewRunRepository(db).List(cmd.Int("limit"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if runs == nil {
			runs = []*repositories.RunSummary{}
		}
		return r.writeJSON(runs, true)
	}
	return formatter.RenderHistory(r.output, runs)
}

// SyncShow prints the stored report of one run.
func (r *Runner) SyncShow(ctx context.Context, cmd *cli.Command) error {
	id := strings.TrimSpace(cmd.StringArg("id"))
	if id == "" {
		return fmt.Errorf("%w: run id is required", shared.ErrMissingArgument)
	}

	config, err := r.historyConfig()
	if err != nil {
		return err
	}

	db, err := shared.OpenHistory(config.Database)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer db.Close()

	run, err := repositories.NewRunRepository(db).Get(id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(run, true)
	}
	return formatter.RenderRun(r.output, run)
}

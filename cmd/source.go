package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SourceTracks scrapes and prints the tracks of a source playlist.
//
// The config is optional here; without one the scraper runs with the embedded defaults.
func (r *Runner) SourceTracks(ctx context.Context, cmd *cli.Command) error {
	locator := strings.TrimSpace(cmd.StringArg("locator"))
	if locator == "" {
		return fmt.Errorf("%w: playlist URL is required", shared.ErrMissingArgument)
	}

	config, err := r.loadConfig()
	if err != nil {
		r.logger.Debug("using default config", "error", err)
		config = shared.DefaultConfig()
	}

	r.logger.Info("fetching source playlist", "locator", locator)

	tracks, err := r.sourceProvider(config).FetchTracks(ctx, locator)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(tracks, cmd.Bool("pretty"))
	}

	r.writePlain("Found %d tracks:\n\n", len(tracks))
	for i, tr := range tracks {
		r.writePlain("%d. %s - %s\n", i+1, tr.ArtistString(), tr.Title)
	}
	return nil
}

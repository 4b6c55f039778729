package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the example configuration to the config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := r.configPath
	if path == "" {
		path = defaultConfigPath
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", path)

	r.writePlain("✓ Config written to %s\n", path)
	r.writePlainln("Next steps:")
	r.writePlain("1. Set credentials.spotify.client_id and client_secret\n")
	r.writePlain("2. Add [[playlists]] entries with Apple Music playlist URLs\n")
	r.writePlain("3. Run 'plsync spotify auth'\n")
	return nil
}

// SetupDatabase initializes the history database and runs migrations.
//
// A missing config file falls back to the embedded defaults.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.loadConfig()
	if errors.Is(err, shared.ErrMissingConfig) {
		r.logger.Warn("config file not found, using defaults", "path", r.configPath)
		config = shared.DefaultConfig()
	} else if err != nil {
		return err
	}

	r.logger.Info("initializing database", "path", config.Database.Path)

	db, err := shared.OpenHistory(config.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	r.logger.Infof("setup complete for database: %v", config.Database.Path)
	r.writePlain("✓ History database ready at %s\n", config.Database.Path)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

const defaultConfigPath = "config.toml"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	catalog    services.CatalogClient
	source     services.SourceProvider
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer

	mu           sync.Mutex
	tokenChanged bool
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog and Source replace the Spotify and Apple Music clients built from the config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Catalog    services.CatalogClient
	Source     services.SourceProvider
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		catalog:    opts.Catalog,
		source:     opts.Source,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, spotifyCommand, sourceCommand, syncCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// before resolves the config path from the global flag and applies the configured log level.
func (r *Runner) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if path := cmd.String("config"); path != "" {
		r.configPath = path
	}
	if r.configPath == "" {
		r.configPath = defaultConfigPath
	}
	if level := cmd.String("log-level"); level != "" {
		if err := shared.SetLogLevel(r.logger, level); err != nil {
			return ctx, err
		}
	}
	return ctx, nil
}

// loadConfig returns the injected config, or reads it from the config path.
func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	path := r.configPath
	if path == "" {
		path = defaultConfigPath
	}

	config, err := shared.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s (run 'plsync setup config' to create one)", shared.ErrMissingConfig, path)
	}
	if err != nil {
		return nil, err
	}

	if err := shared.SetLogLevel(r.logger, config.Log.Level); err != nil {
		r.logger.Warn("ignoring log level from config", "error", err)
	}

	r.config = config
	r.configPath = path
	return config, nil
}

// saveConfig persists the config when it was loaded from disk.
func (r *Runner) saveConfig() error {
	if r.configPath == "" {
		return nil
	}
	if err := shared.SaveConfig(r.configPath, r.config); err != nil {
		return err
	}
	r.logger.Debug("config saved", "path", r.configPath)
	return nil
}

// newSpotify builds an unauthenticated Spotify client from the config.
func (r *Runner) newSpotify(config *shared.Config) (*services.SpotifyCatalog, error) {
	catalog, err := services.NewSpotifyCatalog(
		config.Credentials.Spotify.Map(),
		services.WithHTTPClient(r.httpClient),
		services.WithRateLimit(config.Sync.RequestsPerSecond),
		services.WithSpotifyLogger(shared.WithLogger(r.logger, "service", "spotify")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Spotify client: %w", err)
	}
	return catalog, nil
}

// spotifyClient returns an authenticated Spotify client whose refreshed tokens are copied into the config.
func (r *Runner) spotifyClient(ctx context.Context, config *shared.Config) (*services.SpotifyCatalog, error) {
	catalog, err := r.newSpotify(config)
	if err != nil {
		return nil, err
	}

	token := config.Credentials.Spotify.Token()
	if token == nil {
		return nil, fmt.Errorf("%w: run 'plsync spotify auth' first", shared.ErrNotAuthenticated)
	}

	catalog.SetTokenRefreshCallback(r.onTokenRefresh)
	if err := catalog.Authenticate(ctx, token); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (r *Runner) onTokenRefresh(token *oauth2.Token) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.config.Credentials.Spotify.Update(token); err != nil {
		r.logger.Warn("ignoring refreshed token", "error", err)
		return
	}
	r.tokenChanged = true
	r.logger.Debug("spotify token refreshed", "expiry", token.Expiry)
}

// catalogClient returns the injected catalog or an authenticated Spotify client.
func (r *Runner) catalogClient(ctx context.Context, config *shared.Config) (services.CatalogClient, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}
	return r.spotifyClient(ctx, config)
}

// sourceProvider returns the injected source or an Apple Music scraper tuned by the config.
func (r *Runner) sourceProvider(config *shared.Config) services.SourceProvider {
	if r.source != nil {
		return r.source
	}
	return services.NewAppleMusicSource(
		services.WithSourceHTTPClient(r.httpClient),
		services.WithSourceRateLimit(config.Sync.RequestsPerSecond),
		services.WithUserAgent(config.Sync.UserAgent),
		services.WithSourceLogger(shared.WithLogger(r.logger, "service", "apple_music")),
	)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

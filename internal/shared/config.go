package shared

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/desertthunder/plsync/internal/models"
	"golang.org/x/oauth2"
)

//go:embed config.example.toml
var exampleConf []byte

// Matching strategies for resolving source tracks against the catalog.
const (
	StrategyRemote     = "remote"     // trust the catalog's top-ranked candidate
	StrategySimilarity = "similarity" // also require title/artist similarity above the threshold
)

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig      `toml:"credentials"`
	Database    DatabaseConfig         `toml:"database"`
	Server      ServerConfig           `toml:"server"`
	Log         LogConfig              `toml:"log"`
	Sync        SyncConfig             `toml:"sync"`
	Playlists   []*models.PlaylistPair `toml:"playlists"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials and the last issued token.
type SpotifyConfig struct {
	ClientID     string    `toml:"client_id"`
	ClientSecret string    `toml:"client_secret"`
	RedirectURI  string    `toml:"redirect_uri"`
	AccessToken  string    `toml:"access_token"`
	RefreshToken string    `toml:"refresh_token"`
	TokenType    string    `toml:"token_type"`
	Expiry       time.Time `toml:"expiry"`
}

// Map returns the client credentials in the shape expected by services.NewSpotifyCatalog.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// Token returns the stored [oauth2.Token], or nil when no token has been issued yet.
func (s SpotifyConfig) Token() *oauth2.Token {
	if s.AccessToken == "" && s.RefreshToken == "" {
		return nil
	}
	return &oauth2.Token{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		Expiry:       s.Expiry,
	}
}

// Update stores a freshly issued or refreshed token.
//
// Providers may omit the refresh token on refresh, in which case the stored one is kept.
func (s *SpotifyConfig) Update(token *oauth2.Token) error {
	if token == nil || token.AccessToken == "" {
		return fmt.Errorf("%w: empty token", ErrInvalidCredentials)
	}
	s.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		s.RefreshToken = token.RefreshToken
	}
	s.TokenType = token.TokenType
	s.Expiry = token.Expiry
	return nil
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains settings for the local OAuth callback listener.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// SyncConfig tunes matching and request pacing.
type SyncConfig struct {
	MatchStrategy       string  `toml:"match_strategy"`
	SimilarityThreshold int     `toml:"similarity_threshold"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
	UserAgent           string  `toml:"user_agent"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	config.Playlists = nil
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// SaveConfig writes the configuration back to path, used to persist tokens and created destination ids.
func SaveConfig(path string, config *Config) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the sync settings and playlist entries.
func (c *Config) Validate() error {
	switch c.Sync.MatchStrategy {
	case "", StrategyRemote, StrategySimilarity:
	default:
		return fmt.Errorf("%w: unknown match_strategy %q", ErrInvalidConfig, c.Sync.MatchStrategy)
	}

	if c.Sync.SimilarityThreshold < 0 || c.Sync.SimilarityThreshold > 100 {
		return fmt.Errorf("%w: similarity_threshold must be within 0-100, got %d", ErrInvalidConfig, c.Sync.SimilarityThreshold)
	}

	if c.Sync.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: requests_per_second must not be negative", ErrInvalidConfig)
	}

	for i, p := range c.Playlists {
		if p == nil || p.Source == "" {
			return fmt.Errorf("%w: playlists[%d] is missing a source", ErrInvalidConfig, i)
		}
	}

	return nil
}

// SelectPlaylists returns the configured pairs whose name, source, or destination id equals one of names.
//
// With no names every pair is returned. The returned pointers alias the config entries.
func (c *Config) SelectPlaylists(names ...string) ([]*models.PlaylistPair, error) {
	if len(names) == 0 {
		return c.Playlists, nil
	}

	var selected []*models.PlaylistPair
	for _, name := range names {
		found := false
		for _, p := range c.Playlists {
			if p.Name == name || p.Source == name || (p.DestinationID != "" && p.DestinationID == name) {
				selected = append(selected, p)
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("%w: no configured playlist named %q", ErrInvalidArgument, name)
			if hints := Suggest(name, c.playlistNames(), 3); len(hints) > 0 {
				err = fmt.Errorf("%w (did you mean %s?)", err, strings.Join(hints, ", "))
			}
			return nil, err
		}
	}

	return selected, nil
}

func (c *Config) playlistNames() []string {
	names := make([]string, 0, len(c.Playlists))
	for _, p := range c.Playlists {
		if p.Name != "" {
			names = append(names, p.Name)
		}
	}
	return names
}

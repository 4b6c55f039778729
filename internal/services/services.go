// package services defines the catalog and source interfaces the sync engine depends on
//
// Spotify (destination catalog), Apple Music (scraped source)
package services

import (
	"context"

	"github.com/desertthunder/plsync/internal/models"
)

// MaxBatchSize is the largest number of track URIs a single AddTracks call may carry.
const MaxBatchSize = 50

// CatalogClient is the destination streaming catalog: it lists, searches, and mutates playlists.
type CatalogClient interface {
	// ListTracks returns every track currently in the destination playlist, across all pages.
	// Each returned record carries its catalog id.
	ListTracks(ctx context.Context, destinationID string) ([]models.TrackRecord, error)

	// Search returns the catalog's top candidate for title and artists.
	// A confirmed miss is the zero [models.MatchResult] with a nil error.
	Search(ctx context.Context, title string, artists []string) (models.MatchResult, error)

	// AddTracks appends up to [MaxBatchSize] URIs to the destination playlist in one request.
	AddTracks(ctx context.Context, destinationID string, uris []string) error

	// CreatePlaylist creates an empty playlist owned by ownerID and returns its id.
	CreatePlaylist(ctx context.Context, ownerID, name, description string) (string, error)

	// CurrentOwnerID returns the id of the authenticated account.
	CurrentOwnerID(ctx context.Context) (string, error)
}

// Searcher is the subset of [CatalogClient] needed to resolve a track.
type Searcher interface {
	Search(ctx context.Context, title string, artists []string) (models.MatchResult, error)
}

// SourceProvider fetches the ordered track list of a source playlist.
//
// Implementations skip items they cannot parse; only a failure to read the playlist itself is an error.
type SourceProvider interface {
	FetchTracks(ctx context.Context, locator string) ([]models.TrackRecord, error)
}

// SourceFunc adapts a function to [SourceProvider].
type SourceFunc func(ctx context.Context, locator string) ([]models.TrackRecord, error)

// FetchTracks calls f.
func (f SourceFunc) FetchTracks(ctx context.Context, locator string) ([]models.TrackRecord, error) {
	return f(ctx, locator)
}

// package testing contains shared testing utilities
package testing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// URIPrefix is prepended to catalog ids to form the fake catalog's track URIs.
const URIPrefix = "spotify:track:"

// FakeCatalog is an in-memory [services.CatalogClient].
//
// Search resolves by exact title. Playlists store catalog ids in insertion order.
type FakeCatalog struct {
	mu sync.Mutex

	Owner     string
	OwnerErr  error
	CreateErr error
	Tracks    map[string]models.MatchResult // title → candidate
	Playlists map[string][]string           // destination id → catalog ids

	SearchErrs map[string]error // title → error
	ListErrs   map[string]error // destination id → error
	AddErrs    map[int]error    // zero-based AddTracks call index → error

	SearchCalls int
	AddCalls    [][]string
	Created     []string
}

// NewFakeCatalog returns an empty catalog owned by "owner".
func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{
		Owner:      "owner",
		Tracks:     make(map[string]models.MatchResult),
		Playlists:  make(map[string][]string),
		SearchErrs: make(map[string]error),
		ListErrs:   make(map[string]error),
		AddErrs:    make(map[int]error),
	}
}

// WithTrack registers a searchable track whose catalog id is id.
func (f *FakeCatalog) WithTrack(title, id string, artists ...string) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tracks[title] = models.NewMatchResult(id, URIPrefix+id, title, artists)
	return f
}

// WithPlaylist registers a destination playlist holding ids.
func (f *FakeCatalog) WithPlaylist(id string, ids ...string) *FakeCatalog {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Playlists[id] = append([]string(nil), ids...)
	return f
}

// PlaylistIDs returns a copy of the ids in playlist id.
func (f *FakeCatalog) PlaylistIDs(id string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Playlists[id]...)
}

func (f *FakeCatalog) ListTracks(ctx context.Context, destinationID string) ([]models.TrackRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ListErrs[destinationID]; err != nil {
		return nil, err
	}
	ids, ok := f.Playlists[destinationID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, destinationID)
	}

	records := make([]models.TrackRecord, 0, len(ids))
	for _, id := range ids {
		records = append(records, models.TrackRecord{Title: id, Artists: []string{"fake"}, CatalogID: id, URI: URIPrefix + id})
	}
	return records, nil
}

func (f *FakeCatalog) Search(ctx context.Context, title string, artists []string) (models.MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.SearchCalls++
	if err := f.SearchErrs[title]; err != nil {
		return models.MatchResult{}, fmt.Errorf("%w: %w", shared.ErrSearchFailed, err)
	}
	return f.Tracks[title], nil
}

func (f *FakeCatalog) AddTracks(ctx context.Context, destinationID string, uris []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(uris) > services.MaxBatchSize {
		return fmt.Errorf("%w: batch of %d", shared.ErrInvalidArgument, len(uris))
	}

	call := len(f.AddCalls)
	f.AddCalls = append(f.AddCalls, append([]string(nil), uris...))
	if err := f.AddErrs[call]; err != nil {
		return err
	}

	if _, ok := f.Playlists[destinationID]; !ok {
		return fmt.Errorf("%w: %s", shared.ErrPlaylistNotFound, destinationID)
	}
	for _, uri := range uris {
		f.Playlists[destinationID] = append(f.Playlists[destinationID], strings.TrimPrefix(uri, URIPrefix))
	}
	return nil
}

func (f *FakeCatalog) CreatePlaylist(ctx context.Context, ownerID, name, description string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.CreateErr != nil {
		return "", f.CreateErr
	}
	id := fmt.Sprintf("created-%d", len(f.Created)+1)
	f.Created = append(f.Created, id)
	f.Playlists[id] = nil
	return id, nil
}

func (f *FakeCatalog) CurrentOwnerID(ctx context.Context) (string, error) {
	if f.OwnerErr != nil {
		return "", f.OwnerErr
	}
	return f.Owner, nil
}

// StaticSource is a [services.SourceProvider] serving fixed track lists by locator.
type StaticSource struct {
	Lists map[string][]models.TrackRecord
	Errs  map[string]error
	Calls []string
}

// NewStaticSource returns a source with no playlists.
func NewStaticSource() *StaticSource {
	return &StaticSource{Lists: make(map[string][]models.TrackRecord), Errs: make(map[string]error)}
}

// With registers the tracks titled titles (artist "Artist") under locator.
func (s *StaticSource) With(locator string, titles ...string) *StaticSource {
	s.Lists[locator] = Tracks(titles...)
	return s
}

func (s *StaticSource) FetchTracks(ctx context.Context, locator string) ([]models.TrackRecord, error) {
	s.Calls = append(s.Calls, locator)
	if err := s.Errs[locator]; err != nil {
		return nil, err
	}
	tracks, ok := s.Lists[locator]
	if !ok {
		return nil, fmt.Errorf("%w: unknown locator %s", shared.ErrSourceFetch, locator)
	}
	return tracks, nil
}

// Tracks builds unresolved source records with the given titles.
func Tracks(titles ...string) []models.TrackRecord {
	tracks := make([]models.TrackRecord, 0, len(titles))
	for _, title := range titles {
		tracks = append(tracks, models.NewTrackRecord(title, "Artist"))
	}
	return tracks
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

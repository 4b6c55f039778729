// package models defines the data model for playlist reconciliation
package models

import (
	"fmt"
	"strings"
	"time"
)

// TrackRecord is the normalized representation of a track from either side of a sync.
//
// CatalogID and URI are set only for tracks known to exist in the destination catalog.
type TrackRecord struct {
	Title     string   `json:"title"`
	Artists   []string `json:"artists"`
	CatalogID string   `json:"catalog_id,omitempty"`
	URI       string   `json:"uri,omitempty"`
}

// NewTrackRecord builds an unresolved [TrackRecord], trimming whitespace and dropping blank artists.
func NewTrackRecord(title string, artists ...string) TrackRecord {
	cleaned := make([]string, 0, len(artists))
	for _, a := range artists {
		if a = strings.TrimSpace(a); a != "" {
			cleaned = append(cleaned, a)
		}
	}
	return TrackRecord{Title: strings.TrimSpace(title), Artists: cleaned}
}

// Validate checks that the title is non-empty and at least one artist is present.
func (t TrackRecord) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return fmt.Errorf("track title is required")
	}
	for _, a := range t.Artists {
		if strings.TrimSpace(a) != "" {
			return nil
		}
	}
	return fmt.Errorf("track %q has no artists", t.Title)
}

// Resolved reports whether the track carries a destination catalog id.
func (t TrackRecord) Resolved() bool {
	return t.CatalogID != ""
}

// ArtistString joins the artist list for display.
func (t TrackRecord) ArtistString() string {
	return strings.Join(t.Artists, ", ")
}

func (t TrackRecord) String() string {
	return fmt.Sprintf("%s by %s", t.Title, t.ArtistString())
}

// WithMatch returns a copy of the track resolved to the given match.
func (t TrackRecord) WithMatch(m MatchResult) TrackRecord {
	t.CatalogID = m.ID
	t.URI = m.URI
	return t
}

// PlaylistPair links a source playlist to its destination playlist.
//
// An empty DestinationID means the destination must be created before syncing;
// the created id is cached back into the pair for the rest of the run.
type PlaylistPair struct {
	Source        string `toml:"source" json:"source"`
	DestinationID string `toml:"destination_id" json:"destination_id"`
	Name          string `toml:"name" json:"name"`
	Description   string `toml:"description" json:"description"`
}

// Label returns the most readable identifier for the pair.
func (p *PlaylistPair) Label() string {
	switch {
	case p.Name != "":
		return p.Name
	case p.DestinationID != "":
		return p.DestinationID
	default:
		return p.Source
	}
}

// MatchResult is the outcome of a single catalog search.
//
// ID and URI are either both set (found) or both empty (not found).
// Title and Artists describe the candidate when the catalog returns them.
type MatchResult struct {
	ID      string   `json:"id,omitempty"`
	URI     string   `json:"uri,omitempty"`
	Title   string   `json:"title,omitempty"`
	Artists []string `json:"artists,omitempty"`
}

// NewMatchResult returns a found result, or the zero (not found) result when either id or uri is empty.
func NewMatchResult(id, uri, title string, artists []string) MatchResult {
	if id == "" || uri == "" {
		return MatchResult{}
	}
	return MatchResult{ID: id, URI: uri, Title: title, Artists: artists}
}

// Found reports whether the result identifies a catalog track.
func (m MatchResult) Found() bool {
	return m.ID != "" && m.URI != ""
}

// SyncOutcome is the per-playlist result of a reconciliation pass.
type SyncOutcome struct {
	Pair          PlaylistPair  `json:"pair"`
	DestinationID string        `json:"destination_id"`
	Created       bool          `json:"created"`
	DryRun        bool          `json:"dry_run"`
	SourceCount   int           `json:"source_count"`
	ExistingCount int           `json:"existing_count"`
	SkippedCount  int           `json:"skipped_count"`
	AddedCount    int           `json:"added_count"`
	AddedTracks   []TrackRecord `json:"added_tracks"`
	FailedTracks  []TrackRecord `json:"failed_tracks,omitempty"`
	NotFound      []TrackRecord `json:"not_found"`
	SearchFailed  []TrackRecord `json:"search_failed"`
	Batches       [][]string    `json:"batches,omitempty"`
	BatchErrors   []error       `json:"-"`
	Failed        bool          `json:"failed"`
	Err           error         `json:"-"`
}

// ErrorMessage describes why the playlist failed, or returns "" when it did not.
func (o *SyncOutcome) ErrorMessage() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	if len(o.BatchErrors) > 0 {
		return fmt.Sprintf("%d of %d batches failed", len(o.BatchErrors), len(o.Batches))
	}
	return ""
}

// SyncRun is one pass of the runner over every configured pair.
type SyncRun struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	DryRun     bool           `json:"dry_run"`
	Outcomes   []*SyncOutcome `json:"outcomes"`
}

// Failed reports whether any playlist in the run failed.
func (r *SyncRun) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Failed {
			return true
		}
	}
	return false
}

// Totals sums added, not found, and failed playlists across the run.
func (r *SyncRun) Totals() (added, notFound, failed int) {
	for _, o := range r.Outcomes {
		added += o.AddedCount
		notFound += len(o.NotFound)
		if o.Failed {
			failed++
		}
	}
	return added, notFound, failed
}

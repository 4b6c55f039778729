package tasks

import (
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
)

// ProgressUpdate represents a progress event during a sync run.
//
// Used to send real-time updates to the CLI layer for display.
type ProgressUpdate struct {
	Playlist string // Label of the pair being reconciled
	Phase    Phase  // Operation phase
	Step     int    // Current step number within phase
	Total    int    // Total steps in this phase
	Message  string // Human-readable message for display
	Data     any    // Optional phase-specific data
}

// Operation phase enumeration
type Phase int

const (
	CreateDestination Phase = iota
	ListDestination
	FetchSource
	ResolveTracks
	AddTracks
	Completed
)

func (p Phase) String() string {
	switch p {
	case CreateDestination:
		return "create_destination"
	case ListDestination:
		return "list_destination"
	case FetchSource:
		return "fetch_source"
	case ResolveTracks:
		return "resolve_tracks"
	case AddTracks:
		return "add_tracks"
	case Completed:
		return "completed"
	default:
		return ""
	}
}

func createDestinationUpdate(pair *models.PlaylistPair) ProgressUpdate {
	return ProgressUpdate{
		Playlist: pair.Label(),
		Phase:    CreateDestination,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Creating destination playlist %q...", pair.Name),
	}
}

func createdDestinationUpdate(pair *models.PlaylistPair) ProgressUpdate {
	return ProgressUpdate{
		Playlist: pair.Label(),
		Phase:    CreateDestination,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Playlist created: %s (ID: %s)", pair.Name, pair.DestinationID),
		Data:     pair.DestinationID,
	}
}

func listDestinationUpdate(pair *models.PlaylistPair, existing int) ProgressUpdate {
	return ProgressUpdate{
		Playlist: pair.Label(),
		Phase:    ListDestination,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Destination has %d tracks", existing),
	}
}

func fetchSourceUpdate(pair *models.PlaylistPair, tracks []models.TrackRecord) ProgressUpdate {
	if tracks == nil {
		return ProgressUpdate{
			Playlist: pair.Label(),
			Phase:    FetchSource,
			Message:  "Fetching source playlist...",
		}
	}
	return ProgressUpdate{
		Playlist: pair.Label(),
		Phase:    FetchSource,
		Step:     1,
		Total:    1,
		Message:  fmt.Sprintf("Found %d source tracks", len(tracks)),
		Data:     tracks,
	}
}

func resolveTrackUpdate(pair *models.PlaylistPair, step, total int, tr models.TrackRecord) ProgressUpdate {
	return ProgressUpdate{
		Playlist: pair.Label(),
		Phase:    ResolveTracks,
		Step:     step,
		Total:    total,
		Message:  fmt.Sprintf("[%d/%d] %s - %s", step, total, tr.ArtistString(), tr.Title),
	}
}

func addBatchUpdate(pair *models.PlaylistPair, step, total int, batch []string, err error) ProgressUpdate {
	msg := fmt.Sprintf("[%d/%d] ✓ added %d tracks", step, total, len(batch))
	if err != nil {
		msg = fmt.Sprintf("[%d/%d] ✗ %d tracks: %v", step, total, len(batch), err)
	}
	return ProgressUpdate{
		Playlist: pair.Label(),
		Phase:    AddTracks,
		Step:     step,
		Total:    total,
		Message:  msg,
	}
}

func completedUpdate(outcome *models.SyncOutcome) ProgressUpdate {
	return ProgressUpdate{
		Playlist: outcome.Pair.Label(),
		Phase:    Completed,
		Step:     1,
		Total:    1,
		Message: fmt.Sprintf("%s: %d added, %d not found, %d already present",
			outcome.Pair.Label(), outcome.AddedCount, len(outcome.NotFound), outcome.SkippedCount),
		Data: outcome,
	}
}

package formatter

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/repositories"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func sampleRun() *models.SyncRun {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lost := models.NewTrackRecord("Lost Song", "Nobody", "Someone")
	flaky := models.NewTrackRecord("Flaky Song", "Timeout")

	return &models.SyncRun{
		ID:         "run-1",
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Outcomes: []*models.SyncOutcome{
			{
				Pair:          models.PlaylistPair{Source: "https://music.apple.com/pl.1", Name: "Road Trip"},
				DestinationID: "dest1",
				Created:       true,
				SourceCount:   5,
				ExistingCount: 1,
				SkippedCount:  1,
				AddedCount:    2,
				AddedTracks:   tu.Tracks("A", "B"),
				NotFound:      []models.TrackRecord{lost, flaky},
				SearchFailed:  []models.TrackRecord{flaky},
			},
			{
				Pair:          models.PlaylistPair{Source: "https://music.apple.com/pl.2", DestinationID: "dest2"},
				DestinationID: "dest2",
				Failed:        true,
				Err:           errors.New("destination listing failed"),
			},
		},
	}
}

func TestRenderRun(t *testing.T) {
	t.Run("summarizes each playlist", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderRun(&buf, sampleRun()); err != nil {
			t.Fatalf("RenderRun failed: %v", err)
		}
		output := buf.String()

		for _, want := range []string{
			"Sync run run-1",
			"Road Trip → dest1 (created)",
			"source: 5  existing: 1  skipped: 1  added: 2  not found: 2",
			"- Lost Song by Nobody, Someone",
			"- Flaky Song by Timeout",
			"(search failed)",
			"dest2 → dest2",
			"destination listing failed",
			"2 playlists, 2 added, 2 not found, 1 failed in 1.5s",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("report missing %q, got:\n%s", want, output)
			}
		}

		if strings.Count(output, "(search failed)") != 1 {
			t.Errorf("only the errored search should be flagged, got:\n%s", output)
		}
	})

	t.Run("dry run wording", func(t *testing.T) {
		run := &models.SyncRun{
			ID:     "dry",
			DryRun: true,
			Outcomes: []*models.SyncOutcome{
				{Pair: models.PlaylistPair{Source: "s", Name: "New"}, DryRun: true, SourceCount: 3, AddedCount: 3},
			},
		}

		var buf bytes.Buffer
		if err := RenderRun(&buf, run); err != nil {
			t.Fatalf("RenderRun failed: %v", err)
		}
		output := buf.String()

		if !strings.Contains(output, "(dry run)") || !strings.Contains(output, "New → (would create)") {
			t.Errorf("expected dry run markers, got:\n%s", output)
		}
		if !strings.Contains(output, "to add: 3") {
			t.Errorf("expected pending additions, got:\n%s", output)
		}
	})

	t.Run("lists tracks of failed batches", func(t *testing.T) {
		run := &models.SyncRun{
			ID: "partial",
			Outcomes: []*models.SyncOutcome{
				{
					Pair:          models.PlaylistPair{Source: "s", DestinationID: "d"},
					DestinationID: "d",
					AddedCount:    1,
					AddedTracks:   tu.Tracks("Landed"),
					FailedTracks:  tu.Tracks("Bounced"),
					Batches:       [][]string{{"a"}, {"b"}},
					BatchErrors:   []error{errors.New("batch 2 of 2: 502")},
					Failed:        true,
				},
			},
		}

		var buf bytes.Buffer
		if err := RenderRun(&buf, run); err != nil {
			t.Fatalf("RenderRun failed: %v", err)
		}
		output := buf.String()

		for _, want := range []string{"added: 1", "1 of 2 batches failed", "! Bounced", "(add failed)"} {
			if !strings.Contains(output, want) {
				t.Errorf("report missing %q, got:\n%s", want, output)
			}
		}
	})

	t.Run("write failure", func(t *testing.T) {
		if err := RenderRun(&tu.FWriter{}, sampleRun()); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}

func TestNotFoundCSV(t *testing.T) {
	data, err := NotFoundCSV(sampleRun())
	if err != nil {
		t.Fatalf("NotFoundCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d:\n%s", len(lines), data)
	}
	if lines[0] != "Playlist,Destination,Title,Artists,Search Failed" {
		t.Errorf("unexpected headers %q", lines[0])
	}
	if lines[1] != "Road Trip,dest1,Lost Song,Nobody; Someone,false" {
		t.Errorf("unexpected first row %q", lines[1])
	}
	if lines[2] != "Road Trip,dest1,Flaky Song,Timeout,true" {
		t.Errorf("unexpected second row %q", lines[2])
	}
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()

	t.Run("csv", func(t *testing.T) {
		path := filepath.Join(dir, "missing.csv")
		if err := WriteReport(sampleRun(), path); err != nil {
			t.Fatalf("WriteReport failed: %v", err)
		}
		tu.AssertFileExists(t, path)
		if content := tu.MustReadFile(t, path); !strings.HasPrefix(content, "Playlist,") {
			t.Errorf("expected CSV report, got %q", content)
		}
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "run.JSON")
		if err := WriteReport(sampleRun(), path); err != nil {
			t.Fatalf("WriteReport failed: %v", err)
		}

		var decoded models.SyncRun
		if err := json.Unmarshal([]byte(tu.MustReadFile(t, path)), &decoded); err != nil {
			t.Fatalf("report is not JSON: %v", err)
		}
		if decoded.ID != "run-1" || len(decoded.Outcomes) != 2 {
			t.Errorf("unexpected decoded run %+v", decoded)
		}
	})

	t.Run("empty path", func(t *testing.T) {
		if err := WriteReport(sampleRun(), ""); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		if err := WriteReport(sampleRun(), filepath.Join(dir, "nope", "r.csv")); err == nil {
			t.Error("expected error for missing directory")
		}
	})
}

func TestRenderHistory(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		var buf bytes.Buffer
		if err := RenderHistory(&buf, nil); err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		if !strings.Contains(buf.String(), "No sync runs recorded yet.") {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("rows", func(t *testing.T) {
		started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		runs := []*repositories.RunSummary{
			{ID: "b", Sequence: 2, DryRun: true, StartedAt: started, FinishedAt: started.Add(2 * time.Second), Playlists: 1, Added: 4},
			{ID: "a", Sequence: 1, StartedAt: started, FinishedAt: started.Add(time.Second), Playlists: 3, Added: 7, NotFound: 2, Failed: 1},
		}

		var buf bytes.Buffer
		if err := RenderHistory(&buf, runs); err != nil {
			t.Fatalf("RenderHistory failed: %v", err)
		}
		output := buf.String()

		for _, want := range []string{"Started", "Not Found", "dry run", "live", "2s", "1s"} {
			if !strings.Contains(output, want) {
				t.Errorf("history missing %q, got:\n%s", want, output)
			}
		}
		if strings.Index(output, "dry run") > strings.Index(output, "live") {
			t.Errorf("expected newest run first, got:\n%s", output)
		}
	})

	t.Run("write failure", func(t *testing.T) {
		if err := RenderHistory(&tu.FWriter{}, nil); err == nil {
			t.Error("expected error from failing writer")
		}
	})
}

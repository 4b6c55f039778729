package tasks

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/shared"
	tu "github.com/desertthunder/plsync/internal/testing"
)

func TestSyncRunner(t *testing.T) {
	t.Run("failed listing does not affect later playlists", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().
			WithPlaylist("dest1").
			WithPlaylist("dest2").
			WithTrack("Song", "S")
		catalog.ListErrs["dest1"] = errors.New("500")
		source := tu.NewStaticSource().With("src1", "Song").With("src2", "Song")

		pairs := []*models.PlaylistPair{
			{Source: "src1", DestinationID: "dest1", Name: "First"},
			{Source: "src2", DestinationID: "dest2", Name: "Second"},
		}

		runner := NewSyncRunner(newTestEngine(t, catalog, source), quietLogger())
		run := runner.Run(context.Background(), pairs, nil)

		if len(run.Outcomes) != 2 {
			t.Fatalf("expected 2 outcomes, got %d", len(run.Outcomes))
		}
		if !run.Outcomes[0].Failed || !errors.Is(run.Outcomes[0].Err, shared.ErrDestinationList) {
			t.Errorf("expected first playlist to fail with ErrDestinationList, got %v", run.Outcomes[0].Err)
		}
		if run.Outcomes[1].Failed || run.Outcomes[1].AddedCount != 1 {
			t.Errorf("expected second playlist to complete, got %+v", run.Outcomes[1])
		}
		if !run.Failed() {
			t.Error("run with a failed playlist should report failure")
		}
		if !slices.Equal(source.Calls, []string{"src2"}) {
			t.Errorf("source should only be read for the second pair, got %v", source.Calls)
		}
	})

	t.Run("every pair is attempted once in order", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().WithTrack("Song", "S")
		catalog.CreateErr = errors.New("quota")
		source := tu.NewStaticSource().With("a", "Song").With("b", "Song").With("c", "Song")

		pairs := []*models.PlaylistPair{{Source: "a"}, {Source: "b"}, nil, {Source: "c"}}
		run := NewSyncRunner(newTestEngine(t, catalog, source), quietLogger()).Run(context.Background(), pairs, nil)

		if len(run.Outcomes) != 3 {
			t.Fatalf("expected 3 outcomes, got %d", len(run.Outcomes))
		}
		for i, want := range []string{"a", "b", "c"} {
			if run.Outcomes[i].Pair.Source != want {
				t.Errorf("outcome %d is for %s, want %s", i, run.Outcomes[i].Pair.Source, want)
			}
		}
		if _, _, failed := run.Totals(); failed != 3 {
			t.Errorf("expected 3 failed playlists, got %d", failed)
		}
	})

	t.Run("run metadata", func(t *testing.T) {
		catalog := tu.NewFakeCatalog().WithPlaylist("d")
		source := tu.NewStaticSource().With("s")
		runner := NewSyncRunner(newTestEngine(t, catalog, source, WithDryRun(true)), nil)

		start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
		ticks := 0
		runner.now = func() time.Time {
			ticks++
			return start.Add(time.Duration(ticks) * time.Second)
		}

		run := runner.Run(context.Background(), []*models.PlaylistPair{{Source: "s", DestinationID: "d"}}, nil)

		if run.ID == "" {
			t.Error("expected run id")
		}
		if !run.DryRun {
			t.Error("expected dry run flag from the engine")
		}
		if !run.FinishedAt.After(run.StartedAt) {
			t.Errorf("expected finish after start, got %v → %v", run.StartedAt, run.FinishedAt)
		}
		if run.Failed() {
			t.Error("empty source should not fail")
		}
	})
}

package shared

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestSimilarityRatio(t *testing.T) {
	tc := []struct {
		name string
		a, b string
		want int
	}{
		{name: "identical", a: "Blinding Lights", b: "Blinding Lights", want: 100},
		{name: "case and spacing", a: "blinding  LIGHTS", b: "Blinding Lights", want: 100},
		{name: "trailing punctuation", a: "Love", b: "Love!", want: 89},
		{name: "trailing punctuation longer", a: "Hello", b: "Hello!", want: 91},
		{name: "plural", a: "Song", b: "Songs", want: 89},
		{name: "one letter dropped", a: "Blinding Lights", b: "Blinding Light", want: 97},
		{name: "unrelated", a: "Blinding Lights", b: "Bohemian Rhapsody", want: 38},
		{name: "no common letters", a: "abc", b: "xyz", want: 0},
		{name: "both empty", a: "", b: "", want: 0},
		{name: "one empty", a: "Song", b: "", want: 0},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := SimilarityRatio(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("SimilarityRatio(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}

	t.Run("ArtistSimilarity joins lists", func(t *testing.T) {
		if got := ArtistSimilarity([]string{"Daft Punk", "Pharrell Williams"}, []string{"daft punk", "pharrell williams"}); got != 100 {
			t.Errorf("expected 100, got %d", got)
		}
	})
}

func TestSuggest(t *testing.T) {
	names := []string{"Road Trip", "Workout", "Chill Vibes"}

	tc := []struct {
		name  string
		query string
		want  []string
	}{
		{name: "squashed spacing", query: "roadtrip", want: []string{"Road Trip"}},
		{name: "abbreviation", query: "chill", want: []string{"Chill Vibes"}},
		{name: "transposed letters", query: "Wrokout", want: []string{"Workout"}},
		{name: "nothing close", query: "zzzz", want: nil},
		{name: "empty", query: "  ", want: nil},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			got := Suggest(tt.query, names, 3)
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Suggest(%q) = %v, want %v", tt.query, got, tt.want)
			}
		})
	}

	t.Run("limit", func(t *testing.T) {
		if got := Suggest("t", names, 1); len(got) != 1 {
			t.Errorf("expected one suggestion, got %v", got)
		}
	})
}

func TestGenerateState(t *testing.T) {
	a, err := GenerateState()
	if err != nil {
		t.Fatalf("GenerateState() error = %v", err)
	}
	b, _ := GenerateState()
	if a == "" || a == b {
		t.Errorf("expected distinct non-empty states, got %q and %q", a, b)
	}
	if strings.ContainsAny(a, "+/=") {
		t.Errorf("state should be URL safe, got %q", a)
	}
}

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf)

	if err := SetLogLevel(logger, "debug"); err != nil {
		t.Fatalf("SetLogLevel() error = %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("expected debug level, got %v", logger.GetLevel())
	}

	if err := SetLogLevel(logger, "loud"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if err := SetLogLevel(logger, ""); err != nil {
		t.Errorf("empty level should be a no-op, got %v", err)
	}
}

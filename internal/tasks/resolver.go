package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/plsync/internal/models"
	"github.com/desertthunder/plsync/internal/services"
	"github.com/desertthunder/plsync/internal/shared"
)

// DefaultSimilarityThreshold is the score both title and artists must exceed under the similarity strategy.
const DefaultSimilarityThreshold = 80

// Resolution is the outcome of resolving one source track.
//
// Match is found only when the track resolved. SearchFailed marks a search error (unknown),
// Rejected marks a candidate dropped by the similarity check; neither is a confirmed absence.
type Resolution struct {
	Match        models.MatchResult
	SearchFailed bool
	Rejected     bool
	Err          error
}

// Resolved reports whether the track maps to a catalog id.
func (r Resolution) Resolved() bool {
	return r.Match.Found()
}

// MatchResolver maps a source track to a catalog track with one search call.
type MatchResolver struct {
	strategy  string
	threshold int
}

// NewMatchResolver returns a resolver for strategy ([shared.StrategyRemote] when empty).
//
// threshold applies to [shared.StrategySimilarity] only; zero selects [DefaultSimilarityThreshold].
func NewMatchResolver(strategy string, threshold int) (*MatchResolver, error) {
	switch strategy {
	case "":
		strategy = shared.StrategyRemote
	case shared.StrategyRemote, shared.StrategySimilarity:
	default:
		return nil, fmt.Errorf("%w: unknown match strategy %q", shared.ErrInvalidConfig, strategy)
	}

	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("%w: similarity threshold %d outside 0-100", shared.ErrInvalidConfig, threshold)
	}
	if threshold == 0 {
		threshold = DefaultSimilarityThreshold
	}

	return &MatchResolver{strategy: strategy, threshold: threshold}, nil
}

// Strategy returns the configured strategy name.
func (r *MatchResolver) Strategy() string {
	return r.strategy
}

// Resolve searches for track and classifies the result.
func (r *MatchResolver) Resolve(ctx context.Context, track models.TrackRecord, searcher services.Searcher) Resolution {
	match, err := searcher.Search(ctx, track.Title, track.Artists)
	if err != nil {
		if !errors.Is(err, shared.ErrSearchFailed) {
			err = fmt.Errorf("%w: %w", shared.ErrSearchFailed, err)
		}
		return Resolution{SearchFailed: true, Err: err}
	}

	if !match.Found() {
		return Resolution{}
	}

	if r.strategy == shared.StrategySimilarity && !r.similar(track, match) {
		return Resolution{Rejected: true}
	}

	return Resolution{Match: match}
}

// similar requires both the title and the joined artist list to score above the threshold.
// A candidate without a title carries nothing to compare and is rejected.
func (r *MatchResolver) similar(track models.TrackRecord, match models.MatchResult) bool {
	if match.Title == "" {
		return false
	}
	return shared.SimilarityRatio(track.Title, match.Title) > r.threshold &&
		shared.ArtistSimilarity(track.Artists, match.Artists) > r.threshold
}

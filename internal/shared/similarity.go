package shared

import (
	"math"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// SimilarityRatio scores two strings from 0 (unrelated) to 100 (identical after normalization).
//
// Inputs are case-folded and whitespace-collapsed. The score is 100 * 2M / (len(a) + len(b)),
// rounded half to even, where M is the length of the longest common subsequence: the
// insert/delete edit ratio. An empty input scores 0 against anything.
func SimilarityRatio(a, b string) int {
	ra, rb := []rune(normalize(a)), []rune(normalize(b))
	total := len(ra) + len(rb)
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	matched := 2 * commonSubsequence(ra, rb)
	return int(math.RoundToEven(100 * float64(matched) / float64(total)))
}

// ArtistSimilarity compares two artist lists after joining them with ", ".
func ArtistSimilarity(a, b []string) int {
	return SimilarityRatio(strings.Join(a, ", "), strings.Join(b, ", "))
}

// commonSubsequence returns the length of the longest common subsequence of a and b.
func commonSubsequence(a, b []rune) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for _, x := range a {
		for j, y := range b {
			if x == y {
				cur[j+1] = prev[j] + 1
			} else {
				cur[j+1] = max(prev[j+1], cur[j])
			}
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

// Suggest returns up to limit candidates resembling query, best first.
//
// Candidates containing query's characters in order rank first by edit distance; the rest are
// kept when their edit distance is within a third of the longer string.
func Suggest(query string, candidates []string, limit int) []string {
	query = normalize(query)
	if query == "" || limit <= 0 {
		return nil
	}

	type ranked struct {
		target   string
		distance int
		loose    bool
	}

	var found []ranked
	seen := make(map[string]struct{})
	for _, r := range fuzzy.RankFindNormalizedFold(query, candidates) {
		found = append(found, ranked{target: r.Target, distance: r.Distance})
		seen[r.Target] = struct{}{}
	}

	for _, c := range candidates {
		if _, ok := seen[c]; ok || c == "" {
			continue
		}
		norm := normalize(c)
		d := fuzzy.LevenshteinDistance(query, norm)
		if d*3 <= max(len([]rune(query)), len([]rune(norm))) {
			found = append(found, ranked{target: c, distance: d, loose: true})
			seen[c] = struct{}{}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		if found[i].loose != found[j].loose {
			return !found[i].loose
		}
		return found[i].distance < found[j].distance
	})

	out := make([]string, 0, min(limit, len(found)))
	for _, r := range found[:min(limit, len(found))] {
		out = append(out, r.target)
	}
	return out
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

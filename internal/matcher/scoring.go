package matcher

import (
	"strconv"
	"strings"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
)

// Similarity is the edit-distance ratio of the lowercased strings, 1.0 for
// identical and 0.0 for disjoint.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	return strutil.Similarity(a, b, metrics.NewLevenshtein())
}

// Score rates how well a library item answers a wanted track. Title leads,
// then artist and album; parenthetical version text, an exact year and a
// close genre add small bonuses.
func Score(want domain.Track, cand *domain.PlexTrack) float64 {
	score := Similarity(want.Title, cand.Title)*0.4 +
		Similarity(want.Artist, cand.Artist)*0.3 +
		Similarity(want.Album, cand.Album)*0.2

	if wantVer, ok := parenthetical(want.Title); ok {
		if candVer, ok := parenthetical(cand.Title); ok {
			score += Similarity(wantVer, candVer) * 0.1
		}
	}
	if yearMatches(want.Year, cand.Year) {
		score += 0.1
	}
	if genreMatches(want.Genre, cand.Genres) {
		score += 0.1
	}
	return score
}

// parenthetical extracts the first "(...)" span, the usual place for remix
// and remaster qualifiers.
func parenthetical(title string) (string, bool) {
	open := strings.Index(title, "(")
	if open < 0 {
		return "", false
	}
	close := strings.Index(title[open:], ")")
	if close < 0 {
		return "", false
	}
	inner := strings.TrimSpace(title[open+1 : open+close])
	return inner, inner != ""
}

func yearMatches(want string, candYear int) bool {
	if want == "" || candYear == 0 {
		return false
	}
	y, err := strconv.Atoi(strings.TrimSpace(want))
	return err == nil && y == candYear
}

func genreMatches(want string, candGenres []string) bool {
	if want == "" {
		return false
	}
	for _, g := range candGenres {
		if Similarity(want, g) > constants.ThresholdGenreToken {
			return true
		}
	}
	return false
}

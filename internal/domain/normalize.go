package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripMarks = transform.Chain(
	norm.NFKD,
	runes.Remove(runes.In(unicode.Mn)),
)

// NormalizeText canonicalizes free-form metadata text for fuzzy lookups:
// NFKD decomposition, combining marks stripped, lowercased, punctuation
// collapsed to single spaces.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	decomposed, _, err := transform.String(stripMarks, s)
	if err != nil {
		decomposed = s
	}
	lower := strings.ToLower(decomposed)

	var b strings.Builder
	b.Grow(len(lower))
	lastSpace := true
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastSpace = false
		} else if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// TrackKey builds the raw cache key: lowercased title|artist|album.
func TrackKey(title, artist, album string) string {
	return strings.ToLower(strings.TrimSpace(title)) + "|" +
		strings.ToLower(strings.TrimSpace(artist)) + "|" +
		strings.ToLower(strings.TrimSpace(album))
}

// LookupKeys holds the normalized lookup keys derived from track metadata.
type LookupKeys struct {
	Title   string
	Artist  string
	Album   string
	Full    string // title|artist|album, normalized
	Partial string // title|artist, normalized
}

// BuildLookupKeys normalizes the three metadata fields and derives the full
// and partial composite keys used by the cache indexes.
func BuildLookupKeys(title, artist, album string) LookupKeys {
	t := NormalizeText(title)
	a := NormalizeText(artist)
	al := NormalizeText(album)
	return LookupKeys{
		Title:   t,
		Artist:  a,
		Album:   al,
		Full:    t + "|" + a + "|" + al,
		Partial: t + "|" + a,
	}
}

// DurationBucket maps a track duration to its coarse bucket index.
// Duration zero or negative means unknown and gets bucket -1.
func DurationBucket(durationMS int64, bucketSeconds int) int64 {
	if durationMS <= 0 || bucketSeconds <= 0 {
		return -1
	}
	return durationMS / (int64(bucketSeconds) * 1000)
}

// NormalizeMBID canonicalizes a MusicBrainz identifier: trimmed, lowercased,
// with any mbid:// prefix and surrounding braces removed.
func NormalizeMBID(mbid string) string {
	m := strings.ToLower(strings.TrimSpace(mbid))
	m = strings.TrimPrefix(m, "mbid://")
	m = strings.Trim(m, "{}")
	return m
}

// NormalizeISRC canonicalizes an ISRC: uppercased with hyphens removed.
func NormalizeISRC(isrc string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(isrc), "-", ""))
}

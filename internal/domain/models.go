package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Track is the canonical representation of a track from an external music
// service. Adapters construct it once and it is never mutated afterwards.
type Track struct {
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	URL        string `json:"url,omitempty"`
	Year       string `json:"year,omitempty"`
	Genre      string `json:"genre,omitempty"`
	ISRC       string `json:"isrc,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// Key returns the raw cache key for the track. It is the pipe-joined
// lowercased title, artist and album, whitespace-trimmed.
func (t Track) Key() string {
	return TrackKey(t.Title, t.Artist, t.Album)
}

// Playlist represents a playlist on an external music service.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Poster      string `json:"poster,omitempty"`
}

// PlexTrack mirrors a track item in the Plex music library.
type PlexTrack struct {
	RatingKey  int64       `json:"rating_key"`
	Title      string      `json:"title"`
	Artist     string      `json:"artist"`
	Album      string      `json:"album"`
	Year       int         `json:"year,omitempty"`
	Genres     StringSlice `json:"genres,omitempty"`
	DurationMS int64       `json:"duration_ms,omitempty"`
	GUIDs      StringSlice `json:"guids,omitempty"`
	ArtistKey  int64       `json:"artist_key,omitempty"`
	AlbumKey   int64       `json:"album_key,omitempty"`
	Stub       bool        `json:"-"`
}

// Key returns the raw cache key for the library item.
func (p *PlexTrack) Key() string {
	return TrackKey(p.Title, p.Artist, p.Album)
}

// MBIDs returns the normalized MusicBrainz identifiers carried by the
// item's GUIDs, if any.
func (p *PlexTrack) MBIDs() []string {
	var out []string
	for _, g := range p.GUIDs {
		if strings.HasPrefix(g, "mbid://") {
			if m := NormalizeMBID(g); m != "" {
				out = append(out, m)
			}
		}
	}
	return out
}

// PrimaryMBID returns the lexicographically smallest MBID so repeated
// extraction from the same item is deterministic. Empty when none exist.
func (p *PlexTrack) PrimaryMBID() string {
	mbids := p.MBIDs()
	if len(mbids) == 0 {
		return ""
	}
	min := mbids[0]
	for _, m := range mbids[1:] {
		if m < min {
			min = m
		}
	}
	return min
}

// MatchResult is the outcome of matching one canonical track against the
// Plex library. Exactly one of Matched and Missing is set.
type MatchResult struct {
	Matched *PlexTrack
	Missing *Track
}

// MBIDType classifies where a resolved MusicBrainz ID came from.
type MBIDType string

const (
	MBIDTypeRecording    MBIDType = "recording"
	MBIDTypeReleaseTrack MBIDType = "release_track"
	MBIDTypeRelease      MBIDType = "release"
	MBIDTypeUnknown      MBIDType = "unknown"
)

// Confidence returns the matching confidence associated with the type.
func (t MBIDType) Confidence() float64 {
	switch t {
	case MBIDTypeRecording:
		return 1.0
	case MBIDTypeReleaseTrack:
		return 0.95
	case MBIDTypeRelease:
		return 0.7
	default:
		return 0.5
	}
}

// ScoredMBID is a resolved MusicBrainz ID with the confidence of its
// resolution path. Identity is the MBID alone.
type ScoredMBID struct {
	MBID       string   `json:"mbid"`
	Type       MBIDType `json:"type"`
	Confidence float64  `json:"confidence"`
}

// NewScoredMBID builds a ScoredMBID with the confidence implied by its type.
func NewScoredMBID(mbid string, typ MBIDType) ScoredMBID {
	return ScoredMBID{MBID: mbid, Type: typ, Confidence: typ.Confidence()}
}

func (s ScoredMBID) String() string {
	return fmt.Sprintf("%s (%s, %.2f)", s.MBID, s.Type, s.Confidence)
}

// MBIDSet deduplicates ScoredMBIDs by MBID, keeping the highest confidence
// seen for each.
type MBIDSet map[string]ScoredMBID

// Add inserts the scored MBID, keeping an existing entry when it already has
// equal or higher confidence.
func (s MBIDSet) Add(m ScoredMBID) {
	if cur, ok := s[m.MBID]; ok && cur.Confidence >= m.Confidence {
		return
	}
	s[m.MBID] = m
}

// Sorted returns the members ordered by confidence descending, MBID
// ascending on ties.
func (s MBIDSet) Sorted() []ScoredMBID {
	out := make([]ScoredMBID, 0, len(s))
	for _, m := range s {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].MBID < out[j].MBID
	})
	return out
}

// LikedTrackRecord marks a Plex track as rated on behalf of a provider.
type LikedTrackRecord struct {
	PlexID   int64     `json:"plex_id" db:"plex_id"`
	Source   string    `json:"source" db:"source"`
	TrackKey string    `json:"track_key" db:"track_key"`
	SyncedAt time.Time `json:"synced_at" db:"synced_at"`
}

// Package constants contains application-wide constants to avoid magic numbers and strings.
package constants

import "time"

// Application defaults
const (
	DefaultPort         = "8080"
	DefaultDBPath       = "plexist.db"
	DefaultWaitSeconds  = 86400
	DefaultHTTPTimeout  = 30 * time.Second
	DefaultRetryCount   = 3
	DefaultRetryBase    = 1 * time.Second
	DefaultMissingDir   = "."
	ShutdownGracePeriod = 5 * time.Second
)

// Plex library access
const (
	PlexBatchSize          = 500
	PlexTrackType          = 10
	MaxSearchCandidates    = 500
	LiveSearchLimit        = 20
	DefaultRequestsPerSec  = 5.0
	DefaultMaxConcurrent   = 4
	PageFetchPause         = 500 * time.Millisecond
	PageFailurePause       = 2 * time.Second
	DurationBucketSeconds  = 5
	MinDurationToleranceMS = 5000
	RatingLiked            = 10.0
	RatingCleared          = 0.0
)

// Match thresholds. The search thresholds apply to the weighted candidate
// score and relax in step with the query shape.
const (
	ThresholdPartialTitle       = 0.85
	ThresholdArtistFuzzy        = 0.88
	ThresholdSearchStrict       = 0.85
	ThresholdSearchPartialTitle = 0.60
	ThresholdSearchArtistOnly   = 0.65
	ThresholdSearchTitleOnly    = 0.55
	ThresholdGenreToken         = 0.8
)

// MusicBrainz
const (
	MusicBrainzBaseURL          = "https://musicbrainz.org/ws/2"
	MusicBrainzMinInterval      = 1100 * time.Millisecond
	MusicBrainzRetryPause       = 2 * time.Second
	MusicBrainzTimeout          = 10 * time.Second
	DefaultPositiveCacheTTLDays = 90
	DefaultNegativeCacheTTLDays = 7
	DefaultUserAgent            = "Plexist/1.0 (https://github.com/gyarbij/plexist)"
)

// Database tables
const (
	PlexCacheTable   = "plex_cache"
	MBIDCacheTable   = "isrc_mbid_cache"
	MBIDIndexTable   = "plex_mbid_index"
	LikedTracksTable = "liked_tracks"
	PlaylistTable    = "plexist"
)

// Missing track export
const (
	ExtCSV  = ".csv"
	ExtJSON = ".json"
)

// File Permissions
const (
	DirPermissions  = 0755
	FilePermissions = 0644
)

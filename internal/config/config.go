package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gyarbij/plexist/internal/constants"
)

// Config holds all application configuration
type Config struct {
	Port      string
	DBPath    string
	LogLevel  string
	LogFormat string

	PlexURL       string
	PlexToken     string
	PlexSectionID int

	MaxRequestsPerSecond  float64
	MaxConcurrentRequests int
	WaitSeconds           int

	WriteMissingAsCSV      bool
	WriteMissingAsJSON     bool
	MissingTracksDir       string
	AddPlaylistDescription bool
	AddPlaylistPoster      bool
	AppendInsteadOfSync    bool
	SyncLikedTracks        bool

	MusicBrainzEnabled      bool
	MusicBrainzCacheTTLDays int
	MusicBrainzNegTTLDays   int
	MusicBrainzUserAgent    string
	ExtendedCacheEnabled    bool
	DurationBucketSeconds   int

	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyUserID       string
}

// Load loads configuration from environment variables with defaults.
// A .env file in the working directory is read first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", constants.DefaultPort),
		DBPath:    getEnv("DB_PATH", constants.DefaultDBPath),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		PlexURL:       getEnv("PLEX_URL", ""),
		PlexToken:     getEnv("PLEX_TOKEN", ""),
		PlexSectionID: getEnvInt("PLEX_SECTION_ID", 0),

		MaxRequestsPerSecond:  getEnvFloat("MAX_REQUESTS_PER_SECOND", constants.DefaultRequestsPerSec),
		MaxConcurrentRequests: getEnvInt("MAX_CONCURRENT_REQUESTS", constants.DefaultMaxConcurrent),
		WaitSeconds:           getEnvInt("WAIT_SECONDS", constants.DefaultWaitSeconds),

		WriteMissingAsCSV:      getEnvBool("WRITE_MISSING_AS_CSV", true),
		WriteMissingAsJSON:     getEnvBool("WRITE_MISSING_AS_JSON", false),
		MissingTracksDir:       getEnv("MISSING_TRACKS_DIR", constants.DefaultMissingDir),
		AddPlaylistDescription: getEnvBool("ADD_PLAYLIST_DESCRIPTION", true),
		AddPlaylistPoster:      getEnvBool("ADD_PLAYLIST_POSTER", true),
		AppendInsteadOfSync:    getEnvBool("APPEND_INSTEAD_OF_SYNC", false),
		SyncLikedTracks:        getEnvBool("SYNC_LIKED_TRACKS", false),

		MusicBrainzEnabled:      getEnvBool("MUSICBRAINZ_ENABLED", true),
		MusicBrainzCacheTTLDays: getEnvInt("MUSICBRAINZ_CACHE_TTL_DAYS", constants.DefaultPositiveCacheTTLDays),
		MusicBrainzNegTTLDays:   getEnvInt("MUSICBRAINZ_NEGATIVE_CACHE_TTL_DAYS", constants.DefaultNegativeCacheTTLDays),
		MusicBrainzUserAgent:    getEnv("MUSICBRAINZ_USER_AGENT", constants.DefaultUserAgent),
		ExtendedCacheEnabled:    getEnvBool("EXTENDED_CACHE_ENABLED", true),
		DurationBucketSeconds:   getEnvInt("DURATION_BUCKET_SECONDS", constants.DurationBucketSeconds),

		SpotifyClientID:     getEnv("SPOTIFY_CLIENT_ID", ""),
		SpotifyClientSecret: getEnv("SPOTIFY_CLIENT_SECRET", ""),
		SpotifyUserID:       getEnv("SPOTIFY_USER_ID", ""),
	}
}

// Validate validates the configuration and returns detailed errors
func (c *Config) Validate() error {
	var errors []string

	// Validate Port
	if c.Port == "" {
		errors = append(errors, "PORT cannot be empty")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("PORT must be a valid number, got: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("PORT must be between 1 and 65535, got: %d", port))
		}
	}

	// Validate DBPath
	if c.DBPath == "" {
		errors = append(errors, "DB_PATH cannot be empty")
	}

	// Validate Plex connection
	if c.PlexURL == "" {
		errors = append(errors, "PLEX_URL cannot be empty")
	} else if _, err := url.Parse(c.PlexURL); err != nil {
		errors = append(errors, fmt.Sprintf("PLEX_URL is not a valid URL: %s", c.PlexURL))
	}
	if c.PlexToken == "" {
		errors = append(errors, "PLEX_TOKEN cannot be empty")
	}
	if c.PlexSectionID <= 0 {
		errors = append(errors, fmt.Sprintf("PLEX_SECTION_ID must be a positive library section id, got: %d", c.PlexSectionID))
	}

	// Validate rate limits
	if c.MaxRequestsPerSecond <= 0 {
		errors = append(errors, fmt.Sprintf("MAX_REQUESTS_PER_SECOND must be positive, got: %g", c.MaxRequestsPerSecond))
	}
	if c.MaxConcurrentRequests < 1 {
		errors = append(errors, fmt.Sprintf("MAX_CONCURRENT_REQUESTS must be at least 1, got: %d", c.MaxConcurrentRequests))
	}
	if c.WaitSeconds < 1 {
		errors = append(errors, fmt.Sprintf("WAIT_SECONDS must be at least 1, got: %d", c.WaitSeconds))
	}

	// Validate cache tuning
	if c.MusicBrainzCacheTTLDays < 1 {
		errors = append(errors, fmt.Sprintf("MUSICBRAINZ_CACHE_TTL_DAYS must be at least 1, got: %d", c.MusicBrainzCacheTTLDays))
	}
	if c.MusicBrainzNegTTLDays < 1 {
		errors = append(errors, fmt.Sprintf("MUSICBRAINZ_NEGATIVE_CACHE_TTL_DAYS must be at least 1, got: %d", c.MusicBrainzNegTTLDays))
	}
	if c.DurationBucketSeconds < 1 {
		errors = append(errors, fmt.Sprintf("DURATION_BUCKET_SECONDS must be at least 1, got: %d", c.DurationBucketSeconds))
	}

	// Validate LogLevel
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: debug, info, warn, error, got: %s", c.LogLevel))
	}

	// Validate LogFormat
	validLogFormats := map[string]bool{
		"text": true,
		"json": true,
	}
	if !validLogFormats[c.LogFormat] {
		errors = append(errors, fmt.Sprintf("LOG_FORMAT must be one of: text, json, got: %s", c.LogFormat))
	}

	// Spotify credentials come as a pair
	if (c.SpotifyClientID == "") != (c.SpotifyClientSecret == "") {
		errors = append(errors, "SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

package store

import (
	"fmt"
	"time"

	"github.com/gyarbij/plexist/internal/domain"
)

// PlexCacheRow is the persisted form of a cached Plex library track.
// The raw title|artist|album key is the primary key; plex_id is the
// durable identity used for re-rating and playlist membership.
type PlexCacheRow struct {
	Key            string             `db:"key"`
	PlexID         int64              `db:"plex_id"`
	Title          string             `db:"title"`
	Artist         string             `db:"artist"`
	Album          string             `db:"album"`
	Year           int                `db:"year"`
	Genres         domain.StringSlice `db:"genres"`
	DurationMS     int64              `db:"duration_ms"`
	GUIDs          domain.StringSlice `db:"guids"`
	ArtistKey      int64              `db:"artist_key"`
	AlbumKey       int64              `db:"album_key"`
	NormTitle      string             `db:"norm_title"`
	NormArtist     string             `db:"norm_artist"`
	NormAlbum      string             `db:"norm_album"`
	LookupPartial  string             `db:"lookup_partial"`
	DurationBucket int64              `db:"duration_bucket"`
	UpdatedAt      time.Time          `db:"updated_at"`
}

// NewPlexCacheRow derives the persisted row, including all precomputed
// lookup columns, from a library track.
func NewPlexCacheRow(t *domain.PlexTrack, bucketSeconds int) PlexCacheRow {
	keys := domain.BuildLookupKeys(t.Title, t.Artist, t.Album)
	return PlexCacheRow{
		Key:            t.Key(),
		PlexID:         t.RatingKey,
		Title:          t.Title,
		Artist:         t.Artist,
		Album:          t.Album,
		Year:           t.Year,
		Genres:         t.Genres,
		DurationMS:     t.DurationMS,
		GUIDs:          t.GUIDs,
		ArtistKey:      t.ArtistKey,
		AlbumKey:       t.AlbumKey,
		NormTitle:      keys.Title,
		NormArtist:     keys.Artist,
		NormAlbum:      keys.Album,
		LookupPartial:  keys.Partial,
		DurationBucket: domain.DurationBucket(t.DurationMS, bucketSeconds),
		UpdatedAt:      time.Now(),
	}
}

// Track reconstructs the library track from the persisted row.
func (r PlexCacheRow) Track() *domain.PlexTrack {
	return &domain.PlexTrack{
		RatingKey:  r.PlexID,
		Title:      r.Title,
		Artist:     r.Artist,
		Album:      r.Album,
		Year:       r.Year,
		Genres:     r.Genres,
		DurationMS: r.DurationMS,
		GUIDs:      r.GUIDs,
		ArtistKey:  r.ArtistKey,
		AlbumKey:   r.AlbumKey,
	}
}

const plexCacheUpsert = `
	INSERT INTO plex_cache (
		key, plex_id, title, artist, album, year, genres, duration_ms, guids,
		artist_key, album_key, norm_title, norm_artist, norm_album,
		lookup_partial, duration_bucket, updated_at
	) VALUES (
		:key, :plex_id, :title, :artist, :album, :year, :genres, :duration_ms, :guids,
		:artist_key, :album_key, :norm_title, :norm_artist, :norm_album,
		:lookup_partial, :duration_bucket, :updated_at
	)
	ON CONFLICT(key) DO UPDATE SET
		plex_id = excluded.plex_id,
		title = excluded.title,
		artist = excluded.artist,
		album = excluded.album,
		year = excluded.year,
		genres = excluded.genres,
		duration_ms = excluded.duration_ms,
		guids = excluded.guids,
		artist_key = excluded.artist_key,
		album_key = excluded.album_key,
		norm_title = excluded.norm_title,
		norm_artist = excluded.norm_artist,
		norm_album = excluded.norm_album,
		lookup_partial = excluded.lookup_partial,
		duration_bucket = excluded.duration_bucket,
		updated_at = excluded.updated_at`

// UpsertPlexCacheRow writes or refreshes one cached library track.
func (db *DB) UpsertPlexCacheRow(row PlexCacheRow) error {
	if _, err := db.NamedExec(plexCacheUpsert, row); err != nil {
		return fmt.Errorf("failed to upsert plex cache row: %w", err)
	}
	return nil
}

// UpsertPlexCacheRows writes a batch of cached tracks in one transaction.
func (db *DB) UpsertPlexCacheRows(rows []PlexCacheRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin plex cache batch: %w", err)
	}
	for _, row := range rows {
		if _, err := tx.NamedExec(plexCacheUpsert, row); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to upsert plex cache row %q: %w", row.Key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit plex cache batch: %w", err)
	}
	return nil
}

// LoadPlexCache returns every persisted library track row.
func (db *DB) LoadPlexCache() ([]PlexCacheRow, error) {
	var rows []PlexCacheRow
	if err := db.Select(&rows, `SELECT * FROM plex_cache`); err != nil {
		return nil, fmt.Errorf("failed to load plex cache: %w", err)
	}
	return rows, nil
}

// ClearPlexCache removes every persisted library track row.
func (db *DB) ClearPlexCache() error {
	if _, err := db.Exec(`DELETE FROM plex_cache`); err != nil {
		return fmt.Errorf("failed to clear plex cache: %w", err)
	}
	return nil
}

// PlexCacheCount reports the number of persisted library tracks.
func (db *DB) PlexCacheCount() (int, error) {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM plex_cache`); err != nil {
		return 0, fmt.Errorf("failed to count plex cache: %w", err)
	}
	return n, nil
}

// LegacyTrackRow is the shape of the pre-extended-cache plexist table.
// Rows are only read during rehydration of old databases.
type LegacyTrackRow struct {
	Title  string `db:"title"`
	Artist string `db:"artist"`
	Album  string `db:"album"`
	Year   string `db:"year"`
	Genre  string `db:"genre"`
	PlexID int64  `db:"plex_id"`
}

// LoadLegacyTracks returns the rows of the legacy plexist table.
func (db *DB) LoadLegacyTracks() ([]LegacyTrackRow, error) {
	var rows []LegacyTrackRow
	if err := db.Select(&rows, `SELECT title, artist, album, year, genre, plex_id FROM plexist`); err != nil {
		return nil, fmt.Errorf("failed to load legacy tracks: %w", err)
	}
	return rows, nil
}

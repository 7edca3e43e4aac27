package store

const Schema = `
CREATE TABLE IF NOT EXISTS plex_cache (
	key TEXT PRIMARY KEY,
	plex_id INTEGER NOT NULL,
	title TEXT NOT NULL,
	artist TEXT,
	album TEXT,
	year INTEGER,
	genres TEXT,  -- JSON array
	duration_ms INTEGER,
	guids TEXT,   -- JSON array
	artist_key INTEGER,
	album_key INTEGER,
	norm_title TEXT,
	norm_artist TEXT,
	norm_album TEXT,
	lookup_partial TEXT,
	duration_bucket INTEGER,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_plex_cache_plex_id ON plex_cache(plex_id);
CREATE INDEX IF NOT EXISTS idx_plex_cache_lookup_partial ON plex_cache(lookup_partial);
CREATE INDEX IF NOT EXISTS idx_plex_cache_duration_bucket ON plex_cache(duration_bucket);
CREATE INDEX IF NOT EXISTS idx_plex_cache_norm_artist ON plex_cache(norm_artist);

CREATE TABLE IF NOT EXISTS isrc_mbid_cache (
	isrc TEXT NOT NULL,
	mbid TEXT NOT NULL,
	mbid_type TEXT NOT NULL DEFAULT 'unknown',
	confidence REAL NOT NULL DEFAULT 0.5,
	is_negative BOOLEAN NOT NULL DEFAULT 0,
	cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (isrc, mbid)
);

CREATE INDEX IF NOT EXISTS idx_isrc_mbid_cached_at ON isrc_mbid_cache(cached_at, is_negative);

CREATE TABLE IF NOT EXISTS plex_mbid_index (
	mbid TEXT PRIMARY KEY,
	plex_id INTEGER NOT NULL,
	track_key TEXT,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_plex_mbid_plex_id ON plex_mbid_index(plex_id);

CREATE TABLE IF NOT EXISTS liked_tracks (
	plex_id INTEGER NOT NULL,
	source TEXT NOT NULL,
	track_key TEXT,
	synced_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (plex_id, source)
);

-- Kept for databases created before the extended cache existed
CREATE TABLE IF NOT EXISTS plexist (
	title TEXT,
	artist TEXT,
	album TEXT,
	year TEXT,
	genre TEXT,
	plex_id INTEGER
);
`

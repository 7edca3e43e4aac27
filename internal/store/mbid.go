package store

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gyarbij/plexist/internal/domain"
)

// MBIDCacheRow is one persisted ISRC to MBID resolution. A negative row has
// an empty mbid and records that the upstream lookup found nothing.
type MBIDCacheRow struct {
	ISRC       string    `db:"isrc"`
	MBID       string    `db:"mbid"`
	MBIDType   string    `db:"mbid_type"`
	Confidence float64   `db:"confidence"`
	IsNegative bool      `db:"is_negative"`
	CachedAt   time.Time `db:"cached_at"`
}

// MBIDCacheTTL holds the split expiry windows for the ISRC cache.
type MBIDCacheTTL struct {
	Positive time.Duration
	Negative time.Duration
}

func (t MBIDCacheTTL) expired(row MBIDCacheRow, now time.Time) bool {
	ttl := t.Positive
	if row.IsNegative {
		ttl = t.Negative
	}
	return now.Sub(row.CachedAt) > ttl
}

// GetCachedMBIDs looks up the cached resolutions for one ISRC. The second
// return value reports a usable cache hit: a valid negative row yields an
// empty set, a fully valid positive set yields its members, and anything
// expired or ambiguous is a miss so the caller re-fetches.
func (db *DB) GetCachedMBIDs(isrc string, ttl MBIDCacheTTL) ([]domain.ScoredMBID, bool, error) {
	var rows []MBIDCacheRow
	err := db.Select(&rows, `SELECT * FROM isrc_mbid_cache WHERE isrc = ?`, isrc)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query mbid cache: %w", err)
	}
	return partitionMBIDRows(rows, ttl, time.Now())
}

func partitionMBIDRows(rows []MBIDCacheRow, ttl MBIDCacheTTL, now time.Time) ([]domain.ScoredMBID, bool, error) {
	if len(rows) == 0 {
		return nil, false, nil
	}

	var positives []domain.ScoredMBID
	var expiredPositives int
	for _, row := range rows {
		if row.IsNegative {
			if !ttl.expired(row, now) {
				return []domain.ScoredMBID{}, true, nil
			}
			continue
		}
		if ttl.expired(row, now) {
			expiredPositives++
			continue
		}
		positives = append(positives, domain.ScoredMBID{
			MBID:       row.MBID,
			Type:       domain.MBIDType(row.MBIDType),
			Confidence: row.Confidence,
		})
	}

	// Partially expired positive sets force a re-fetch rather than
	// serving an incomplete answer.
	if len(positives) == 0 || expiredPositives > 0 {
		return nil, false, nil
	}
	return positives, true, nil
}

// SaveMBIDs persists a resolution. An empty set becomes a single negative
// row; a non-empty set clears any stale negative row first.
func (db *DB) SaveMBIDs(isrc string, mbids []domain.ScoredMBID) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin mbid cache save: %w", err)
	}
	if err := saveMBIDsTx(tx, isrc, mbids); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mbid cache save: %w", err)
	}
	return nil
}

func saveMBIDsTx(tx *sqlx.Tx, isrc string, mbids []domain.ScoredMBID) error {
	now := time.Now()
	if len(mbids) == 0 {
		_, err := tx.Exec(`
			INSERT INTO isrc_mbid_cache (isrc, mbid, mbid_type, confidence, is_negative, cached_at)
			VALUES (?, '', 'unknown', 0, 1, ?)
			ON CONFLICT(isrc, mbid) DO UPDATE SET is_negative = 1, cached_at = excluded.cached_at
		`, isrc, now)
		if err != nil {
			return fmt.Errorf("failed to save negative mbid row: %w", err)
		}
		return nil
	}

	if _, err := tx.Exec(`DELETE FROM isrc_mbid_cache WHERE isrc = ? AND is_negative = 1`, isrc); err != nil {
		return fmt.Errorf("failed to clear negative mbid rows: %w", err)
	}
	for _, m := range mbids {
		_, err := tx.Exec(`
			INSERT INTO isrc_mbid_cache (isrc, mbid, mbid_type, confidence, is_negative, cached_at)
			VALUES (?, ?, ?, ?, 0, ?)
			ON CONFLICT(isrc, mbid) DO UPDATE SET
				mbid_type = excluded.mbid_type,
				confidence = excluded.confidence,
				is_negative = 0,
				cached_at = excluded.cached_at
		`, isrc, m.MBID, string(m.Type), m.Confidence, now)
		if err != nil {
			return fmt.Errorf("failed to save mbid row %q: %w", m.MBID, err)
		}
	}
	return nil
}

// GetCachedMBIDsBatch resolves many ISRCs from cache in one query and
// partitions them into hits and misses.
func (db *DB) GetCachedMBIDsBatch(isrcs []string, ttl MBIDCacheTTL) (map[string][]domain.ScoredMBID, []string, error) {
	hits := make(map[string][]domain.ScoredMBID)
	if len(isrcs) == 0 {
		return hits, nil, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM isrc_mbid_cache WHERE isrc IN (?)`, isrcs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build mbid batch query: %w", err)
	}
	var rows []MBIDCacheRow
	if err := db.Select(&rows, db.Rebind(query), args...); err != nil {
		return nil, nil, fmt.Errorf("failed to query mbid cache batch: %w", err)
	}

	byISRC := make(map[string][]MBIDCacheRow)
	for _, row := range rows {
		byISRC[row.ISRC] = append(byISRC[row.ISRC], row)
	}

	now := time.Now()
	var misses []string
	for _, isrc := range isrcs {
		mbids, ok, err := partitionMBIDRows(byISRC[isrc], ttl, now)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			hits[isrc] = mbids
		} else {
			misses = append(misses, isrc)
		}
	}
	return hits, misses, nil
}

// CleanupExpiredMBIDs deletes rows older than their TTL window and returns
// the number removed.
func (db *DB) CleanupExpiredMBIDs(ttl MBIDCacheTTL) (int64, error) {
	now := time.Now()
	res, err := db.Exec(`
		DELETE FROM isrc_mbid_cache
		WHERE (is_negative = 1 AND cached_at < ?) OR (is_negative = 0 AND cached_at < ?)
	`, now.Add(-ttl.Negative), now.Add(-ttl.Positive))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup mbid cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// MBIDCacheStats summarizes the ISRC cache contents.
type MBIDCacheStats struct {
	PositiveISRCs int `db:"positive_isrcs"`
	NegativeISRCs int `db:"negative_isrcs"`
	TotalRows     int `db:"total_rows"`
}

// MBIDCacheStats reports positive and negative coverage of the ISRC cache.
func (db *DB) MBIDCacheStats() (MBIDCacheStats, error) {
	var stats MBIDCacheStats
	err := db.Get(&stats, `
		SELECT
			COUNT(DISTINCT CASE WHEN is_negative = 0 THEN isrc END) AS positive_isrcs,
			COUNT(DISTINCT CASE WHEN is_negative = 1 THEN isrc END) AS negative_isrcs,
			COUNT(*) AS total_rows
		FROM isrc_mbid_cache`)
	if err != nil {
		return stats, fmt.Errorf("failed to read mbid cache stats: %w", err)
	}
	return stats, nil
}

// MBIDIndexRow maps one MusicBrainz ID to a Plex library item.
type MBIDIndexRow struct {
	MBID      string    `db:"mbid"`
	PlexID    int64     `db:"plex_id"`
	TrackKey  string    `db:"track_key"`
	UpdatedAt time.Time `db:"updated_at"`
}

// LoadMBIDIndex returns the full persisted MBID index.
func (db *DB) LoadMBIDIndex() ([]MBIDIndexRow, error) {
	var rows []MBIDIndexRow
	if err := db.Select(&rows, `SELECT * FROM plex_mbid_index`); err != nil {
		return nil, fmt.Errorf("failed to load mbid index: %w", err)
	}
	return rows, nil
}

// SaveMBIDIndexBulk upserts a batch of MBID index rows in one transaction.
func (db *DB) SaveMBIDIndexBulk(rows []MBIDIndexRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin mbid index save: %w", err)
	}
	for _, row := range rows {
		_, err := tx.Exec(`
			INSERT INTO plex_mbid_index (mbid, plex_id, track_key, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(mbid) DO UPDATE SET
				plex_id = excluded.plex_id,
				track_key = excluded.track_key,
				updated_at = excluded.updated_at
		`, row.MBID, row.PlexID, row.TrackKey, time.Now())
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to save mbid index row %q: %w", row.MBID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit mbid index save: %w", err)
	}
	return nil
}

// RemoveMBIDIndex deletes one MBID mapping.
func (db *DB) RemoveMBIDIndex(mbid string) error {
	if _, err := db.Exec(`DELETE FROM plex_mbid_index WHERE mbid = ?`, mbid); err != nil {
		return fmt.Errorf("failed to remove mbid index row: %w", err)
	}
	return nil
}

// MBIDIndexCount reports the number of persisted MBID mappings.
func (db *DB) MBIDIndexCount() (int, error) {
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM plex_mbid_index`); err != nil {
		return 0, fmt.Errorf("failed to count mbid index: %w", err)
	}
	return n, nil
}

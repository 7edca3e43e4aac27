package store

import (
	"fmt"
	"time"

	"github.com/gyarbij/plexist/internal/domain"
)

// LikedTrackIDs returns the Plex ids already rated on behalf of a provider.
func (db *DB) LikedTrackIDs(source string) (map[int64]struct{}, error) {
	var ids []int64
	err := db.Select(&ids, `SELECT plex_id FROM liked_tracks WHERE source = ?`, source)
	if err != nil {
		return nil, fmt.Errorf("failed to load liked tracks: %w", err)
	}
	out := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// SaveLikedTrack records that a Plex track was rated for a provider.
func (db *DB) SaveLikedTrack(rec domain.LikedTrackRecord) error {
	if rec.SyncedAt.IsZero() {
		rec.SyncedAt = time.Now()
	}
	_, err := db.NamedExec(`
		INSERT INTO liked_tracks (plex_id, source, track_key, synced_at)
		VALUES (:plex_id, :source, :track_key, :synced_at)
		ON CONFLICT(plex_id, source) DO UPDATE SET
			track_key = excluded.track_key,
			synced_at = excluded.synced_at
	`, rec)
	if err != nil {
		return fmt.Errorf("failed to save liked track: %w", err)
	}
	return nil
}

// DeleteLikedTrack removes the record after a rating is revoked.
func (db *DB) DeleteLikedTrack(plexID int64, source string) error {
	_, err := db.Exec(`DELETE FROM liked_tracks WHERE plex_id = ? AND source = ?`, plexID, source)
	if err != nil {
		return fmt.Errorf("failed to delete liked track: %w", err)
	}
	return nil
}

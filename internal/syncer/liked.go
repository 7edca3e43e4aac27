package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/plex"
)

// SyncLikedTracks mirrors a provider's liked tracks onto Plex star ratings.
// Tracks liked upstream are rated, tracks unliked since the previous run
// have their rating cleared and their record removed.
func (s *Syncer) SyncLikedTracks(ctx context.Context, source string, liked []domain.Track) error {
	log := s.log.With("source", source)

	previous, err := s.db.LikedTrackIDs(source)
	if err != nil {
		return fmt.Errorf("failed to load synced liked tracks: %w", err)
	}

	matched, missing, err := s.matchAll(ctx, liked, log)
	if err != nil {
		return fmt.Errorf("failed to match liked tracks: %w", err)
	}
	if len(missing) > 0 {
		log.Info("some liked tracks have no library match", "missing", len(missing))
	}

	current := make(map[int64]struct{}, len(matched))
	rated := 0
	for _, track := range matched {
		current[track.RatingKey] = struct{}{}
		if _, ok := previous[track.RatingKey]; ok {
			continue
		}
		if err := s.plex.RateTrack(ctx, track.RatingKey, constants.RatingLiked); err != nil {
			log.WithTrack(track.Title, track.Artist).Warn("failed to rate track", "error", err)
			continue
		}
		if err := s.db.SaveLikedTrack(domain.LikedTrackRecord{
			PlexID:   track.RatingKey,
			Source:   source,
			TrackKey: track.Key(),
			SyncedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("failed to record liked track: %w", err)
		}
		rated++
	}

	revoked := 0
	for plexID := range previous {
		if _, ok := current[plexID]; ok {
			continue
		}
		err := s.plex.RateTrack(ctx, plexID, constants.RatingCleared)
		if err != nil && !errors.Is(err, plex.ErrNotFound) {
			log.Warn("failed to clear rating", "plex_id", plexID, "error", err)
			continue
		}
		// A deleted track cannot keep its record either.
		if err := s.db.DeleteLikedTrack(plexID, source); err != nil {
			return fmt.Errorf("failed to remove liked track record: %w", err)
		}
		revoked++
	}

	log.Info("liked track sync complete", "liked", len(liked), "rated", rated, "revoked", revoked)
	return nil
}

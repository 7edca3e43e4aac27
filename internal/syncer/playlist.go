package syncer

import (
	"context"
	"fmt"

	"github.com/gyarbij/plexist/internal/domain"
)

// SyncPlaylist matches the wanted tracks and writes them to the Plex
// playlist of the same name, creating it when absent. Unless append mode
// is on, the playlist contents are replaced.
func (s *Syncer) SyncPlaylist(ctx context.Context, playlist domain.Playlist, tracks []domain.Track) error {
	log := s.log.With("playlist", playlist.Name)

	matched, missing, err := s.matchAll(ctx, tracks, log)
	if err != nil {
		return fmt.Errorf("failed to match playlist %q: %w", playlist.Name, err)
	}
	log.Info("playlist matched", "wanted", len(tracks), "matched", len(matched), "missing", len(missing))

	keys := ratingKeys(matched)
	if len(keys) > 0 {
		if err := s.writePlaylist(ctx, playlist, keys); err != nil {
			return err
		}
	} else {
		log.Warn("no tracks matched, leaving playlist untouched")
	}

	if err := s.WriteMissing(playlist.Name, missing); err != nil {
		log.Warn("failed to write missing track report", "error", err)
	}
	return nil
}

func (s *Syncer) writePlaylist(ctx context.Context, playlist domain.Playlist, keys []int64) error {
	existing, err := s.plex.PlaylistByName(ctx, playlist.Name)
	if err != nil {
		return fmt.Errorf("failed to look up playlist %q: %w", playlist.Name, err)
	}

	var playlistID int64
	if existing == nil {
		created, err := s.plex.CreatePlaylist(ctx, playlist.Name, keys)
		if err != nil {
			return fmt.Errorf("failed to create playlist %q: %w", playlist.Name, err)
		}
		playlistID = created.ID
	} else {
		playlistID = existing.ID
		if !s.cfg.AppendInsteadOfSync {
			if err := s.plex.ClearPlaylist(ctx, playlistID); err != nil {
				return fmt.Errorf("failed to clear playlist %q: %w", playlist.Name, err)
			}
		}
		if err := s.plex.AddToPlaylist(ctx, playlistID, keys); err != nil {
			return fmt.Errorf("failed to add tracks to playlist %q: %w", playlist.Name, err)
		}
	}

	if s.cfg.AddPlaylistDescription && playlist.Description != "" {
		if err := s.plex.EditPlaylist(ctx, playlistID, playlist.Description); err != nil {
			s.log.Warn("failed to set playlist description", "playlist", playlist.Name, "error", err)
		}
	}
	if s.cfg.AddPlaylistPoster && playlist.Poster != "" {
		if err := s.plex.UploadPoster(ctx, playlistID, playlist.Poster); err != nil {
			s.log.Warn("failed to upload playlist poster", "playlist", playlist.Name, "error", err)
		}
	}
	return nil
}

// ratingKeys extracts rating keys in playlist order, dropping duplicates.
func ratingKeys(tracks []*domain.PlexTrack) []int64 {
	seen := make(map[int64]struct{}, len(tracks))
	keys := make([]int64, 0, len(tracks))
	for _, t := range tracks {
		if _, ok := seen[t.RatingKey]; ok {
			continue
		}
		seen[t.RatingKey] = struct{}{}
		keys = append(keys, t.RatingKey)
	}
	return keys
}

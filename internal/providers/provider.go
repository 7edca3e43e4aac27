// Package providers adapts external music services to canonical tracks
// and playlists.
package providers

import (
	"context"
	"fmt"

	"github.com/gyarbij/plexist/internal/config"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
)

// Provider is a music service exposing playlists and liked tracks.
type Provider interface {
	Name() string
	Playlists(ctx context.Context) ([]domain.Playlist, error)
	Tracks(ctx context.Context, playlist domain.Playlist) ([]domain.Track, error)
	LikedTracks(ctx context.Context) ([]domain.Track, error)
}

// FromConfig builds the providers enabled by configuration.
func FromConfig(ctx context.Context, cfg *config.Config, log *logger.Logger) ([]Provider, error) {
	var list []Provider

	if cfg.SpotifyClientID != "" {
		sp, err := NewSpotifyProvider(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret, cfg.SpotifyUserID, log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize spotify provider: %w", err)
		}
		list = append(list, sp)
	}

	return list, nil
}

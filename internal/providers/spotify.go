package providers

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
)

// SpotifyProvider reads a user's public playlists through the Spotify Web
// API using client-credentials auth.
type SpotifyProvider struct {
	client *spotify.Client
	userID string
	log    *logger.Logger
}

// NewSpotifyProvider creates a Spotify provider with a long-lived
// client-credentials token source.
func NewSpotifyProvider(ctx context.Context, clientID, clientSecret, userID string, log *logger.Logger) (*SpotifyProvider, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("spotify client ID and secret are required")
	}
	if userID == "" {
		return nil, fmt.Errorf("spotify user ID is required")
	}

	conf := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := conf.Client(ctx)

	return &SpotifyProvider{
		client: spotify.New(httpClient),
		userID: userID,
		log:    log.WithComponent("spotify"),
	}, nil
}

func (p *SpotifyProvider) Name() string {
	return "spotify"
}

// Playlists returns the user's playlists. Each playlist is re-fetched in
// full because the list endpoint omits descriptions.
func (p *SpotifyProvider) Playlists(ctx context.Context) ([]domain.Playlist, error) {
	page, err := p.client.GetPlaylistsForUser(ctx, p.userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists for user %s: %w", p.userID, err)
	}

	var ids []spotify.ID
	for {
		for _, sp := range page.Playlists {
			ids = append(ids, sp.ID)
		}
		err = p.client.NextPage(ctx, page)
		if err == spotify.ErrNoMorePages {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to page playlists: %w", err)
		}
	}

	playlists := make([]domain.Playlist, 0, len(ids))
	for _, id := range ids {
		full, err := p.client.GetPlaylist(ctx, id)
		if err != nil {
			p.log.Warn("failed to fetch playlist details", "playlist_id", string(id), "error", err)
			continue
		}
		pl := domain.Playlist{
			ID:          string(full.ID),
			Name:        full.Name,
			Description: full.Description,
		}
		if len(full.Images) > 0 {
			pl.Poster = full.Images[0].URL
		}
		playlists = append(playlists, pl)
	}
	return playlists, nil
}

// Tracks returns the playable tracks of a playlist. Local files and
// episodes carry no track payload and are skipped.
func (p *SpotifyProvider) Tracks(ctx context.Context, playlist domain.Playlist) ([]domain.Track, error) {
	page, err := p.client.GetPlaylistItems(ctx, spotify.ID(playlist.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist items for %s: %w", playlist.Name, err)
	}

	var tracks []domain.Track
	for {
		for _, item := range page.Items {
			if item.Track.Track == nil || item.IsLocal {
				continue
			}
			tracks = append(tracks, trackFromFull(item.Track.Track))
		}
		err = p.client.NextPage(ctx, page)
		if err == spotify.ErrNoMorePages {
			break
		}
		if err != nil {
			return tracks, fmt.Errorf("failed to page playlist items for %s: %w", playlist.Name, err)
		}
	}
	return tracks, nil
}

// LikedTracks requires a user-authorized token, which client-credentials
// auth cannot provide. The library is reported as empty.
func (p *SpotifyProvider) LikedTracks(ctx context.Context) ([]domain.Track, error) {
	p.log.Warn("liked tracks need user authorization, none available with client credentials")
	return nil, nil
}

func trackFromFull(ft *spotify.FullTrack) domain.Track {
	var artist string
	if len(ft.Artists) > 0 {
		artist = ft.Artists[0].Name
	}
	return domain.Track{
		Title:      ft.Name,
		Artist:     artist,
		Album:      ft.Album.Name,
		URL:        ft.ExternalURLs["spotify"],
		Year:       yearFromRelease(ft.Album.ReleaseDate),
		ISRC:       ft.ExternalIDs["isrc"],
		DurationMS: int64(ft.Duration),
	}
}

func yearFromRelease(release string) string {
	if len(release) >= 4 {
		return release[:4]
	}
	return ""
}

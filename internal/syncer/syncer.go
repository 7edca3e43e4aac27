// Package syncer drives playlist and liked-track synchronization from
// external providers into a Plex server.
package syncer

import (
	"context"
	"sync"

	"github.com/gyarbij/plexist/internal/config"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/plex"
	"github.com/gyarbij/plexist/internal/ratelimit"
	"github.com/gyarbij/plexist/internal/store"
)

// Matcher resolves a wanted track to a Plex library track.
type Matcher interface {
	Match(ctx context.Context, want domain.Track) (domain.MatchResult, error)
}

// PlexWriter covers the Plex server operations the syncer performs.
type PlexWriter interface {
	RateTrack(ctx context.Context, ratingKey int64, rating float64) error
	PlaylistByName(ctx context.Context, name string) (*plex.Playlist, error)
	CreatePlaylist(ctx context.Context, name string, ratingKeys []int64) (*plex.Playlist, error)
	AddToPlaylist(ctx context.Context, playlistID int64, ratingKeys []int64) error
	ClearPlaylist(ctx context.Context, playlistID int64) error
	EditPlaylist(ctx context.Context, playlistID int64, summary string) error
	UploadPoster(ctx context.Context, playlistID int64, posterURL string) error
}

// Syncer applies provider state to Plex under the shared request governor.
type Syncer struct {
	cfg    *config.Config
	plex   PlexWriter
	engine Matcher
	db     *store.DB
	gov    *ratelimit.Governor
	log    *logger.Logger
}

func New(cfg *config.Config, writer PlexWriter, engine Matcher, db *store.DB, gov *ratelimit.Governor, log *logger.Logger) *Syncer {
	return &Syncer{
		cfg:    cfg,
		plex:   writer,
		engine: engine,
		db:     db,
		gov:    gov,
		log:    log.WithComponent("syncer"),
	}
}

// matchAll matches tracks with fan-out bounded by the governor semaphore.
// Per-track failures are logged and the track lands on the missing side.
func (s *Syncer) matchAll(ctx context.Context, tracks []domain.Track, log *logger.Logger) ([]*domain.PlexTrack, []domain.Track, error) {
	type slot struct {
		matched *domain.PlexTrack
		missing *domain.Track
	}
	slots := make([]slot, len(tracks))

	var wg sync.WaitGroup
	for i, track := range tracks {
		if err := s.gov.Acquire(ctx); err != nil {
			wg.Wait()
			return nil, nil, err
		}
		wg.Add(1)
		go func(i int, track domain.Track) {
			defer wg.Done()
			defer s.gov.Release()

			result, err := s.engine.Match(ctx, track)
			if err != nil {
				log.WithTrack(track.Title, track.Artist).Warn("match failed, treating track as missing", "error", err)
				missing := track
				slots[i] = slot{missing: &missing}
				return
			}
			slots[i] = slot{matched: result.Matched, missing: result.Missing}
		}(i, track)
	}
	wg.Wait()

	var matched []*domain.PlexTrack
	var missing []domain.Track
	for _, sl := range slots {
		switch {
		case sl.matched != nil:
			matched = append(matched, sl.matched)
		case sl.missing != nil:
			missing = append(missing, *sl.missing)
		}
	}
	return matched, missing, nil
}

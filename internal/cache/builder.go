package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/store"
)

// LibrarySource pages through the Plex music section.
type LibrarySource interface {
	LibraryTracks(ctx context.Context, offset, limit int) ([]*domain.PlexTrack, int, error)
}

// Builder fills the Library from the Plex server and keeps the persisted
// cache in step, one page per flush.
type Builder struct {
	lib      *Library
	db       *store.DB
	source   LibrarySource
	log      *logger.Logger
	building atomic.Bool
}

func NewBuilder(lib *Library, db *store.DB, source LibrarySource, log *logger.Logger) *Builder {
	return &Builder{
		lib:    lib,
		db:     db,
		source: source,
		log:    log.WithComponent("cache_builder"),
	}
}

// Building reports whether a scan is in flight.
func (b *Builder) Building() bool {
	return b.building.Load()
}

// Rehydrate loads the persisted cache into memory and merges the persisted
// MBID index entries the scan has not seen. Returns the number of tracks
// loaded; zero means the caller should schedule a full build.
func (b *Builder) Rehydrate(ctx context.Context) (int, error) {
	rows, err := b.db.LoadPlexCache()
	if err != nil {
		return 0, fmt.Errorf("failed to load persisted cache: %w", err)
	}
	for _, row := range rows {
		b.lib.Upsert(row.Track())
	}

	if len(rows) == 0 {
		// Databases created before the extended cache only have the
		// legacy table. Its rows carry no duration or GUIDs but still
		// serve the exact-key stages.
		legacy, err := b.db.LoadLegacyTracks()
		if err == nil {
			for _, lr := range legacy {
				b.lib.Upsert(&domain.PlexTrack{
					RatingKey: lr.PlexID,
					Title:     lr.Title,
					Artist:    lr.Artist,
					Album:     lr.Album,
					Genres:    domain.StringSlice{lr.Genre},
					Stub:      true,
				})
			}
			if len(legacy) > 0 {
				b.log.Info("rehydrated from legacy table", "tracks", len(legacy))
			}
		}
	}

	index, err := b.db.LoadMBIDIndex()
	if err != nil {
		return b.lib.Size(), fmt.Errorf("failed to load mbid index: %w", err)
	}
	var merged int
	for _, row := range index {
		if _, ok := b.lib.ByMBID(row.MBID); ok {
			continue
		}
		b.lib.SetMBID(row.MBID, MBIDEntry{PlexID: row.PlexID, TrackKey: row.TrackKey})
		merged++
	}

	loaded := b.lib.Size()
	b.log.Info("cache rehydrated",
		"tracks", loaded, "mbid_entries", b.lib.MBIDCount(), "mbid_merged", merged)
	return loaded, nil
}

// Build scans the whole music section page by page, indexing and persisting
// as it goes. Concurrent calls are collapsed into the running scan.
func (b *Builder) Build(ctx context.Context) error {
	if !b.building.CompareAndSwap(false, true) {
		b.log.Debug("build already in progress")
		return nil
	}
	defer b.building.Store(false)

	start := time.Now()
	offset := 0
	var total, indexed int

	for {
		tracks, totalSize, err := b.fetchPage(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// A page that fails all retries is skipped so one bad span
			// cannot stall the whole scan.
			b.log.Error("page failed after retries, skipping", "offset", offset, "error", err)
			offset += constants.PlexBatchSize
			select {
			case <-time.After(constants.PageFailurePause):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		total = totalSize

		if len(tracks) == 0 {
			break
		}
		if err := b.indexPage(tracks); err != nil {
			return err
		}
		indexed += len(tracks)
		offset += len(tracks)

		if total > 0 && offset >= total {
			break
		}
		select {
		case <-time.After(constants.PageFetchPause):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.log.Info("library scan complete",
		"tracks", indexed, "mbid_entries", b.lib.MBIDCount(), "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

func (b *Builder) fetchPage(ctx context.Context, offset int) ([]*domain.PlexTrack, int, error) {
	var lastErr error
	for attempt := 0; attempt < constants.DefaultRetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(retryBackoff(attempt)):
			case <-ctx.Done():
				return nil, 0, ctx.Err()
			}
		}
		tracks, total, err := b.source.LibraryTracks(ctx, offset, constants.PlexBatchSize)
		if err == nil {
			return tracks, total, nil
		}
		lastErr = err
		b.log.Warn("page fetch failed", "offset", offset, "attempt", attempt+1, "error", err)
	}
	return nil, 0, lastErr
}

// retryBackoff doubles the wait per failed attempt: base, 2x, 4x.
func retryBackoff(attempt int) time.Duration {
	return constants.DefaultRetryBase << (attempt - 1)
}

func (b *Builder) indexPage(tracks []*domain.PlexTrack) error {
	rows := make([]store.PlexCacheRow, 0, len(tracks))
	var mbidRows []store.MBIDIndexRow

	for _, track := range tracks {
		b.lib.Upsert(track)
		rows = append(rows, store.NewPlexCacheRow(track, b.lib.BucketSeconds()))
		for _, m := range track.MBIDs() {
			mbidRows = append(mbidRows, store.MBIDIndexRow{
				MBID:     m,
				PlexID:   track.RatingKey,
				TrackKey: track.Key(),
			})
		}
	}

	if err := b.db.UpsertPlexCacheRows(rows); err != nil {
		return fmt.Errorf("failed to persist cache page: %w", err)
	}
	if err := b.db.SaveMBIDIndexBulk(mbidRows); err != nil {
		return fmt.Errorf("failed to persist mbid index page: %w", err)
	}
	return nil
}

// Clear wipes the in-memory indexes and the persisted cache table.
func (b *Builder) Clear() error {
	b.lib.Clear()
	if err := b.db.ClearPlexCache(); err != nil {
		return err
	}
	b.log.Info("cache cleared")
	return nil
}

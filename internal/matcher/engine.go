// Package matcher finds the Plex library item for a canonical track. Stages
// run cheapest first: identifier lookups, then exact keys, then fuzzy cache
// scans, and a live server search only as the last resort.
package matcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/gyarbij/plexist/internal/cache"
	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/store"
)

// TrackSource is the live Plex side of the engine.
type TrackSource interface {
	FetchTrack(ctx context.Context, ratingKey int64) (*domain.PlexTrack, error)
	SearchTracks(ctx context.Context, query string, limit int) ([]*domain.PlexTrack, error)
	SearchByGUID(ctx context.Context, guid string) ([]*domain.PlexTrack, error)
}

// MBIDResolver turns an ISRC into scored MusicBrainz ids.
type MBIDResolver interface {
	Resolve(ctx context.Context, isrc string) ([]domain.ScoredMBID, error)
}

type indexSink interface {
	SaveMBIDIndexBulk(rows []store.MBIDIndexRow) error
}

// Engine matches one track at a time; callers fan out under the shared
// governor's semaphore.
type Engine struct {
	lib      *cache.Library
	source   TrackSource
	resolver MBIDResolver // nil when MusicBrainz is disabled
	sink     indexSink
	extended bool // normalized, duration and artist index stages
	log      *logger.Logger
}

func NewEngine(lib *cache.Library, source TrackSource, resolver MBIDResolver, sink indexSink, extendedCache bool, log *logger.Logger) *Engine {
	return &Engine{
		lib:      lib,
		source:   source,
		resolver: resolver,
		sink:     sink,
		extended: extendedCache,
		log:      log.WithComponent("matcher"),
	}
}

// Match runs the staged pipeline. Exactly one of Matched and Missing is set
// in the result; an error means a stage failed in a way worth surfacing, not
// that the track is absent.
func (e *Engine) Match(ctx context.Context, want domain.Track) (domain.MatchResult, error) {
	log := e.log.WithTrack(want.Title, want.Artist)

	if hit := e.matchByISRC(ctx, want, log); hit != nil {
		log.Debug("matched via isrc")
		return domain.MatchResult{Matched: hit}, nil
	}

	mbids := e.resolveMBIDs(ctx, want, log)

	if hit := e.matchByMBIDIndex(mbids); hit != nil {
		log.Debug("matched via mbid index")
		return domain.MatchResult{Matched: hit}, nil
	}
	if hit := e.matchByMBIDProxy(ctx, mbids, log); hit != nil {
		log.Debug("matched via mbid proxy")
		return domain.MatchResult{Matched: hit}, nil
	}

	if e.extended {
		keys := domain.BuildLookupKeys(want.Title, want.Artist, want.Album)
		if hit, ok := e.lib.ByLookupFull(keys.Full); ok {
			log.Debug("matched via normalized key")
			return domain.MatchResult{Matched: hit}, nil
		}
		if hit := e.matchByDuration(want, keys); hit != nil {
			log.Debug("matched via duration bucket")
			return domain.MatchResult{Matched: hit}, nil
		}
		if hit := e.matchByArtist(want, keys); hit != nil {
			log.Debug("matched via artist index")
			return domain.MatchResult{Matched: hit}, nil
		}
	}
	if hit, ok := e.lib.ByKey(want.Key()); ok {
		log.Debug("matched via raw key")
		return domain.MatchResult{Matched: hit}, nil
	}
	if hit := e.matchBySearch(ctx, want, log); hit != nil {
		return domain.MatchResult{Matched: hit}, nil
	}

	log.Debug("no match found")
	missing := want
	return domain.MatchResult{Missing: &missing}, nil
}

// Stage: a track tagged with the wanted ISRC is the strongest identity Plex
// can offer, checked before any fuzzy work.
func (e *Engine) matchByISRC(ctx context.Context, want domain.Track, log *logger.Logger) *domain.PlexTrack {
	if want.ISRC == "" {
		return nil
	}
	found, err := e.source.SearchByGUID(ctx, "isrc://"+domain.NormalizeISRC(want.ISRC))
	if err != nil {
		log.Warn("isrc search failed", "isrc", want.ISRC, "error", err)
		return nil
	}
	if len(found) == 0 {
		return nil
	}
	return found[0]
}

func (e *Engine) resolveMBIDs(ctx context.Context, want domain.Track, log *logger.Logger) []domain.ScoredMBID {
	if e.resolver == nil || want.ISRC == "" {
		return nil
	}
	mbids, err := e.resolver.Resolve(ctx, want.ISRC)
	if err != nil {
		log.Warn("isrc resolution failed", "isrc", want.ISRC, "error", err)
		return nil
	}
	return mbids
}

// Stage: a resolved MBID whose index entry carries a loaded track is an
// immediate match.
func (e *Engine) matchByMBIDIndex(mbids []domain.ScoredMBID) *domain.PlexTrack {
	for _, m := range mbids {
		if entry, ok := e.lib.ByMBID(m.MBID); ok && entry.Track != nil {
			return entry.Track
		}
	}
	return nil
}

// Stage: id-only index entries are fetched from the server and written back;
// with no index entry at all, each candidate MBID gets one GUID search.
func (e *Engine) matchByMBIDProxy(ctx context.Context, mbids []domain.ScoredMBID, log *logger.Logger) *domain.PlexTrack {
	for _, m := range mbids {
		entry, ok := e.lib.ByMBID(m.MBID)
		if !ok || entry.Track != nil {
			continue
		}
		track, err := e.source.FetchTrack(ctx, entry.PlexID)
		if err != nil {
			log.Warn("mbid proxy fetch failed", "plex_id", entry.PlexID, "error", err)
			continue
		}
		e.cacheMBIDTrack(m.MBID, track, log)
		return track
	}

	for _, m := range mbids {
		if _, ok := e.lib.ByMBID(m.MBID); ok {
			continue
		}
		found, err := e.source.SearchByGUID(ctx, "mbid://"+m.MBID)
		if err != nil {
			log.Warn("guid search failed", "mbid", m.MBID, "error", err)
			continue
		}
		if len(found) > 0 {
			e.cacheMBIDTrack(m.MBID, found[0], log)
			return found[0]
		}
	}
	return nil
}

func (e *Engine) cacheMBIDTrack(mbid string, track *domain.PlexTrack, log *logger.Logger) {
	e.lib.AttachMBIDTrack(mbid, track)
	if e.sink == nil {
		return
	}
	err := e.sink.SaveMBIDIndexBulk([]store.MBIDIndexRow{{
		MBID:     mbid,
		PlexID:   track.RatingKey,
		TrackKey: track.Key(),
	}})
	if err != nil {
		log.Warn("failed to persist mbid entry", "mbid", mbid, "error", err)
	}
}

// Stage: same normalized title and artist, duration within tolerance of the
// wanted track, best score wins.
func (e *Engine) matchByDuration(want domain.Track, keys domain.LookupKeys) *domain.PlexTrack {
	if want.DurationMS <= 0 {
		return nil
	}
	bucket := domain.DurationBucket(want.DurationMS, e.lib.BucketSeconds())
	candidates := e.lib.PartialNearDuration(keys.Partial, bucket)
	if len(candidates) == 0 {
		return nil
	}

	tolerance := int64(constants.MinDurationToleranceMS)
	if w := int64(e.lib.BucketSeconds()) * 1000; w > tolerance {
		tolerance = w
	}

	var best *domain.PlexTrack
	var bestScore float64
	for _, cand := range candidates {
		diff := want.DurationMS - cand.DurationMS
		if diff < 0 {
			diff = -diff
		}
		if diff > tolerance {
			continue
		}
		if Similarity(want.Title, cand.Title) < constants.ThresholdPartialTitle {
			continue
		}
		if s := Score(want, cand); s > bestScore {
			best, bestScore = cand, s
		}
	}
	return best
}

// Stage: all cached tracks by the same artist, fuzzy title.
func (e *Engine) matchByArtist(want domain.Track, keys domain.LookupKeys) *domain.PlexTrack {
	var best *domain.PlexTrack
	var bestScore float64
	for _, cand := range e.lib.ByArtist(keys.Artist) {
		if Similarity(want.Title, cand.Title) < constants.ThresholdArtistFuzzy {
			continue
		}
		if s := Score(want, cand); s > bestScore {
			best, bestScore = cand, s
		}
	}
	return best
}

// Stage: progressive search. Each pass scores the cached candidates against
// the wanted track, falls back to a live text search only when the cache
// comes up short of the pass threshold, and accepts the best candidate whose
// weighted score clears it. Query shapes relax from full metadata down to
// title only, with thresholds to match.
func (e *Engine) matchBySearch(ctx context.Context, want domain.Track, log *logger.Logger) *domain.PlexTrack {
	cached := e.searchCandidates(want)

	type pass struct {
		query     string
		threshold float64
	}
	passes := []pass{
		{want.Title + " " + want.Artist + " " + want.Album, constants.ThresholdSearchStrict},
	}
	if words := strings.Fields(want.Title); len(words) > 1 {
		passes = append(passes, pass{strings.Join(words[:2], " ") + " " + want.Artist, constants.ThresholdSearchPartialTitle})
	}
	passes = append(passes,
		pass{want.Artist, constants.ThresholdSearchArtistOnly},
		pass{want.Title, constants.ThresholdSearchTitleOnly},
	)

	for _, p := range passes {
		best, score := bestScored(want, cached)
		if score < p.threshold {
			found, err := e.source.SearchTracks(ctx, p.query, constants.LiveSearchLimit)
			if err != nil {
				log.Warn("live search failed", "query", p.query, "error", err)
			} else if liveBest, liveScore := bestScored(want, found); liveScore > score {
				best, score = liveBest, liveScore
			}
		}
		if best != nil && score >= p.threshold {
			log.Debug("matched via search", "query", p.query, "score", score)
			return best
		}
	}
	return nil
}

// searchCandidates narrows the cache scan to tracks sharing an exact title,
// artist or album string with the wanted track; with no such overlap the
// scan falls back to a capped slice of the whole cache.
func (e *Engine) searchCandidates(want domain.Track) []*domain.PlexTrack {
	all := e.lib.Snapshot(0)

	title := strings.ToLower(want.Title)
	artist := strings.ToLower(want.Artist)
	album := strings.ToLower(want.Album)
	var filtered []*domain.PlexTrack
	for _, cand := range all {
		if strings.ToLower(cand.Title) == title ||
			strings.ToLower(cand.Artist) == artist ||
			strings.ToLower(cand.Album) == album {
			filtered = append(filtered, cand)
		}
	}
	if len(filtered) > 0 {
		return filtered
	}
	if len(all) > constants.MaxSearchCandidates {
		all = all[:constants.MaxSearchCandidates]
	}
	return all
}

// bestScored returns the highest-scoring candidate; ties keep the earliest
// candidate so repeated scans over the same slice stay deterministic.
func bestScored(want domain.Track, candidates []*domain.PlexTrack) (*domain.PlexTrack, float64) {
	var best *domain.PlexTrack
	var bestScore float64
	for _, cand := range candidates {
		if s := Score(want, cand); s > bestScore {
			best, bestScore = cand, s
		}
	}
	return best, bestScore
}

// MatchAll matches a slice of tracks sequentially, collecting both sides.
// Concurrent use sits in the sync layer where the governor lives.
func (e *Engine) MatchAll(ctx context.Context, tracks []domain.Track) ([]*domain.PlexTrack, []domain.Track, error) {
	var matched []*domain.PlexTrack
	var missing []domain.Track
	for _, track := range tracks {
		if ctx.Err() != nil {
			return matched, missing, ctx.Err()
		}
		result, err := e.Match(ctx, track)
		if err != nil {
			return matched, missing, fmt.Errorf("match failed for %q: %w", track.Title, err)
		}
		if result.Matched != nil {
			matched = append(matched, result.Matched)
		} else {
			missing = append(missing, *result.Missing)
		}
	}
	return matched, missing, nil
}

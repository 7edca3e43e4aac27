package musicbrainz

import (
	"context"
	"fmt"
	"time"

	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/store"
)

// ISRCLookup is the upstream side of the resolver.
type ISRCLookup interface {
	LookupISRC(ctx context.Context, isrc string) (mbids []domain.ScoredMBID, cacheable bool, err error)
}

// Resolver answers ISRC to MBID questions cache-first. Positive and negative
// answers age out on separate windows; transient upstream failures are never
// written down.
type Resolver struct {
	client ISRCLookup
	db     *store.DB
	ttl    store.MBIDCacheTTL
	log    *logger.Logger
}

func NewResolver(client ISRCLookup, db *store.DB, positiveTTLDays, negativeTTLDays int, log *logger.Logger) *Resolver {
	return &Resolver{
		client: client,
		db:     db,
		ttl: store.MBIDCacheTTL{
			Positive: time.Duration(positiveTTLDays) * 24 * time.Hour,
			Negative: time.Duration(negativeTTLDays) * 24 * time.Hour,
		},
		log: log.WithComponent("mbid_resolver"),
	}
}

// Resolve returns the scored MBIDs for one ISRC, hitting the network only on
// a cache miss. An empty slice with a nil error means the ISRC is known to
// have no MusicBrainz presence.
func (r *Resolver) Resolve(ctx context.Context, isrc string) ([]domain.ScoredMBID, error) {
	isrc = domain.NormalizeISRC(isrc)
	if isrc == "" {
		return nil, nil
	}

	cached, ok, err := r.db.GetCachedMBIDs(isrc, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("mbid cache read failed: %w", err)
	}
	if ok {
		return degradeToCached(cached), nil
	}
	return r.fetchAndCache(ctx, isrc)
}

func (r *Resolver) fetchAndCache(ctx context.Context, isrc string) ([]domain.ScoredMBID, error) {
	mbids, cacheable, err := r.client.LookupISRC(ctx, isrc)
	if err != nil {
		return nil, fmt.Errorf("isrc lookup failed: %w", err)
	}
	if cacheable {
		if err := r.db.SaveMBIDs(isrc, mbids); err != nil {
			return nil, fmt.Errorf("mbid cache write failed: %w", err)
		}
	}
	return mbids, nil
}

// ResolveBatch answers many ISRCs with one cache query, then fetches the
// misses sequentially under the upstream rate limit.
func (r *Resolver) ResolveBatch(ctx context.Context, isrcs []string) (map[string][]domain.ScoredMBID, error) {
	normalized := dedupeISRCs(isrcs)

	hits, misses, err := r.db.GetCachedMBIDsBatch(normalized, r.ttl)
	if err != nil {
		return nil, fmt.Errorf("mbid cache batch read failed: %w", err)
	}
	out := make(map[string][]domain.ScoredMBID, len(normalized))
	for isrc, mbids := range hits {
		out[isrc] = degradeToCached(mbids)
	}

	for _, isrc := range misses {
		mbids, err := r.fetchAndCache(ctx, isrc)
		if err != nil {
			return nil, err
		}
		out[isrc] = mbids
	}
	return out, nil
}

// WarmCache prefetches resolutions for a list of ISRCs, logging progress on
// long runs.
func (r *Resolver) WarmCache(ctx context.Context, isrcs []string) error {
	_, misses, err := r.db.GetCachedMBIDsBatch(dedupeISRCs(isrcs), r.ttl)
	if err != nil {
		return fmt.Errorf("mbid cache batch read failed: %w", err)
	}
	if len(misses) == 0 {
		return nil
	}

	r.log.Info("warming mbid cache", "isrcs", len(misses))
	for i, isrc := range misses {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := r.fetchAndCache(ctx, isrc); err != nil {
			r.log.Warn("cache warm failed for isrc", "isrc", isrc, "error", err)
			continue
		}
		if (i+1)%50 == 0 {
			r.log.Info("cache warm progress", "done", i+1, "total", len(misses))
		}
	}
	return nil
}

// CleanupExpired removes aged-out rows, typically once at startup.
func (r *Resolver) CleanupExpired() error {
	n, err := r.db.CleanupExpiredMBIDs(r.ttl)
	if err != nil {
		return err
	}
	if n > 0 {
		r.log.Info("removed expired mbid cache rows", "rows", n)
	}
	return nil
}

// Stats reports cache coverage alongside the configured TTL windows.
func (r *Resolver) Stats() (store.MBIDCacheStats, store.MBIDCacheTTL, error) {
	stats, err := r.db.MBIDCacheStats()
	return stats, r.ttl, err
}

// Cache hits surface as unknown-type MBIDs so stored confidences never
// outrank a fresh upstream answer.
func degradeToCached(mbids []domain.ScoredMBID) []domain.ScoredMBID {
	out := make([]domain.ScoredMBID, len(mbids))
	for i, m := range mbids {
		out[i] = domain.NewScoredMBID(m.MBID, domain.MBIDTypeUnknown)
	}
	return out
}

func dedupeISRCs(isrcs []string) []string {
	seen := make(map[string]struct{}, len(isrcs))
	out := make([]string, 0, len(isrcs))
	for _, isrc := range isrcs {
		n := domain.NormalizeISRC(isrc)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Package cache keeps an in-memory mirror of the Plex music library keyed
// for the match pipeline: raw keys, normalized lookup keys, per-artist lists,
// duration buckets and a MusicBrainz ID index.
package cache

import (
	"sync"

	"github.com/gyarbij/plexist/internal/domain"
)

// MBIDEntry maps one MusicBrainz ID to a library item. Track is nil when the
// entry was rehydrated from the persisted index and the full item has not
// been fetched yet.
type MBIDEntry struct {
	PlexID   int64
	TrackKey string
	Track    *domain.PlexTrack
}

// Library is safe for concurrent use. All writes go through Upsert, SetMBID
// and Clear; reads take the shared lock.
type Library struct {
	mu                sync.RWMutex
	byKey             map[string]*domain.PlexTrack
	byLookupFull      map[string]*domain.PlexTrack
	byLookupPartial   map[string][]*domain.PlexTrack
	byArtist          map[string][]*domain.PlexTrack
	byPartialDuration map[string]map[int64][]*domain.PlexTrack
	ordered           []*domain.PlexTrack
	mbid              map[string]MBIDEntry
	bucketSeconds     int
}

func NewLibrary(bucketSeconds int) *Library {
	l := &Library{bucketSeconds: bucketSeconds}
	l.reset()
	return l
}

func (l *Library) reset() {
	l.byKey = make(map[string]*domain.PlexTrack)
	l.byLookupFull = make(map[string]*domain.PlexTrack)
	l.byLookupPartial = make(map[string][]*domain.PlexTrack)
	l.byArtist = make(map[string][]*domain.PlexTrack)
	l.byPartialDuration = make(map[string]map[int64][]*domain.PlexTrack)
	l.ordered = nil
	l.mbid = make(map[string]MBIDEntry)
}

// BucketSeconds reports the configured duration bucket width.
func (l *Library) BucketSeconds() int {
	return l.bucketSeconds
}

// Upsert indexes one library item under every lookup structure. A track
// re-scanned with new metadata replaces its previous entry by raw key;
// stale list entries for the same rating key are dropped on the way.
func (l *Library) Upsert(track *domain.PlexTrack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.upsertLocked(track)
}

func (l *Library) upsertLocked(track *domain.PlexTrack) {
	key := track.Key()
	if prev, ok := l.byKey[key]; ok {
		l.removeFromListsLocked(prev)
		if prev.RatingKey != track.RatingKey {
			l.ordered = removeByID(l.ordered, prev.RatingKey)
		}
	}
	l.byKey[key] = track
	l.ordered = appendReplacing(l.ordered, track)

	keys := domain.BuildLookupKeys(track.Title, track.Artist, track.Album)
	l.byLookupFull[keys.Full] = track
	l.byLookupPartial[keys.Partial] = appendReplacing(l.byLookupPartial[keys.Partial], track)
	if keys.Artist != "" {
		l.byArtist[keys.Artist] = appendReplacing(l.byArtist[keys.Artist], track)
	}

	bucket := domain.DurationBucket(track.DurationMS, l.bucketSeconds)
	if bucket >= 0 {
		buckets := l.byPartialDuration[keys.Partial]
		if buckets == nil {
			buckets = make(map[int64][]*domain.PlexTrack)
			l.byPartialDuration[keys.Partial] = buckets
		}
		buckets[bucket] = appendReplacing(buckets[bucket], track)
	}

	for _, m := range track.MBIDs() {
		l.mbid[m] = MBIDEntry{PlexID: track.RatingKey, TrackKey: key, Track: track}
	}
}

func appendReplacing(list []*domain.PlexTrack, track *domain.PlexTrack) []*domain.PlexTrack {
	for i, t := range list {
		if t.RatingKey == track.RatingKey {
			list[i] = track
			return list
		}
	}
	return append(list, track)
}

func (l *Library) removeFromListsLocked(track *domain.PlexTrack) {
	keys := domain.BuildLookupKeys(track.Title, track.Artist, track.Album)
	l.byLookupPartial[keys.Partial] = removeByID(l.byLookupPartial[keys.Partial], track.RatingKey)
	if keys.Artist != "" {
		l.byArtist[keys.Artist] = removeByID(l.byArtist[keys.Artist], track.RatingKey)
	}
	if buckets, ok := l.byPartialDuration[keys.Partial]; ok {
		bucket := domain.DurationBucket(track.DurationMS, l.bucketSeconds)
		if bucket >= 0 {
			buckets[bucket] = removeByID(buckets[bucket], track.RatingKey)
		}
	}
}

func removeByID(list []*domain.PlexTrack, ratingKey int64) []*domain.PlexTrack {
	for i, t := range list {
		if t.RatingKey == ratingKey {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// SetMBID records an MBID mapping that arrived without a loaded track,
// e.g. from the persisted index. An existing entry with a loaded track wins.
func (l *Library) SetMBID(mbid string, entry MBIDEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.mbid[mbid]; ok && cur.Track != nil {
		return
	}
	l.mbid[mbid] = entry
}

// AttachMBIDTrack fills in the loaded track for an id-only entry and folds
// the track into the lookup indexes.
func (l *Library) AttachMBIDTrack(mbid string, track *domain.PlexTrack) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.mbid[mbid] = MBIDEntry{PlexID: track.RatingKey, TrackKey: track.Key(), Track: track}
	l.upsertLocked(track)
}

// ByKey returns the item stored under the raw title|artist|album key.
func (l *Library) ByKey(key string) (*domain.PlexTrack, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.byKey[key]
	return t, ok
}

// ByLookupFull returns the item stored under the normalized full key.
func (l *Library) ByLookupFull(full string) (*domain.PlexTrack, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.byLookupFull[full]
	return t, ok
}

// ByLookupPartial returns all items sharing the normalized title|artist key.
func (l *Library) ByLookupPartial(partial string) []*domain.PlexTrack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*domain.PlexTrack(nil), l.byLookupPartial[partial]...)
}

// ByArtist returns all items for a normalized artist name.
func (l *Library) ByArtist(artist string) []*domain.PlexTrack {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*domain.PlexTrack(nil), l.byArtist[artist]...)
}

// PartialNearDuration returns items under the partial key whose duration
// bucket is within one of the given bucket.
func (l *Library) PartialNearDuration(partial string, bucket int64) []*domain.PlexTrack {
	l.mu.RLock()
	defer l.mu.RUnlock()

	buckets, ok := l.byPartialDuration[partial]
	if !ok || bucket < 0 {
		return nil
	}
	var out []*domain.PlexTrack
	for b := bucket - 1; b <= bucket+1; b++ {
		out = append(out, buckets[b]...)
	}
	return out
}

// ByMBID returns the index entry for a normalized MBID.
func (l *Library) ByMBID(mbid string) (MBIDEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.mbid[mbid]
	return e, ok
}

// Snapshot returns up to limit cached items in insertion order, every item
// when limit <= 0. The stable order keeps repeated candidate scans landing on
// the same winner when scores tie.
func (l *Library) Snapshot(limit int) []*domain.PlexTrack {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.ordered)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]*domain.PlexTrack(nil), l.ordered[:n]...)
}

// Size reports the number of cached items.
func (l *Library) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byKey)
}

// MBIDCount reports the number of MBID index entries.
func (l *Library) MBIDCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.mbid)
}

// Clear drops every index.
func (l *Library) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reset()
}

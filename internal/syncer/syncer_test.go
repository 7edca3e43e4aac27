package syncer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gyarbij/plexist/internal/config"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/plex"
	"github.com/gyarbij/plexist/internal/ratelimit"
	"github.com/gyarbij/plexist/internal/store"
)

type fakeMatcher struct {
	byTitle map[string]*domain.PlexTrack
}

func (m *fakeMatcher) Match(_ context.Context, want domain.Track) (domain.MatchResult, error) {
	if hit, ok := m.byTitle[want.Title]; ok {
		return domain.MatchResult{Matched: hit}, nil
	}
	missing := want
	return domain.MatchResult{Missing: &missing}, nil
}

type ratingCall struct {
	ratingKey int64
	rating    float64
}

type fakeWriter struct {
	mu        sync.Mutex
	ratings   []ratingCall
	rateErr   map[int64]error
	playlists map[string]*plex.Playlist
	created   []string
	cleared   []int64
	added     map[int64][]int64
	summaries map[int64]string
	posters   map[int64]string
	nextID    int64
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{
		rateErr:   map[int64]error{},
		playlists: map[string]*plex.Playlist{},
		added:     map[int64][]int64{},
		summaries: map[int64]string{},
		posters:   map[int64]string{},
		nextID:    1000,
	}
}

func (w *fakeWriter) RateTrack(_ context.Context, ratingKey int64, rating float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.rateErr[ratingKey]; ok {
		return err
	}
	w.ratings = append(w.ratings, ratingCall{ratingKey, rating})
	return nil
}

func (w *fakeWriter) PlaylistByName(_ context.Context, name string) (*plex.Playlist, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.playlists[name], nil
}

func (w *fakeWriter) CreatePlaylist(_ context.Context, name string, ratingKeys []int64) (*plex.Playlist, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextID++
	pl := &plex.Playlist{ID: w.nextID, Name: name, TrackCount: len(ratingKeys)}
	w.playlists[name] = pl
	w.created = append(w.created, name)
	w.added[pl.ID] = append([]int64(nil), ratingKeys...)
	return pl, nil
}

func (w *fakeWriter) AddToPlaylist(_ context.Context, playlistID int64, ratingKeys []int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.added[playlistID] = append(w.added[playlistID], ratingKeys...)
	return nil
}

func (w *fakeWriter) ClearPlaylist(_ context.Context, playlistID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cleared = append(w.cleared, playlistID)
	w.added[playlistID] = nil
	return nil
}

func (w *fakeWriter) EditPlaylist(_ context.Context, playlistID int64, summary string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.summaries[playlistID] = summary
	return nil
}

func (w *fakeWriter) UploadPoster(_ context.Context, playlistID int64, posterURL string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.posters[playlistID] = posterURL
	return nil
}

func (w *fakeWriter) ratingsFor(key int64) []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []float64
	for _, call := range w.ratings {
		if call.ratingKey == key {
			out = append(out, call.rating)
		}
	}
	return out
}

func setupSyncer(t *testing.T, cfg *config.Config, matcher Matcher, writer PlexWriter) (*Syncer, *store.DB) {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	gov, err := ratelimit.New(100, 4)
	if err != nil {
		t.Fatalf("Failed to build governor: %v", err)
	}
	return New(cfg, writer, matcher, db, gov, logger.Default()), db
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		MissingTracksDir:       t.TempDir(),
		WriteMissingAsCSV:      true,
		WriteMissingAsJSON:     true,
		AddPlaylistDescription: true,
		AddPlaylistPoster:      true,
	}
}

func TestSyncLikedTracksRatesNewTracks(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
		"Help!":     {RatingKey: 102, Title: "Help!", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	s, db := setupSyncer(t, testConfig(t), matcher, writer)

	liked := []domain.Track{
		{Title: "Yesterday", Artist: "The Beatles"},
		{Title: "Help!", Artist: "The Beatles"},
	}
	if err := s.SyncLikedTracks(context.Background(), "spotify", liked); err != nil {
		t.Fatalf("SyncLikedTracks failed: %v", err)
	}

	for _, key := range []int64{101, 102} {
		ratings := writer.ratingsFor(key)
		if len(ratings) != 1 || ratings[0] != 10.0 {
			t.Errorf("track %d ratings = %v, want one rating of 10", key, ratings)
		}
	}
	ids, err := db.LikedTrackIDs("spotify")
	if err != nil {
		t.Fatalf("LikedTrackIDs failed: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("recorded liked tracks = %d, want 2", len(ids))
	}
}

func TestSyncLikedTracksSkipsAlreadySynced(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	s, _ := setupSyncer(t, testConfig(t), matcher, writer)

	liked := []domain.Track{{Title: "Yesterday", Artist: "The Beatles"}}
	for i := 0; i < 2; i++ {
		if err := s.SyncLikedTracks(context.Background(), "spotify", liked); err != nil {
			t.Fatalf("SyncLikedTracks run %d failed: %v", i, err)
		}
	}

	if ratings := writer.ratingsFor(101); len(ratings) != 1 {
		t.Errorf("track rated %d times across two runs, want 1", len(ratings))
	}
}

func TestSyncLikedTracksRevokesUnliked(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
		"Help!":     {RatingKey: 102, Title: "Help!", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	s, db := setupSyncer(t, testConfig(t), matcher, writer)

	both := []domain.Track{
		{Title: "Yesterday", Artist: "The Beatles"},
		{Title: "Help!", Artist: "The Beatles"},
	}
	if err := s.SyncLikedTracks(context.Background(), "spotify", both); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	onlyFirst := []domain.Track{{Title: "Yesterday", Artist: "The Beatles"}}
	if err := s.SyncLikedTracks(context.Background(), "spotify", onlyFirst); err != nil {
		t.Fatalf("second sync failed: %v", err)
	}

	// 102 was unliked upstream: rating cleared, record removed.
	ratings := writer.ratingsFor(102)
	if len(ratings) != 2 || ratings[1] != 0.0 {
		t.Errorf("track 102 ratings = %v, want final rating of 0", ratings)
	}
	// 101 stays rated and keeps its single rating call.
	if ratings := writer.ratingsFor(101); len(ratings) != 1 || ratings[0] != 10.0 {
		t.Errorf("track 101 ratings = %v, want untouched single rating of 10", ratings)
	}

	ids, err := db.LikedTrackIDs("spotify")
	if err != nil {
		t.Fatalf("LikedTrackIDs failed: %v", err)
	}
	if _, ok := ids[101]; !ok {
		t.Error("track 101 record missing after revocation pass")
	}
	if _, ok := ids[102]; ok {
		t.Error("track 102 record still present after revocation")
	}
}

func TestSyncLikedTracksRevokeDeletedTrack(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	s, db := setupSyncer(t, testConfig(t), matcher, writer)

	if err := s.SyncLikedTracks(context.Background(), "spotify", []domain.Track{{Title: "Yesterday", Artist: "The Beatles"}}); err != nil {
		t.Fatalf("first sync failed: %v", err)
	}

	// The track vanished from Plex; the revoke call 404s but the record
	// must still be cleaned up.
	writer.rateErr[101] = plex.ErrNotFound
	if err := s.SyncLikedTracks(context.Background(), "spotify", nil); err != nil {
		t.Fatalf("revoke sync failed: %v", err)
	}

	ids, err := db.LikedTrackIDs("spotify")
	if err != nil {
		t.Fatalf("LikedTrackIDs failed: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("records remaining = %d, want 0 after deleted-track revoke", len(ids))
	}
}

func TestSyncPlaylistCreatesWhenAbsent(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	cfg := testConfig(t)
	s, _ := setupSyncer(t, cfg, matcher, writer)

	playlist := domain.Playlist{ID: "p1", Name: "Favorites", Description: "my favorites", Poster: "https://img.example/p.jpg"}
	tracks := []domain.Track{{Title: "Yesterday", Artist: "The Beatles"}}
	if err := s.SyncPlaylist(context.Background(), playlist, tracks); err != nil {
		t.Fatalf("SyncPlaylist failed: %v", err)
	}

	if len(writer.created) != 1 || writer.created[0] != "Favorites" {
		t.Fatalf("created playlists = %v, want [Favorites]", writer.created)
	}
	pl := writer.playlists["Favorites"]
	if got := writer.added[pl.ID]; len(got) != 1 || got[0] != 101 {
		t.Errorf("playlist contents = %v, want [101]", got)
	}
	if writer.summaries[pl.ID] != "my favorites" {
		t.Errorf("summary = %q, want description applied", writer.summaries[pl.ID])
	}
	if writer.posters[pl.ID] != "https://img.example/p.jpg" {
		t.Errorf("poster = %q, want poster uploaded", writer.posters[pl.ID])
	}
}

func TestSyncPlaylistReplacesExisting(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	writer.playlists["Favorites"] = &plex.Playlist{ID: 500, Name: "Favorites"}
	s, _ := setupSyncer(t, testConfig(t), matcher, writer)

	tracks := []domain.Track{{Title: "Yesterday", Artist: "The Beatles"}}
	if err := s.SyncPlaylist(context.Background(), domain.Playlist{Name: "Favorites"}, tracks); err != nil {
		t.Fatalf("SyncPlaylist failed: %v", err)
	}

	if len(writer.cleared) != 1 || writer.cleared[0] != 500 {
		t.Errorf("cleared = %v, want existing playlist cleared before add", writer.cleared)
	}
	if got := writer.added[500]; len(got) != 1 || got[0] != 101 {
		t.Errorf("playlist contents = %v, want [101]", got)
	}
	if len(writer.created) != 0 {
		t.Errorf("created = %v, want no new playlist", writer.created)
	}
}

func TestSyncPlaylistAppendMode(t *testing.T) {
	matcher := &fakeMatcher{byTitle: map[string]*domain.PlexTrack{
		"Yesterday": {RatingKey: 101, Title: "Yesterday", Artist: "The Beatles"},
	}}
	writer := newFakeWriter()
	writer.playlists["Favorites"] = &plex.Playlist{ID: 500, Name: "Favorites"}
	cfg := testConfig(t)
	cfg.AppendInsteadOfSync = true
	s, _ := setupSyncer(t, cfg, matcher, writer)

	tracks := []domain.Track{{Title: "Yesterday", Artist: "The Beatles"}}
	if err := s.SyncPlaylist(context.Background(), domain.Playlist{Name: "Favorites"}, tracks); err != nil {
		t.Fatalf("SyncPlaylist failed: %v", err)
	}

	if len(writer.cleared) != 0 {
		t.Errorf("cleared = %v, want no clear in append mode", writer.cleared)
	}
}

func TestRatingKeysDeduplicates(t *testing.T) {
	tracks := []*domain.PlexTrack{
		{RatingKey: 101},
		{RatingKey: 102},
		{RatingKey: 101},
	}
	got := ratingKeys(tracks)
	if len(got) != 2 || got[0] != 101 || got[1] != 102 {
		t.Errorf("ratingKeys = %v, want [101 102]", got)
	}
}

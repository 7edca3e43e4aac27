package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/store"
)

type fakeSource struct {
	pages    map[int][]*domain.PlexTrack
	total    int
	failures map[int]int // offset -> remaining failures
	calls    int
}

func (f *fakeSource) LibraryTracks(ctx context.Context, offset, limit int) ([]*domain.PlexTrack, int, error) {
	f.calls++
	if remaining := f.failures[offset]; remaining > 0 {
		f.failures[offset] = remaining - 1
		return nil, 0, errors.New("server hiccup")
	}
	return f.pages[offset], f.total, nil
}

func setupBuilder(t *testing.T, source LibrarySource) (*Builder, *Library, *store.DB) {
	t.Helper()
	db, err := store.NewSQLiteDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	lib := NewLibrary(5)
	return NewBuilder(lib, db, source, logger.Default()), lib, db
}

func libraryTrack(id int64, title string) *domain.PlexTrack {
	return &domain.PlexTrack{
		RatingKey:  id,
		Title:      title,
		Artist:     "The Beatles",
		Album:      "Help!",
		DurationMS: 125000,
	}
}

func TestBuildIndexesAndPersists(t *testing.T) {
	withGUID := libraryTrack(101, "Yesterday")
	withGUID.GUIDs = domain.StringSlice{"mbid://aaaa0000-1111-2222-3333-444455556666"}

	source := &fakeSource{
		pages: map[int][]*domain.PlexTrack{
			0: {withGUID, libraryTrack(102, "Help!")},
		},
		total: 2,
	}
	builder, lib, db := setupBuilder(t, source)

	if err := builder.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}

	if lib.Size() != 2 {
		t.Errorf("expected 2 tracks in memory, got %d", lib.Size())
	}
	if n, _ := db.PlexCacheCount(); n != 2 {
		t.Errorf("expected 2 persisted rows, got %d", n)
	}
	if n, _ := db.MBIDIndexCount(); n != 1 {
		t.Errorf("expected 1 persisted mbid row, got %d", n)
	}
	if builder.Building() {
		t.Error("building flag still set after completion")
	}
}

func TestBuildRetriesFailedPage(t *testing.T) {
	source := &fakeSource{
		pages:    map[int][]*domain.PlexTrack{0: {libraryTrack(101, "Yesterday")}},
		total:    1,
		failures: map[int]int{0: 2},
	}
	builder, lib, _ := setupBuilder(t, source)

	if err := builder.Build(context.Background()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if lib.Size() != 1 {
		t.Errorf("expected page to succeed after retries, size=%d", lib.Size())
	}
	if source.calls != 3 {
		t.Errorf("expected 3 fetch attempts, got %d", source.calls)
	}
}

func TestRetryBackoffDoubles(t *testing.T) {
	if got := retryBackoff(1); got != constants.DefaultRetryBase {
		t.Errorf("attempt 1 backoff = %v, want %v", got, constants.DefaultRetryBase)
	}
	if got := retryBackoff(2); got != 2*constants.DefaultRetryBase {
		t.Errorf("attempt 2 backoff = %v, want %v", got, 2*constants.DefaultRetryBase)
	}
	if got := retryBackoff(3); got != 4*constants.DefaultRetryBase {
		t.Errorf("attempt 3 backoff = %v, want %v", got, 4*constants.DefaultRetryBase)
	}
}

func TestRehydrateRebuildsIndexes(t *testing.T) {
	withGUID := libraryTrack(101, "Yesterday")
	withGUID.GUIDs = domain.StringSlice{"mbid://aaaa0000-1111-2222-3333-444455556666"}
	source := &fakeSource{
		pages: map[int][]*domain.PlexTrack{0: {withGUID}},
		total: 1,
	}
	builder, _, db := setupBuilder(t, source)
	if err := builder.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	// An index row with no matching cache entry comes back as id-only.
	err := db.SaveMBIDIndexBulk([]store.MBIDIndexRow{{MBID: "orphan-mbid", PlexID: 999, TrackKey: "k"}})
	if err != nil {
		t.Fatal(err)
	}

	fresh := NewLibrary(5)
	rebuilt := NewBuilder(fresh, db, source, logger.Default())
	loaded, err := rebuilt.Rehydrate(context.Background())
	if err != nil {
		t.Fatalf("Rehydrate: %v", err)
	}
	if loaded != 1 {
		t.Errorf("expected 1 loaded track, got %d", loaded)
	}
	if _, ok := fresh.ByLookupFull("yesterday|the beatles|help"); !ok {
		t.Error("rehydrated track missing from lookup index")
	}
	entry, ok := fresh.ByMBID("aaaa0000-1111-2222-3333-444455556666")
	if !ok || entry.Track == nil {
		t.Error("rehydrated track missing from mbid index")
	}
	orphan, ok := fresh.ByMBID("orphan-mbid")
	if !ok || orphan.Track != nil || orphan.PlexID != 999 {
		t.Errorf("expected id-only merged entry, got %+v ok=%v", orphan, ok)
	}
}

func TestClearWipesMemoryAndTable(t *testing.T) {
	source := &fakeSource{
		pages: map[int][]*domain.PlexTrack{0: {libraryTrack(101, "Yesterday")}},
		total: 1,
	}
	builder, lib, db := setupBuilder(t, source)
	if err := builder.Build(context.Background()); err != nil {
		t.Fatal(err)
	}

	if err := builder.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if lib.Size() != 0 {
		t.Errorf("expected empty memory cache, got %d", lib.Size())
	}
	if n, _ := db.PlexCacheCount(); n != 0 {
		t.Errorf("expected empty table, got %d rows", n)
	}
}

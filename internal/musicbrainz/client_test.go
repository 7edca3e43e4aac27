package musicbrainz

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gyarbij/plexist/internal/domain"
	"github.com/gyarbij/plexist/internal/logger"
)

const isrcResponseJSON = `{
	"isrc": "GBAYE6500001",
	"recordings": [
		{
			"id": "REC-0000-1111",
			"title": "Yesterday",
			"releases": [
				{
					"id": "REL-0000-2222",
					"title": "Help!",
					"media": [
						{"tracks": [{"id": "TRK-0000-3333"}]}
					]
				}
			]
		}
	]
}`

func testServerClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "test-agent/1.0", logger.Default())
}

func TestLookupISRCScoresHierarchy(t *testing.T) {
	client := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/isrc/GBAYE6500001" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.URL.Query().Get("fmt") != "json" || r.URL.Query().Get("inc") != "releases+media" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "test-agent/1.0" {
			t.Errorf("unexpected user agent: %s", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(isrcResponseJSON))
	}))

	mbids, cacheable, err := client.LookupISRC(context.Background(), "GBAYE6500001")
	if err != nil {
		t.Fatalf("LookupISRC: %v", err)
	}
	if !cacheable {
		t.Error("expected definitive result to be cacheable")
	}
	if len(mbids) != 3 {
		t.Fatalf("expected 3 mbids, got %d: %v", len(mbids), mbids)
	}

	// Sorted by confidence: recording, release track, release.
	if mbids[0].Type != domain.MBIDTypeRecording || mbids[0].MBID != "rec-0000-1111" {
		t.Errorf("unexpected first mbid: %+v", mbids[0])
	}
	if mbids[1].Type != domain.MBIDTypeReleaseTrack {
		t.Errorf("unexpected second mbid: %+v", mbids[1])
	}
	if mbids[2].Type != domain.MBIDTypeRelease {
		t.Errorf("unexpected third mbid: %+v", mbids[2])
	}
}

func TestLookupISRCNotFound(t *testing.T) {
	client := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	mbids, cacheable, err := client.LookupISRC(context.Background(), "USXXX0000000")
	if err != nil {
		t.Fatalf("LookupISRC: %v", err)
	}
	if !cacheable {
		t.Error("404 is a definitive negative and must be cacheable")
	}
	if len(mbids) != 0 {
		t.Errorf("expected empty result, got %v", mbids)
	}
}

func TestLookupISRCRetriesOn503(t *testing.T) {
	var calls int
	client := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(isrcResponseJSON))
	}))

	mbids, cacheable, err := client.LookupISRC(context.Background(), "GBAYE6500001")
	if err != nil {
		t.Fatalf("LookupISRC: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected exactly one retry, got %d calls", calls)
	}
	if !cacheable || len(mbids) == 0 {
		t.Errorf("expected successful retry result, got cacheable=%v mbids=%v", cacheable, mbids)
	}
}

func TestLookupISRCServerErrorNotCacheable(t *testing.T) {
	client := testServerClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	mbids, cacheable, err := client.LookupISRC(context.Background(), "GBAYE6500001")
	if err != nil {
		t.Fatalf("LookupISRC: %v", err)
	}
	if cacheable {
		t.Error("server error must not be cacheable")
	}
	if len(mbids) != 0 {
		t.Errorf("expected empty result, got %v", mbids)
	}
}

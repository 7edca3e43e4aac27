package syncer

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/gyarbij/plexist/internal/domain"
)

func TestWriteMissingCreatesReports(t *testing.T) {
	cfg := testConfig(t)
	s, _ := setupSyncer(t, cfg, &fakeMatcher{}, newFakeWriter())

	missing := []domain.Track{
		{Title: "Lost Song", Artist: "Nobody", Album: "Nowhere", URL: "https://example.com/t1", ISRC: "USRC10000001"},
		{Title: "Other Song", Artist: "Someone", Album: "Somewhere"},
	}
	if err := s.WriteMissing("Favorites", missing); err != nil {
		t.Fatalf("WriteMissing failed: %v", err)
	}

	csvPath := filepath.Join(cfg.MissingTracksDir, "Favorites.csv")
	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("Failed to open csv report: %v", err)
	}
	defer func() { _ = f.Close() }()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Failed to read csv report: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("csv rows = %d, want header plus 2 tracks", len(rows))
	}
	if rows[1][0] != "Lost Song" || rows[1][4] != "USRC10000001" {
		t.Errorf("csv first row = %v", rows[1])
	}

	data, err := os.ReadFile(filepath.Join(cfg.MissingTracksDir, "Favorites.json"))
	if err != nil {
		t.Fatalf("Failed to read json report: %v", err)
	}
	var decoded []missingTrack
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Failed to decode json report: %v", err)
	}
	if len(decoded) != 2 || decoded[0].Title != "Lost Song" {
		t.Errorf("json report = %+v", decoded)
	}
}

func TestWriteMissingRemovesStaleReports(t *testing.T) {
	cfg := testConfig(t)
	s, _ := setupSyncer(t, cfg, &fakeMatcher{}, newFakeWriter())

	missing := []domain.Track{{Title: "Lost Song", Artist: "Nobody"}}
	if err := s.WriteMissing("Favorites", missing); err != nil {
		t.Fatalf("WriteMissing failed: %v", err)
	}
	if err := s.WriteMissing("Favorites", nil); err != nil {
		t.Fatalf("WriteMissing with empty list failed: %v", err)
	}

	for _, name := range []string{"Favorites.csv", "Favorites.json"} {
		if _, err := os.Stat(filepath.Join(cfg.MissingTracksDir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still exists after empty sync", name)
		}
	}
}

func TestWriteMissingHonorsFormatToggles(t *testing.T) {
	cfg := testConfig(t)
	cfg.WriteMissingAsJSON = false
	s, _ := setupSyncer(t, cfg, &fakeMatcher{}, newFakeWriter())

	if err := s.WriteMissing("Favorites", []domain.Track{{Title: "Lost Song"}}); err != nil {
		t.Fatalf("WriteMissing failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.MissingTracksDir, "Favorites.csv")); err != nil {
		t.Errorf("csv report missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.MissingTracksDir, "Favorites.json")); !os.IsNotExist(err) {
		t.Error("json report written despite toggle off")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Favorites", "Favorites"},
		{"Road/Trip: 2024", "Road_Trip_ 2024"},
		{"  spaced  ", "spaced"},
		{"", "playlist"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

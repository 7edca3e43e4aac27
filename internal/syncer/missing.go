package syncer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/domain"
)

type missingTrack struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Album  string `json:"album"`
	URL    string `json:"url,omitempty"`
	ISRC   string `json:"isrc,omitempty"`
}

// WriteMissing reports unmatched tracks to <playlist>.csv and <playlist>.json
// in the configured directory, honoring the per-format toggles. When nothing
// is missing any stale report files are removed.
func (s *Syncer) WriteMissing(playlistName string, missing []domain.Track) error {
	base := filepath.Join(s.cfg.MissingTracksDir, sanitizeFilename(playlistName))
	csvPath := base + constants.ExtCSV
	jsonPath := base + constants.ExtJSON

	if len(missing) == 0 {
		for _, path := range []string{csvPath, jsonPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove stale missing report: %w", err)
			}
		}
		return nil
	}

	if !s.cfg.WriteMissingAsCSV && !s.cfg.WriteMissingAsJSON {
		return nil
	}
	if err := os.MkdirAll(s.cfg.MissingTracksDir, constants.DirPermissions); err != nil {
		return fmt.Errorf("failed to create missing tracks directory: %w", err)
	}

	if s.cfg.WriteMissingAsCSV {
		if err := writeMissingCSV(csvPath, missing); err != nil {
			return err
		}
	}
	if s.cfg.WriteMissingAsJSON {
		if err := writeMissingJSON(jsonPath, missing); err != nil {
			return err
		}
	}
	return nil
}

func writeMissingCSV(path string, missing []domain.Track) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, constants.FilePermissions)
	if err != nil {
		return fmt.Errorf("failed to create csv report: %w", err)
	}
	defer func() { _ = f.Close() }()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"title", "artist", "album", "url", "isrc"}); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	for _, t := range missing {
		if err := w.Write([]string{t.Title, t.Artist, t.Album, t.URL, t.ISRC}); err != nil {
			return fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv report: %w", err)
	}
	return nil
}

func writeMissingJSON(path string, missing []domain.Track) error {
	rows := make([]missingTrack, 0, len(missing))
	for _, t := range missing {
		rows = append(rows, missingTrack{
			Title:  t.Title,
			Artist: t.Artist,
			Album:  t.Album,
			URL:    t.URL,
			ISRC:   t.ISRC,
		})
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json report: %w", err)
	}
	if err := os.WriteFile(path, data, constants.FilePermissions); err != nil {
		return fmt.Errorf("failed to write json report: %w", err)
	}
	return nil
}

// sanitizeFilename keeps playlist names safe to use as file names.
func sanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
	)
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		cleaned = "playlist"
	}
	return cleaned
}

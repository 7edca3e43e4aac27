package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gyarbij/plexist/internal/constants"
)

type statusResponse struct {
	Status     string      `json:"status"`
	CacheSize  int         `json:"cache_size"`
	CacheBuild bool        `json:"cache_building"`
	Runner     interface{} `json:"runner"`
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statusResponse{
		Status:     "ok",
		CacheSize:  h.cache.Size(),
		CacheBuild: h.control.Building(),
		Runner:     h.runner.Status(),
	})
}

type cacheStatsResponse struct {
	LibraryTracks int     `json:"library_tracks"`
	MBIDIndexed   int     `json:"mbid_indexed"`
	PositiveISRCs int     `json:"positive_isrcs"`
	NegativeISRCs int     `json:"negative_isrcs"`
	TotalRows     int     `json:"isrc_cache_rows"`
	PositiveTTL   string  `json:"positive_ttl"`
	NegativeTTL   string  `json:"negative_ttl"`
}

func (h *Handler) GetCacheStats(w http.ResponseWriter, r *http.Request) {
	resp := cacheStatsResponse{
		LibraryTracks: h.cache.Size(),
		MBIDIndexed:   h.cache.MBIDCount(),
	}
	if h.resolver != nil {
		stats, ttl, err := h.resolver.Stats()
		if err != nil {
			h.log.Error("failed to read resolver stats", "error", err)
			h.writeError(w, http.StatusInternalServerError, "failed to read cache stats")
			return
		}
		resp.PositiveISRCs = stats.PositiveISRCs
		resp.NegativeISRCs = stats.NegativeISRCs
		resp.TotalRows = stats.TotalRows
		resp.PositiveTTL = ttl.Positive.String()
		resp.NegativeTTL = ttl.Negative.String()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type syncRequest struct {
	Provider string `form:"provider"`
}

func (h *Handler) PostSync(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid form data")
		return
	}
	var req syncRequest
	if err := h.decoder.Decode(&req, r.Form); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid sync request")
		return
	}

	if !h.runner.Trigger(req.Provider) {
		h.writeError(w, http.StatusConflict, "a sync is already queued")
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"provider": req.Provider,
	})
}

func (h *Handler) PostCacheClear(w http.ResponseWriter, r *http.Request) {
	if h.control.Building() {
		h.writeError(w, http.StatusConflict, "cache build in progress")
		return
	}
	if err := h.control.Clear(); err != nil {
		h.log.Error("failed to clear cache", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to clear cache")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

type missingReport struct {
	Playlist   string    `json:"playlist"`
	File       string    `json:"file"`
	Format     string    `json:"format"`
	ModifiedAt time.Time `json:"modified_at"`
}

// GetMissing lists the missing-track report files written by the syncer.
func (h *Handler) GetMissing(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.cfg.MissingTracksDir)
	if err != nil {
		if os.IsNotExist(err) {
			h.writeJSON(w, http.StatusOK, []missingReport{})
			return
		}
		h.log.Error("failed to read missing tracks directory", "error", err)
		h.writeError(w, http.StatusInternalServerError, "failed to list missing reports")
		return
	}

	reports := make([]missingReport, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != constants.ExtCSV && ext != constants.ExtJSON {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		reports = append(reports, missingReport{
			Playlist:   strings.TrimSuffix(entry.Name(), ext),
			File:       entry.Name(),
			Format:     strings.TrimPrefix(ext, "."),
			ModifiedAt: info.ModTime(),
		})
	}
	h.writeJSON(w, http.StatusOK, reports)
}

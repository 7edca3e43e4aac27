// Package handlers exposes the admin HTTP API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/form/v4"

	"github.com/gyarbij/plexist/internal/config"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/store"
	"github.com/gyarbij/plexist/internal/syncer"
)

// SyncRunner is the part of the sync runner the API talks to.
type SyncRunner interface {
	Trigger(provider string) bool
	Status() syncer.RunStatus
}

// TrackCache is the part of the library cache the API reports on.
type TrackCache interface {
	Size() int
	MBIDCount() int
}

// CacheControl clears and rebuilds the persisted library cache.
type CacheControl interface {
	Clear() error
	Building() bool
}

// ResolverStats reports ISRC cache coverage.
type ResolverStats interface {
	Stats() (store.MBIDCacheStats, store.MBIDCacheTTL, error)
}

type Handler struct {
	cfg      *config.Config
	runner   SyncRunner
	cache    TrackCache
	control  CacheControl
	resolver ResolverStats
	log      *logger.Logger
	decoder  *form.Decoder
}

func NewHandler(cfg *config.Config, runner SyncRunner, cache TrackCache, control CacheControl, resolver ResolverStats, log *logger.Logger) *Handler {
	return &Handler{
		cfg:      cfg,
		runner:   runner,
		cache:    cache,
		control:  control,
		resolver: resolver,
		log:      log.WithComponent("api"),
		decoder:  form.NewDecoder(),
	}
}

// Router builds the admin API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.RegisterRoutes(r)
	return r
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/status", h.GetStatus)
	r.Get("/api/cache/stats", h.GetCacheStats)
	r.Post("/api/sync", h.PostSync)
	r.Post("/api/cache/clear", h.PostCacheClear)
	r.Get("/api/missing", h.GetMissing)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

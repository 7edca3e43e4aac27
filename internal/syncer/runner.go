package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gyarbij/plexist/internal/config"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/providers"
)

// RunStatus is a snapshot of the runner for the admin API.
type RunStatus struct {
	Running     bool      `json:"running"`
	LastRunID   string    `json:"last_run_id,omitempty"`
	LastRunAt   time.Time `json:"last_run_at,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	NextRunAt   time.Time `json:"next_run_at,omitempty"`
	ProviderSet []string  `json:"providers"`
}

// Runner periodically syncs every configured provider.
type Runner struct {
	cfg       *config.Config
	syncer    *Syncer
	providers []providers.Provider
	log       *logger.Logger

	kick chan string

	mu     sync.Mutex
	status RunStatus
}

func NewRunner(cfg *config.Config, s *Syncer, provs []providers.Provider, log *logger.Logger) *Runner {
	names := make([]string, 0, len(provs))
	for _, p := range provs {
		names = append(names, p.Name())
	}
	return &Runner{
		cfg:       cfg,
		syncer:    s,
		providers: provs,
		log:       log.WithComponent("runner"),
		kick:      make(chan string, 1),
		status:    RunStatus{ProviderSet: names},
	}
}

// Run loops until the context is canceled, syncing all providers every
// WaitSeconds and whenever a manual trigger arrives.
func (r *Runner) Run(ctx context.Context) {
	interval := time.Duration(r.cfg.WaitSeconds) * time.Second
	r.runCycle(ctx, "")

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		r.setNextRun(time.Now().Add(interval))
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.runCycle(ctx, "")
		case name := <-r.kick:
			r.runCycle(ctx, name)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(interval)
	}
}

// Trigger requests an out-of-band sync. An empty name syncs every provider.
// It reports false when a trigger is already queued.
func (r *Runner) Trigger(name string) bool {
	select {
	case r.kick <- name:
		return true
	default:
		return false
	}
}

// Status returns a copy of the current runner state.
func (r *Runner) Status() RunStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.status
	st.ProviderSet = append([]string(nil), r.status.ProviderSet...)
	return st
}

func (r *Runner) setNextRun(at time.Time) {
	r.mu.Lock()
	r.status.NextRunAt = at
	r.mu.Unlock()
}

// runCycle syncs the named provider, or all of them when name is empty.
// A provider failure abandons that provider for this cycle only.
func (r *Runner) runCycle(ctx context.Context, name string) {
	runID := uuid.NewString()
	r.mu.Lock()
	r.status.Running = true
	r.status.LastRunID = runID
	r.status.LastRunAt = time.Now()
	r.status.LastError = ""
	r.mu.Unlock()

	var lastErr string
	for _, p := range r.providers {
		if name != "" && p.Name() != name {
			continue
		}
		if err := r.runProvider(ctx, p, runID); err != nil {
			lastErr = err.Error()
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.mu.Lock()
	r.status.Running = false
	r.status.LastError = lastErr
	r.mu.Unlock()
}

func (r *Runner) runProvider(ctx context.Context, p providers.Provider, runID string) error {
	log := r.log.WithProvider(p.Name(), runID)
	log.Info("provider sync started")

	playlists, err := p.Playlists(ctx)
	if err != nil {
		log.Error("failed to list playlists, abandoning provider for this cycle", "error", err)
		return fmt.Errorf("provider %s: %w", p.Name(), err)
	}

	for _, playlist := range playlists {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tracks, err := p.Tracks(ctx, playlist)
		if err != nil {
			log.Warn("failed to fetch playlist tracks", "playlist", playlist.Name, "error", err)
			continue
		}
		if err := r.syncer.SyncPlaylist(ctx, playlist, tracks); err != nil {
			log.Warn("playlist sync failed", "playlist", playlist.Name, "error", err)
		}
	}

	if r.cfg.SyncLikedTracks {
		liked, err := p.LikedTracks(ctx)
		if err != nil {
			log.Warn("failed to fetch liked tracks", "error", err)
		} else if err := r.syncer.SyncLikedTracks(ctx, p.Name(), liked); err != nil {
			log.Warn("liked track sync failed", "error", err)
		}
	}

	log.Info("provider sync finished", "playlists", len(playlists))
	return nil
}

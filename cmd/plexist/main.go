package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gyarbij/plexist/internal/cache"
	"github.com/gyarbij/plexist/internal/config"
	"github.com/gyarbij/plexist/internal/constants"
	"github.com/gyarbij/plexist/internal/handlers"
	"github.com/gyarbij/plexist/internal/logger"
	"github.com/gyarbij/plexist/internal/matcher"
	"github.com/gyarbij/plexist/internal/musicbrainz"
	"github.com/gyarbij/plexist/internal/plex"
	"github.com/gyarbij/plexist/internal/providers"
	"github.com/gyarbij/plexist/internal/ratelimit"
	"github.com/gyarbij/plexist/internal/store"
	"github.com/gyarbij/plexist/internal/syncer"
)

func main() {
	cfg := config.Load()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	// Initialize Logger
	appLogger := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Initialize DB
	db, err := store.NewSQLiteDB(cfg.DBPath)
	if err != nil {
		appLogger.Error("Failed to init DB", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Shared Plex request governor
	gov, err := ratelimit.New(cfg.MaxRequestsPerSecond, cfg.MaxConcurrentRequests)
	if err != nil {
		appLogger.Error("Failed to build request governor", "error", err)
		os.Exit(1)
	}

	plexClient := plex.NewClient(cfg.PlexURL, cfg.PlexToken, cfg.PlexSectionID, gov, appLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Library cache: rehydrate from disk, build in the background when empty
	library := cache.NewLibrary(cfg.DurationBucketSeconds)
	builder := cache.NewBuilder(library, db, plexClient, appLogger)
	loaded, err := builder.Rehydrate(ctx)
	if err != nil {
		appLogger.Error("Failed to rehydrate library cache", "error", err)
		os.Exit(1)
	}
	if loaded == 0 {
		appLogger.Info("Library cache empty, building from Plex in background")
		go func() {
			if err := builder.Build(ctx); err != nil {
				appLogger.Error("Library cache build failed", "error", err)
			}
		}()
	}

	// MusicBrainz ISRC resolver
	var resolver *musicbrainz.Resolver
	var mbidResolver matcher.MBIDResolver
	var resolverStats handlers.ResolverStats
	if cfg.MusicBrainzEnabled {
		mbClient := musicbrainz.NewClient(constants.MusicBrainzBaseURL, cfg.MusicBrainzUserAgent, appLogger)
		resolver = musicbrainz.NewResolver(mbClient, db, cfg.MusicBrainzCacheTTLDays, cfg.MusicBrainzNegTTLDays, appLogger)
		if err := resolver.CleanupExpired(); err != nil {
			appLogger.Warn("Failed to clean up expired ISRC cache rows", "error", err)
		}
		mbidResolver = resolver
		resolverStats = resolver
	}

	engine := matcher.NewEngine(library, plexClient, mbidResolver, db, cfg.ExtendedCacheEnabled, appLogger)

	// Providers and sync runner
	provs, err := providers.FromConfig(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize providers", "error", err)
		os.Exit(1)
	}
	if len(provs) == 0 {
		appLogger.Warn("No providers configured, only the admin API will be active")
	}

	sync := syncer.New(cfg, plexClient, engine, db, gov, appLogger)
	runner := syncer.NewRunner(cfg, sync, provs, appLogger)
	go runner.Run(ctx)

	// Routes
	h := handlers.NewHandler(cfg, runner, library, builder, resolverStats, appLogger)

	// Start Server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: h.Router(),
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting")
}

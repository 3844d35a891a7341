// Package main is the entry point for the RentalSync Bridge server.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rentalsync-bridge/backend/internal/api"
	"github.com/rentalsync-bridge/backend/internal/cloudbeds"
	"github.com/rentalsync-bridge/backend/internal/config"
	"github.com/rentalsync-bridge/backend/internal/credential"
	"github.com/rentalsync-bridge/backend/internal/events"
	"github.com/rentalsync-bridge/backend/internal/feed"
	"github.com/rentalsync-bridge/backend/internal/logging"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
	syncpkg "github.com/rentalsync-bridge/backend/internal/sync"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
// Defaults to "dev" when not provided.
var version = "dev"

func main() {
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg := config.Load()
	log := logging.New(cfg.LogLevel)

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	log.WithField("version", version).Info("Starting RentalSync Bridge")

	// Initialize database
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("Failed to create data directory %q: %v", cfg.DataDir, err)
	}
	db, err := storage.NewDB(filepath.Join(cfg.DataDir, "rentalsync-bridge.db"))
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := storage.RunMigrations(db, log); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Initialize WebSocket hub
	hub := events.NewHub(log)
	go hub.Run()
	broadcaster := events.NewBroadcaster(hub, log)

	// Initialize repositories
	listingRepo := storage.NewListingRepository(db)
	roomRepo := storage.NewRoomRepository(db)
	bookingRepo := storage.NewBookingRepository(db)
	customFieldRepo := storage.NewCustomFieldRepository(db)
	credentialRepo := storage.NewCredentialRepository(db)

	// Seed OAuth app credentials from the environment on first boot
	seedCredentials(credentialRepo, cfg, log)

	// Initialize services
	client := cloudbeds.NewClient(cfg.CloudbedsAPIURL, cfg.CloudbedsTokenURL, log)
	credentialManager := credential.NewManager(credentialRepo, client, log)
	cache := feed.NewCache(cfg.CacheTTL)
	renderer := feed.NewRenderer(listingRepo, roomRepo, bookingRepo, customFieldRepo)
	engine := syncpkg.NewEngine(client, credentialManager, cache, broadcaster,
		listingRepo, roomRepo, bookingRepo, log)

	// Start the periodic sync scheduler
	scheduler := syncpkg.NewScheduler(engine, cfg.SyncIntervalMinutes, log)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	// Initialize HTTP router
	router := api.NewRouter(&api.Services{
		DB:                db,
		Listings:          listingRepo,
		Rooms:             roomRepo,
		CustomFields:      customFieldRepo,
		Credentials:       credentialRepo,
		CredentialManager: credentialManager,
		Engine:            engine,
		Renderer:          renderer,
		Cache:             cache,
		Hub:               hub,
		Broadcaster:       broadcaster,
		SyncInterval:      scheduler.Interval(),
		Log:               log,
	})

	server := &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Addr).Info("Server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Info("Server stopped")
}

// seedCredentials stores the env-provided OAuth app credentials when no
// row exists yet. Stored credentials always win over the environment.
func seedCredentials(repo *storage.CredentialRepository, cfg *config.Config, log *logrus.Logger) {
	if cfg.CloudbedsClientID == "" || cfg.CloudbedsClientSecret == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	existing, err := repo.Get(ctx)
	if err != nil {
		log.Fatalf("Failed to read credentials: %v", err)
	}
	if existing != nil {
		return
	}

	if err := repo.Save(ctx, &models.Credential{
		ClientID:     cfg.CloudbedsClientID,
		ClientSecret: cfg.CloudbedsClientSecret,
	}); err != nil {
		log.Fatalf("Failed to seed credentials: %v", err)
	}
	log.Info("Seeded OAuth app credentials from environment")
}

// runHealthCheck probes the local health endpoint.
func runHealthCheck(addr string) error {
	if addr[0] == ':' {
		addr = "127.0.0.1" + addr
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

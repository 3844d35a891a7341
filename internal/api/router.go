// Package api provides HTTP routing and handlers for the feed and
// admin endpoints.
package api

import (
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rentalsync-bridge/backend/internal/api/handlers"
	"github.com/rentalsync-bridge/backend/internal/api/middleware"
	"github.com/rentalsync-bridge/backend/internal/credential"
	"github.com/rentalsync-bridge/backend/internal/events"
	"github.com/rentalsync-bridge/backend/internal/feed"
	"github.com/rentalsync-bridge/backend/internal/storage"
	syncpkg "github.com/rentalsync-bridge/backend/internal/sync"
)

// Services bundles the collaborators the router wires into handlers.
type Services struct {
	DB           *storage.DB
	Listings     *storage.ListingRepository
	Rooms        *storage.RoomRepository
	CustomFields *storage.CustomFieldRepository
	Credentials  *storage.CredentialRepository

	CredentialManager *credential.Manager
	Engine            *syncpkg.Engine
	Renderer          *feed.Renderer
	Cache             *feed.Cache
	Hub               *events.Hub
	Broadcaster       *events.Broadcaster

	SyncInterval time.Duration
	Log          *logrus.Logger
}

// NewRouter creates and configures the HTTP router with all routes.
func NewRouter(s *Services) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging(s.Log))
	r.Use(middleware.ErrorRecovery(s.Log))

	// Calendar feeds. The single-segment legacy shape is rejected
	// explicitly so stale subscriptions surface the migration.
	r.HandleFunc("/ical/{listingSlug}/{roomSlug}.ics", handlers.Feed(s.Renderer, s.Cache, s.Log)).Methods("GET")
	r.HandleFunc("/ical/{slug}.ics", handlers.LegacyFeed()).Methods("GET")

	// API subrouter
	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(s.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(s.DB, s.Credentials, s.Hub, s.Cache, s.SyncInterval)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(s.Hub, s.Log)).Methods("GET")

	// Listing endpoints
	api.HandleFunc("/listings", handlers.ListListings(s.Listings)).Methods("GET")
	api.HandleFunc("/listings/{id}", handlers.GetListing(s.Listings)).Methods("GET")
	api.HandleFunc("/listings/{id}", handlers.UpdateListing(s.Listings, s.Cache)).Methods("PATCH")
	api.HandleFunc("/listings/{id}/sync", handlers.SyncListing(s.Engine, s.Log)).Methods("POST")
	api.HandleFunc("/listings/{id}/rooms", handlers.ListRooms(s.Listings, s.Rooms)).Methods("GET")
	api.HandleFunc("/listings/{id}/custom-fields", handlers.ListCustomFields(s.CustomFields)).Methods("GET")
	api.HandleFunc("/listings/{id}/custom-fields", handlers.UpdateCustomFields(s.Listings, s.CustomFields, s.Cache)).Methods("PUT")

	// Room endpoints
	api.HandleFunc("/rooms/{id}", handlers.UpdateRoom(s.Listings, s.Rooms, s.Cache)).Methods("PATCH")

	// Credential endpoints
	api.HandleFunc("/credentials", handlers.GetCredentials(s.Credentials)).Methods("GET")
	api.HandleFunc("/credentials", handlers.UpdateCredentials(s.Credentials, s.CredentialManager, s.Broadcaster, s.Log)).Methods("PUT")

	return r
}

package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rentalsync-bridge/backend/internal/events"
	"github.com/rentalsync-bridge/backend/internal/feed"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.Ping() == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if status != "healthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(HealthResponse{
			Status:      status,
			DBConnected: dbConnected,
		})
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	CredentialState  string `json:"credential_state"`
	ListingsCount    int    `json:"listings_count"`
	RoomsCount       int    `json:"rooms_count"`
	ActiveBookings   int    `json:"active_bookings"`
	CachedFeeds      int    `json:"cached_feeds"`
	ConnectedClients int    `json:"connected_clients"`
	SyncInterval     string `json:"sync_interval"`
}

// Status returns a handler that provides system status information.
func Status(db *storage.DB, creds *storage.CredentialRepository, hub *events.Hub,
	cache *feed.Cache, syncInterval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		credState := models.CredentialStateUninitialized
		if cred, err := creds.Get(ctx); err == nil && cred != nil {
			credState = cred.State(time.Now().UTC())
		}

		var listingsCount, roomsCount, activeBookings int
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&listingsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM rooms WHERE enabled = 1").Scan(&roomsCount)
		db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookings WHERE status = ?",
			models.BookingStatusConfirmed).Scan(&activeBookings)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusResponse{
			CredentialState:  credState,
			ListingsCount:    listingsCount,
			RoomsCount:       roomsCount,
			ActiveBookings:   activeBookings,
			CachedFeeds:      cache.Len(),
			ConnectedClients: hub.ClientCount(),
			SyncInterval:     syncInterval.String(),
		})
	}
}

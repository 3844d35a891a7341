// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rentalsync-bridge/backend/internal/api/middleware"
	"github.com/rentalsync-bridge/backend/internal/feed"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
	syncpkg "github.com/rentalsync-bridge/backend/internal/sync"
)

// ListingResponse is the API shape of a listing.
type ListingResponse struct {
	ID            int64   `json:"id"`
	CloudbedsID   string  `json:"cloudbeds_id"`
	Name          string  `json:"name"`
	Slug          string  `json:"slug"`
	Timezone      string  `json:"timezone"`
	Enabled       bool    `json:"enabled"`
	SyncEnabled   bool    `json:"sync_enabled"`
	LastSyncAt    *string `json:"last_sync_at,omitempty"`
	LastSyncError *string `json:"last_sync_error,omitempty"`
}

func listingResponse(l *models.Listing) ListingResponse {
	resp := ListingResponse{
		ID:            l.ID,
		CloudbedsID:   l.CloudbedsID,
		Name:          l.Name,
		Slug:          l.Slug,
		Timezone:      l.Timezone,
		Enabled:       l.Enabled,
		SyncEnabled:   l.SyncEnabled,
		LastSyncError: l.LastSyncError,
	}
	if l.LastSyncAt != nil {
		s := l.LastSyncAt.Format(time.RFC3339)
		resp.LastSyncAt = &s
	}
	return resp
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

// ListListings returns all known listings.
func ListListings(listings *storage.ListingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := listings.List(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query listings")
			return
		}

		resp := make([]ListingResponse, 0, len(all))
		for _, l := range all {
			resp = append(resp, listingResponse(&l))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// GetListing returns one listing by id.
func GetListing(listings *storage.ListingRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid listing id")
			return
		}

		listing, err := listings.GetByID(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query listing")
			return
		}
		if listing == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Listing not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listingResponse(listing))
	}
}

// UpdateListingRequest toggles listing flags. Omitted fields keep their
// current value.
type UpdateListingRequest struct {
	Enabled     *bool `json:"enabled"`
	SyncEnabled *bool `json:"sync_enabled"`
}

// UpdateListing updates the enabled and sync_enabled flags. Disabling a
// listing takes effect on its feeds immediately.
func UpdateListing(listings *storage.ListingRepository, cache *feed.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid listing id")
			return
		}

		var req UpdateListingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		ctx := r.Context()
		listing, err := listings.GetByID(ctx, id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query listing")
			return
		}
		if listing == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Listing not found")
			return
		}

		if req.Enabled != nil && *req.Enabled != listing.Enabled {
			if err := listings.SetEnabled(ctx, id, *req.Enabled); err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update listing")
				return
			}
			listing.Enabled = *req.Enabled
			cache.InvalidateListing(listing.Slug)
		}
		if req.SyncEnabled != nil && *req.SyncEnabled != listing.SyncEnabled {
			if err := listings.SetSyncEnabled(ctx, id, *req.SyncEnabled); err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update listing")
				return
			}
			listing.SyncEnabled = *req.SyncEnabled
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listingResponse(listing))
	}
}

// SyncListing triggers a manual sync for one listing and returns the
// run summary.
func SyncListing(engine *syncpkg.Engine, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid listing id")
			return
		}

		result, err := engine.SyncListing(r.Context(), id)
		if err != nil {
			writeSyncError(w, log, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func writeSyncError(w http.ResponseWriter, log *logrus.Logger, err error) {
	var syncErr *syncpkg.Error
	if !errors.As(err, &syncErr) {
		log.WithError(err).Error("Sync failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync failed")
		return
	}

	switch syncErr.Kind {
	case syncpkg.ErrNotFound:
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Listing not found")
	case syncpkg.ErrDisabled:
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Sync is disabled for this listing")
	case syncpkg.ErrInProgress:
		middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "A sync for this listing is already running")
	case syncpkg.ErrValidation:
		middleware.WriteError(w, http.StatusUnprocessableEntity, middleware.ErrValidation, "Listing record cannot be synced")
	case syncpkg.ErrCredential:
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrCredential, "Booking source credentials are not usable")
	case syncpkg.ErrUpstream:
		middleware.WriteError(w, http.StatusBadGateway, middleware.ErrUpstream, "Booking source is unavailable")
	default:
		log.WithError(err).Error("Sync failed")
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Sync failed")
	}
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rentalsync-bridge/backend/internal/api/middleware"
	"github.com/rentalsync-bridge/backend/internal/feed"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// validate is shared across handlers; custom validators register once.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("feedslug", func(fl validator.FieldLevel) bool {
		return storage.ValidSlug(fl.Field().String())
	})
	return v
}

// RoomResponse is the API shape of a room.
type RoomResponse struct {
	ID        int64   `json:"id"`
	ListingID int64   `json:"listing_id"`
	Name      string  `json:"name"`
	RoomType  *string `json:"room_type,omitempty"`
	Slug      string  `json:"slug"`
	Enabled   bool    `json:"enabled"`
}

func roomResponse(room *models.Room) RoomResponse {
	return RoomResponse{
		ID:        room.ID,
		ListingID: room.ListingID,
		Name:      room.Name,
		RoomType:  room.RoomType,
		Slug:      room.Slug,
		Enabled:   room.Enabled,
	}
}

// ListRooms returns the rooms of a listing.
func ListRooms(listings *storage.ListingRepository, rooms *storage.RoomRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid listing id")
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

		all, err := rooms.ListByListing(ctx, id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query rooms")
			return
		}

		resp := make([]RoomResponse, 0, len(all))
		for i := range all {
			resp = append(resp, roomResponse(&all[i]))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// UpdateRoomRequest toggles a room's feed and optionally overrides its
// slug. Omitted fields keep their current value.
type UpdateRoomRequest struct {
	Enabled *bool   `json:"enabled"`
	Slug    *string `json:"slug" validate:"omitempty,feedslug"`
}

// UpdateRoom updates a room's enabled flag and slug. A slug change
// retires the old feed URL immediately.
func UpdateRoom(listings *storage.ListingRepository, rooms *storage.RoomRepository, cache *feed.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid room id")
			return
		}

		var req UpdateRoomRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
				"Slug must be lowercase alphanumerics separated by single hyphens", err.Error())
			return
		}

		ctx := r.Context()
		room, err := rooms.GetByID(ctx, id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query room")
			return
		}
		if room == nil {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Room not found")
			return
		}

		listing, err := listings.GetByID(ctx, room.ListingID)
		if err != nil || listing == nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query listing")
			return
		}

		if req.Enabled != nil && *req.Enabled != room.Enabled {
			if err := rooms.SetEnabled(ctx, id, *req.Enabled); err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update room")
				return
			}
			room.Enabled = *req.Enabled
			cache.Invalidate(listing.Slug, room.Slug)
		}

		if req.Slug != nil && *req.Slug != room.Slug {
			if err := rooms.UpdateSlug(ctx, id, *req.Slug); err != nil {
				if strings.Contains(err.Error(), "UNIQUE") {
					middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Slug is already in use for this listing")
					return
				}
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Failed to update slug")
				return
			}
			cache.Invalidate(listing.Slug, room.Slug)
			room.Slug = *req.Slug
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(roomResponse(room))
	}
}

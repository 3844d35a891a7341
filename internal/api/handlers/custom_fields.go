package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rentalsync-bridge/backend/internal/api/middleware"
	"github.com/rentalsync-bridge/backend/internal/feed"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// CustomFieldResponse is the API shape of a custom field config entry.
type CustomFieldResponse struct {
	ID           int64  `json:"id"`
	FieldName    string `json:"field_name"`
	DisplayLabel string `json:"display_label"`
	Enabled      bool   `json:"enabled"`
	SortOrder    int    `json:"sort_order"`
}

// ListCustomFields returns a listing's custom field configuration.
func ListCustomFields(customFields *storage.CustomFieldRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid listing id")
			return
		}

		fields, err := customFields.ListForListing(r.Context(), id)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query custom fields")
			return
		}

		resp := make([]CustomFieldResponse, 0, len(fields))
		for _, f := range fields {
			resp = append(resp, CustomFieldResponse{
				ID:           f.ID,
				FieldName:    f.FieldName,
				DisplayLabel: f.DisplayLabel,
				Enabled:      f.Enabled,
				SortOrder:    f.SortOrder,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// CustomFieldEntry is one entry in a bulk custom field update.
type CustomFieldEntry struct {
	FieldName    string `json:"field_name" validate:"required,max=64"`
	DisplayLabel string `json:"display_label" validate:"required,max=128"`
	Enabled      bool   `json:"enabled"`
	SortOrder    int    `json:"sort_order" validate:"gte=0"`
}

// UpdateCustomFieldsRequest replaces a listing's custom field
// configuration in one request so reorders apply atomically from the
// client's point of view.
type UpdateCustomFieldsRequest struct {
	Fields []CustomFieldEntry `json:"fields" validate:"required,dive"`
}

// UpdateCustomFields upserts the submitted entries and invalidates the
// listing's feeds so descriptions reflect the new configuration.
func UpdateCustomFields(listings *storage.ListingRepository,
	customFields *storage.CustomFieldRepository, cache *feed.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(r)
		if !ok {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid listing id")
			return
		}

		var req UpdateCustomFieldsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
				"Invalid custom field configuration", err.Error())
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

		for _, entry := range req.Fields {
			cf := &models.CustomField{
				ListingID:    id,
				FieldName:    entry.FieldName,
				DisplayLabel: entry.DisplayLabel,
				Enabled:      entry.Enabled,
				SortOrder:    entry.SortOrder,
			}
			if err := customFields.Upsert(ctx, cf); err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to save custom fields")
				return
			}
		}

		cache.InvalidateListing(listing.Slug)

		ListCustomFields(customFields)(w, r)
	}
}

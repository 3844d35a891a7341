package models

import (
	"time"
)

// Room represents an individually bookable unit within a listing.
// Each enabled room serves its own iCal feed addressed by
// (listing slug, room slug). Rooms are soft-disabled, never deleted
// by sync.
type Room struct {
	ID              int64     `json:"id"`
	ListingID       int64     `json:"listing_id"`
	CloudbedsRoomID string    `json:"cloudbeds_room_id"`
	Name            string    `json:"name"`
	RoomType        *string   `json:"room_type,omitempty"`
	Slug            string    `json:"slug"`
	Enabled         bool      `json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

package models

import (
	"time"
)

// Booking status constants.
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
	BookingStatusPending   = "pending"
	BookingStatusNoShow    = "no_show"
)

// Booking is a reservation reconciled from the booking source.
// Bookings are upserted keyed on (listing, cloudbeds booking id) and
// transition to cancelled when absent from a fresh fetch.
type Booking struct {
	ID                 int64             `json:"id"`
	ListingID          int64             `json:"listing_id"`
	RoomID             *int64            `json:"room_id,omitempty"`
	CloudbedsBookingID string            `json:"cloudbeds_booking_id"`
	GuestName          *string           `json:"guest_name,omitempty"`
	GuestPhoneLast4    *string           `json:"guest_phone_last4,omitempty"`
	CheckIn            time.Time         `json:"check_in"`
	CheckOut           time.Time         `json:"check_out"`
	Status             string            `json:"status"`
	CustomData         map[string]string `json:"custom_data,omitempty"`
	LastFetchedAt      time.Time         `json:"last_fetched_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// EventTitle returns the calendar event title: the guest name when
// present, otherwise the booking's external id.
func (b *Booking) EventTitle() string {
	if b.GuestName != nil && *b.GuestName != "" {
		return *b.GuestName
	}
	return b.CloudbedsBookingID
}

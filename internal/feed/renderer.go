// Package feed renders per-room booking calendars as iCalendar
// documents and caches the rendered payloads.
package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	ics "github.com/arran4/golang-ical"

	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

const (
	// MaxSummaryLength caps the event title for calendar client compatibility.
	MaxSummaryLength = 255

	uidDomain = "rentalsync-bridge"
	prodID    = "-//RentalSync Bridge//Room Calendar//EN"
)

// RenderErrorKind classifies why a feed cannot be rendered.
type RenderErrorKind string

const (
	// ErrRoomNotFound means no room matches the requested slugs.
	ErrRoomNotFound RenderErrorKind = "room_not_found"
	// ErrRoomDisabled means the room exists but its feed is turned off.
	ErrRoomDisabled RenderErrorKind = "room_disabled"
	// ErrListingDisabled means the owning listing is turned off.
	ErrListingDisabled RenderErrorKind = "listing_disabled"
)

// RenderError is a feed resolution failure the handler maps to a
// client-facing status.
type RenderError struct {
	Kind RenderErrorKind
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("feed: %s", string(e.Kind))
}

// Renderer produces iCalendar documents for room feeds.
type Renderer struct {
	listings     *storage.ListingRepository
	rooms        *storage.RoomRepository
	bookings     *storage.BookingRepository
	customFields *storage.CustomFieldRepository
	now          func() time.Time
}

// NewRenderer creates a feed renderer over the storage layer.
func NewRenderer(listings *storage.ListingRepository, rooms *storage.RoomRepository,
	bookings *storage.BookingRepository, customFields *storage.CustomFieldRepository) *Renderer {
	return &Renderer{
		listings:     listings,
		rooms:        rooms,
		bookings:     bookings,
		customFields: customFields,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Render resolves a room feed by slugs and returns the serialized
// iCalendar payload.
func (r *Renderer) Render(ctx context.Context, listingSlug, roomSlug string) ([]byte, error) {
	room, err := r.rooms.GetBySlugs(ctx, listingSlug, roomSlug)
	if err != nil {
		return nil, fmt.Errorf("resolving room: %w", err)
	}
	if room == nil {
		return nil, &RenderError{Kind: ErrRoomNotFound}
	}
	if !room.Enabled {
		return nil, &RenderError{Kind: ErrRoomDisabled}
	}

	listing, err := r.listings.GetByID(ctx, room.ListingID)
	if err != nil {
		return nil, fmt.Errorf("resolving listing: %w", err)
	}
	if listing == nil || !listing.Enabled {
		return nil, &RenderError{Kind: ErrListingDisabled}
	}

	bookings, err := r.bookings.ListConfirmedForRoom(ctx, room.ID)
	if err != nil {
		return nil, fmt.Errorf("loading bookings: %w", err)
	}

	fields, err := r.customFields.ListEnabledForListing(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("loading custom fields: %w", err)
	}

	return r.renderCalendar(listing, room, bookings, fields), nil
}

func (r *Renderer) renderCalendar(listing *models.Listing, room *models.Room,
	bookings []models.Booking, fields []models.CustomField) []byte {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(prodID)
	cal.SetCalscale("GREGORIAN")
	cal.SetXWRCalName(fmt.Sprintf("%s - %s", listing.Name, room.Name))
	cal.SetXWRTimezone(listing.Timezone)

	loc := listing.Location()
	now := r.now()

	for i := range bookings {
		booking := &bookings[i]
		event := cal.AddEvent(eventUID(listing.ID, booking.CloudbedsBookingID))
		event.SetSummary(eventSummary(booking))
		event.SetAllDayStartAt(booking.CheckIn.In(loc))
		event.SetAllDayEndAt(booking.CheckOut.In(loc))
		event.SetDtStampTime(now)
		event.SetCreatedTime(booking.CreatedAt)
		event.SetStatus(ics.ObjectStatusConfirmed)
		event.SetTimeTransparency(ics.TransparencyOpaque)

		if desc := eventDescription(booking, fields); desc != "" {
			event.SetDescription(desc)
		}
	}

	return []byte(cal.Serialize())
}

// eventUID derives a stable event identifier so calendar clients treat
// a re-rendered booking as an update, not a new event.
func eventUID(listingID int64, bookingID string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d-%s", listingID, bookingID)))
	return hex.EncodeToString(sum[:])[:16] + "@" + uidDomain
}

// eventSummary builds the event title: guest name when known, booking
// id otherwise, truncated to MaxSummaryLength. Truncation backs up to
// a rune boundary so a multibyte name never yields invalid UTF-8.
func eventSummary(booking *models.Booking) string {
	title := booking.EventTitle()
	if len(title) <= MaxSummaryLength {
		return title
	}
	cut := MaxSummaryLength - 3
	for cut > 0 && !utf8.RuneStart(title[cut]) {
		cut--
	}
	return title[:cut] + "..."
}

// eventDescription assembles the description lines: phone last four,
// enabled custom fields in display order, and the booking id.
func eventDescription(booking *models.Booking, fields []models.CustomField) string {
	var lines []string

	if booking.GuestPhoneLast4 != nil && *booking.GuestPhoneLast4 != "" {
		lines = append(lines, fmt.Sprintf("Phone (last 4): %s", *booking.GuestPhoneLast4))
	}

	for _, field := range fields {
		value, ok := booking.CustomData[field.FieldName]
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", field.DisplayLabel, value))
	}

	lines = append(lines, fmt.Sprintf("Booking ID: %s", booking.CloudbedsBookingID))

	return strings.Join(lines, "\n")
}

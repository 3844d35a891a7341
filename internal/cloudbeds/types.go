package cloudbeds

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// PropertyDTO is a property as returned by the metadata endpoint.
type PropertyDTO struct {
	PropertyID       string `json:"propertyID"`
	PropertyName     string `json:"propertyName"`
	PropertyTimezone string `json:"propertyTimezone"`
}

// RoomDTO is a room as returned by the rooms endpoint.
type RoomDTO struct {
	RoomID       string `json:"roomID"`
	RoomName     string `json:"roomName"`
	RoomTypeName string `json:"roomTypeName"`
}

// BookingRoomDTO is a room reference nested inside a reservation.
type BookingRoomDTO struct {
	RoomID string `json:"roomID"`
}

// BookingDTO is a reservation as returned by the reservations endpoint.
type BookingDTO struct {
	ReservationID  string `json:"reservationID"`
	GuestName      string `json:"guestName"`
	GuestFirstName string `json:"guestFirstName"`
	GuestLastName  string `json:"guestLastName"`
	GuestPhone     string `json:"guestPhone"`
	GuestCellPhone string `json:"guestCellPhone"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	Status         string `json:"status"`

	RoomID string           `json:"roomID"`
	Rooms  []BookingRoomDTO `json:"rooms"`

	Notes           string      `json:"notes"`
	ArrivalTime     string      `json:"estimatedArrivalTime"`
	DepartureTime   string      `json:"departureTime"`
	GuestsCount     json.Number `json:"guestsCount"`
	RoomTypeName    string      `json:"roomTypeName"`
	SourceName      string      `json:"sourceName"`
	SpecialRequests string      `json:"specialRequests"`
}

// Name returns the guest's display name, assembling it from first/last
// name parts when the combined field is absent. Empty when neither form
// is present.
func (b *BookingDTO) Name() string {
	if b.GuestName != "" {
		return b.GuestName
	}
	return strings.TrimSpace(b.GuestFirstName + " " + b.GuestLastName)
}

// Phone returns the first populated phone field.
func (b *BookingDTO) Phone() string {
	if b.GuestPhone != "" {
		return b.GuestPhone
	}
	return b.GuestCellPhone
}

// RoomRef resolves the reservation's room reference: the top-level room
// id when present, otherwise the first entry of the nested rooms array.
// Reservations spanning multiple rooms link only their first room.
func (b *BookingDTO) RoomRef() string {
	if b.RoomID != "" {
		return b.RoomID
	}
	if len(b.Rooms) > 0 {
		return b.Rooms[0].RoomID
	}
	return ""
}

// CustomValues projects the reservation's auxiliary fields into the
// canonical custom-data keys. Keys with no upstream value are absent.
func (b *BookingDTO) CustomValues() map[string]string {
	values := map[string]string{
		"booking_notes":    b.Notes,
		"arrival_time":     b.ArrivalTime,
		"departure_time":   b.DepartureTime,
		"num_guests":       b.GuestsCount.String(),
		"room_type_name":   b.RoomTypeName,
		"source_name":      b.SourceName,
		"special_requests": b.SpecialRequests,
	}
	for k, v := range values {
		if v == "" || v == "0" {
			delete(values, k)
		}
	}
	if len(values) == 0 {
		return nil
	}
	return values
}

// Token is the result of a successful token refresh.
type Token struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Booking status normalization. The upstream vocabulary is wider than
// the local one; checked-in/out reservations still block the room.
func NormalizeStatus(status string) string {
	switch strings.ToLower(status) {
	case "confirmed", "checked_in", "checked_out":
		return "confirmed"
	case "cancelled", "canceled":
		return "cancelled"
	case "no_show":
		return "no_show"
	case "pending", "not_confirmed", "hold":
		return "pending"
	default:
		return "confirmed"
	}
}

// ExtractPhoneLast4 returns the last four digits of a phone number, or
// empty when the input has fewer than four digits. Nothing beyond these
// four digits is ever persisted.
func ExtractPhoneLast4(phone string) string {
	var digits []rune
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) < 4 {
		return ""
	}
	return string(digits[len(digits)-4:])
}

var dateFormats = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDateIn parses an upstream date string in the given location.
// Empty and unrecognized values are errors so callers can skip the
// record rather than store a zero date.
func ParseDateIn(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, format := range dateFormats {
		if t, err := time.ParseInLocation(format, value, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", value)
}

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const bookingColumns = `
	id, listing_id, room_id, cloudbeds_booking_id, guest_name,
	guest_phone_last4, check_in, check_out, status, custom_data,
	last_fetched_at, created_at, updated_at
`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var customData sql.NullString
	err := row.Scan(
		&b.ID, &b.ListingID, &b.RoomID, &b.CloudbedsBookingID,
		&b.GuestName, &b.GuestPhoneLast4, &b.CheckIn, &b.CheckOut,
		&b.Status, &customData, &b.LastFetchedAt, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customData.Valid && customData.String != "" {
		if err := json.Unmarshal([]byte(customData.String), &b.CustomData); err != nil {
			return nil, fmt.Errorf("decoding custom data: %w", err)
		}
	}
	return b, nil
}

func encodeCustomData(data map[string]string) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding custom data: %w", err)
	}
	return string(raw), nil
}

// GetByCloudbedsID retrieves a booking by its external booking ID within
// a listing.
func (r *BookingRepository) GetByCloudbedsID(ctx context.Context, listingID int64, cloudbedsBookingID string) (*models.Booking, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE listing_id = ? AND cloudbeds_booking_id = ?",
		listingID, cloudbedsBookingID)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}
	return b, nil
}

// ListForListing retrieves all bookings for a listing ordered by check-in.
func (r *BookingRepository) ListForListing(ctx context.Context, listingID int64) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+bookingColumns+" FROM bookings WHERE listing_id = ? ORDER BY check_in",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

// ListConfirmedForRoom retrieves confirmed bookings for a room ordered
// by check-in. Only confirmed bookings are rendered into feeds.
func (r *BookingRepository) ListConfirmedForRoom(ctx context.Context, roomID int64) ([]models.Booking, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+bookingColumns+` FROM bookings
		 WHERE room_id = ? AND status = ?
		 ORDER BY check_in`,
		roomID, models.BookingStatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("querying confirmed bookings: %w", err)
	}
	defer rows.Close()

	return collectBookings(rows)
}

func collectBookings(rows *sql.Rows) ([]models.Booking, error) {
	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// Upsert creates or updates a booking keyed on (listing, external
// booking id). Returns whether a new row was created. Concurrent
// upserts for the same key resolve last-write-wins at the row level via
// the unique constraint.
func (r *BookingRepository) Upsert(ctx context.Context, b *models.Booking) (bool, error) {
	now := r.Now()
	b.LastFetchedAt = now

	customData, err := encodeCustomData(b.CustomData)
	if err != nil {
		return false, err
	}

	existing, err := r.GetByCloudbedsID(ctx, b.ListingID, b.CloudbedsBookingID)
	if err != nil {
		return false, err
	}

	if existing != nil {
		_, err = r.DB().ExecContext(ctx, `
			UPDATE bookings SET
				room_id = ?, guest_name = ?, guest_phone_last4 = ?,
				check_in = ?, check_out = ?, status = ?, custom_data = ?,
				last_fetched_at = ?, updated_at = ?
			WHERE id = ?
		`,
			b.RoomID, b.GuestName, b.GuestPhoneLast4,
			b.CheckIn, b.CheckOut, b.Status, customData,
			now, now, existing.ID,
		)
		if err != nil {
			return false, fmt.Errorf("updating booking: %w", err)
		}
		b.ID = existing.ID
		b.CreatedAt = existing.CreatedAt
		b.UpdatedAt = now
		return false, nil
	}

	result, err := r.DB().ExecContext(ctx, `
		INSERT INTO bookings (
			listing_id, room_id, cloudbeds_booking_id, guest_name,
			guest_phone_last4, check_in, check_out, status, custom_data,
			last_fetched_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ListingID, b.RoomID, b.CloudbedsBookingID, b.GuestName,
		b.GuestPhoneLast4, b.CheckIn, b.CheckOut, b.Status, customData,
		now, now, now,
	)
	if err != nil {
		return false, fmt.Errorf("inserting booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("reading booking id: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return true, nil
}

// MarkCancelled transitions a booking to cancelled status.
func (r *BookingRepository) MarkCancelled(ctx context.Context, id int64) error {
	_, err := r.DB().ExecContext(ctx,
		"UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?",
		models.BookingStatusCancelled, r.Now(), id)
	if err != nil {
		return fmt.Errorf("cancelling booking: %w", err)
	}
	return nil
}

// PurgeCheckedOut deletes bookings whose check-out predates the
// retention cutoff. Returns the number of rows removed.
func (r *BookingRepository) PurgeCheckedOut(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.Now().Add(-olderThan)
	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM bookings WHERE check_out < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging old bookings: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// PurgeCancelled deletes cancelled bookings not touched since the
// retention cutoff. Returns the number of rows removed.
func (r *BookingRepository) PurgeCancelled(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := r.Now().Add(-olderThan)
	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM bookings WHERE status = ? AND updated_at < ?",
		models.BookingStatusCancelled, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging cancelled bookings: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

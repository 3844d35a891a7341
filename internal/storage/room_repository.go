package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// RoomRepository provides data access for rooms.
type RoomRepository struct {
	BaseRepository
}

// NewRoomRepository creates a new room repository.
func NewRoomRepository(db *DB) *RoomRepository {
	return &RoomRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const roomColumns = `
	id, listing_id, cloudbeds_room_id, name, room_type, slug, enabled,
	created_at, updated_at
`

func scanRoom(row interface{ Scan(...any) error }) (*models.Room, error) {
	rm := &models.Room{}
	err := row.Scan(
		&rm.ID, &rm.ListingID, &rm.CloudbedsRoomID, &rm.Name, &rm.RoomType,
		&rm.Slug, &rm.Enabled, &rm.CreatedAt, &rm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rm, nil
}

// GetByID retrieves a room by its ID.
func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*models.Room, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE id = ?", id)

	rm, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying room: %w", err)
	}
	return rm, nil
}

// GetBySlugs retrieves a room by (listing slug, room slug), the feed
// address shape.
func (r *RoomRepository) GetBySlugs(ctx context.Context, listingSlug, roomSlug string) (*models.Room, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT r.id, r.listing_id, r.cloudbeds_room_id, r.name, r.room_type,
		       r.slug, r.enabled, r.created_at, r.updated_at
		FROM rooms r
		JOIN listings l ON l.id = r.listing_id
		WHERE l.slug = ? AND r.slug = ?
	`, listingSlug, roomSlug)

	rm, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying room by slugs: %w", err)
	}
	return rm, nil
}

// GetByCloudbedsID retrieves a room by its external room ID within a listing.
func (r *RoomRepository) GetByCloudbedsID(ctx context.Context, listingID int64, cloudbedsRoomID string) (*models.Room, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE listing_id = ? AND cloudbeds_room_id = ?",
		listingID, cloudbedsRoomID)

	rm, err := scanRoom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying room: %w", err)
	}
	return rm, nil
}

// ListByListing retrieves all rooms for a listing ordered by name.
func (r *RoomRepository) ListByListing(ctx context.Context, listingID int64) ([]models.Room, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+roomColumns+" FROM rooms WHERE listing_id = ? ORDER BY name",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("querying rooms: %w", err)
	}
	defer rows.Close()

	return collectRooms(rows)
}

func collectRooms(rows *sql.Rows) ([]models.Room, error) {
	var rooms []models.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning room: %w", err)
		}
		rooms = append(rooms, *rm)
	}
	return rooms, rows.Err()
}

// Upsert creates or updates a room keyed on (listing, external room id).
// Name and type follow upstream; the slug and enabled flag are
// operator-owned and preserved on update. New rooms get a slug derived
// from their name, unique within the listing. Rooms are never deleted
// here. Returns the stored room and whether a new row was created.
func (r *RoomRepository) Upsert(ctx context.Context, listingID int64, cloudbedsRoomID, name string, roomType *string) (*models.Room, bool, error) {
	now := r.Now()

	existing, err := r.GetByCloudbedsID(ctx, listingID, cloudbedsRoomID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		_, err = r.DB().ExecContext(ctx, `
			UPDATE rooms SET name = ?, room_type = ?, updated_at = ?
			WHERE id = ?
		`, name, roomType, now, existing.ID)
		if err != nil {
			return nil, false, fmt.Errorf("updating room: %w", err)
		}
		existing.Name = name
		existing.RoomType = roomType
		existing.UpdatedAt = now
		return existing, false, nil
	}

	taken, err := r.listSlugs(ctx, listingID)
	if err != nil {
		return nil, false, err
	}
	slug := UniqueSlug(name, taken)

	result, err := r.DB().ExecContext(ctx, `
		INSERT INTO rooms (
			listing_id, cloudbeds_room_id, name, room_type, slug, enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, listingID, cloudbedsRoomID, name, roomType, slug, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("inserting room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("reading room id: %w", err)
	}

	return &models.Room{
		ID:              id,
		ListingID:       listingID,
		CloudbedsRoomID: cloudbedsRoomID,
		Name:            name,
		RoomType:        roomType,
		Slug:            slug,
		Enabled:         true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, true, nil
}

// SetEnabled toggles whether the room serves a feed. Disabled rooms keep
// their bookings; only the feed surface goes away.
func (r *RoomRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := r.DB().ExecContext(ctx,
		"UPDATE rooms SET enabled = ?, updated_at = ? WHERE id = ?",
		enabled, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("room not found: %d", id)
	}
	return nil
}

// UpdateSlug replaces a room's feed slug with an operator-chosen value.
// The slug must be well-formed and unique within the listing.
func (r *RoomRepository) UpdateSlug(ctx context.Context, id int64, slug string) error {
	if !ValidSlug(slug) {
		return fmt.Errorf("invalid slug: %q", slug)
	}

	result, err := r.DB().ExecContext(ctx,
		"UPDATE rooms SET slug = ?, updated_at = ? WHERE id = ?",
		slug, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating room slug: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("room not found: %d", id)
	}
	return nil
}

func (r *RoomRepository) listSlugs(ctx context.Context, listingID int64) (map[string]bool, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT slug FROM rooms WHERE listing_id = ?", listingID)
	if err != nil {
		return nil, fmt.Errorf("querying room slugs: %w", err)
	}
	defer rows.Close()

	slugs := make(map[string]bool)
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			return nil, fmt.Errorf("scanning slug: %w", err)
		}
		slugs[slug] = true
	}
	return slugs, rows.Err()
}

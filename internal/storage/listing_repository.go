package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// ListingRepository provides data access for listings.
type ListingRepository struct {
	BaseRepository
}

// NewListingRepository creates a new listing repository.
func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const listingColumns = `
	id, cloudbeds_id, name, slug, timezone, enabled, sync_enabled,
	last_sync_at, last_sync_error, created_at, updated_at
`

func scanListing(row interface{ Scan(...any) error }) (*models.Listing, error) {
	l := &models.Listing{}
	err := row.Scan(
		&l.ID, &l.CloudbedsID, &l.Name, &l.Slug, &l.Timezone,
		&l.Enabled, &l.SyncEnabled, &l.LastSyncAt, &l.LastSyncError,
		&l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// GetByID retrieves a listing by its ID.
func (r *ListingRepository) GetByID(ctx context.Context, id int64) (*models.Listing, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE id = ?", id)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying listing: %w", err)
	}
	return l, nil
}

// GetByCloudbedsID retrieves a listing by its external property ID.
func (r *ListingRepository) GetByCloudbedsID(ctx context.Context, cloudbedsID string) (*models.Listing, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE cloudbeds_id = ?", cloudbedsID)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying listing: %w", err)
	}
	return l, nil
}

// GetBySlug retrieves a listing by its feed slug.
func (r *ListingRepository) GetBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	row := r.DB().QueryRowContext(ctx,
		"SELECT "+listingColumns+" FROM listings WHERE slug = ?", slug)

	l, err := scanListing(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying listing: %w", err)
	}
	return l, nil
}

// List retrieves all listings ordered by name.
func (r *ListingRepository) List(ctx context.Context) ([]models.Listing, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+listingColumns+" FROM listings ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("querying listings: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

// ListSyncEnabled retrieves all listings that participate in scheduled sync.
func (r *ListingRepository) ListSyncEnabled(ctx context.Context) ([]models.Listing, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+listingColumns+` FROM listings
		 WHERE enabled = 1 AND sync_enabled = 1
		 ORDER BY last_sync_at ASC NULLS FIRST`)
	if err != nil {
		return nil, fmt.Errorf("querying sync-enabled listings: %w", err)
	}
	defer rows.Close()

	return collectListings(rows)
}

func collectListings(rows *sql.Rows) ([]models.Listing, error) {
	var listings []models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning listing: %w", err)
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

// Upsert creates or updates a listing keyed on its external property ID.
// Name and timezone follow upstream; enabled/sync_enabled flags and the
// slug are operator-owned and preserved on update. Returns the stored
// listing and whether a new row was created.
func (r *ListingRepository) Upsert(ctx context.Context, cloudbedsID, name, slug, timezone string) (*models.Listing, bool, error) {
	now := r.Now()

	existing, err := r.GetByCloudbedsID(ctx, cloudbedsID)
	if err != nil {
		return nil, false, err
	}

	if existing != nil {
		_, err = r.DB().ExecContext(ctx, `
			UPDATE listings SET name = ?, timezone = ?, updated_at = ?
			WHERE id = ?
		`, name, timezone, now, existing.ID)
		if err != nil {
			return nil, false, fmt.Errorf("updating listing: %w", err)
		}
		existing.Name = name
		existing.Timezone = timezone
		existing.UpdatedAt = now
		return existing, false, nil
	}

	result, err := r.DB().ExecContext(ctx, `
		INSERT INTO listings (
			cloudbeds_id, name, slug, timezone, enabled, sync_enabled,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, 1, ?, ?)
	`, cloudbedsID, name, slug, timezone, now, now)
	if err != nil {
		return nil, false, fmt.Errorf("inserting listing: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("reading listing id: %w", err)
	}

	return &models.Listing{
		ID:          id,
		CloudbedsID: cloudbedsID,
		Name:        name,
		Slug:        slug,
		Timezone:    timezone,
		SyncEnabled: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true, nil
}

// SetEnabled toggles whether the listing serves feeds.
func (r *ListingRepository) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := r.DB().ExecContext(ctx,
		"UPDATE listings SET enabled = ?, updated_at = ? WHERE id = ?",
		enabled, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating listing: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("listing not found: %d", id)
	}
	return nil
}

// SetSyncEnabled toggles whether the listing participates in polling.
func (r *ListingRepository) SetSyncEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := r.DB().ExecContext(ctx,
		"UPDATE listings SET sync_enabled = ?, updated_at = ? WHERE id = ?",
		enabled, r.Now(), id)
	if err != nil {
		return fmt.Errorf("updating listing: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("listing not found: %d", id)
	}
	return nil
}

// RecordSyncSuccess clears the listing's sync error and stamps last_sync_at.
func (r *ListingRepository) RecordSyncSuccess(ctx context.Context, id int64) error {
	now := r.Now()
	_, err := r.DB().ExecContext(ctx, `
		UPDATE listings SET last_sync_at = ?, last_sync_error = NULL, updated_at = ?
		WHERE id = ?
	`, now, now, id)
	if err != nil {
		return fmt.Errorf("recording sync success: %w", err)
	}
	return nil
}

// RecordSyncError stores a sync failure message on the listing for
// operator visibility. The message must never contain credential
// material or raw upstream response bodies.
func (r *ListingRepository) RecordSyncError(ctx context.Context, id int64, message string) error {
	now := r.Now()
	_, err := r.DB().ExecContext(ctx, `
		UPDATE listings SET last_sync_at = ?, last_sync_error = ?, updated_at = ?
		WHERE id = ?
	`, now, message, now, id)
	if err != nil {
		return fmt.Errorf("recording sync error: %w", err)
	}
	return nil
}

// ListSlugs returns all listing slugs currently in use.
func (r *ListingRepository) ListSlugs(ctx context.Context) (map[string]bool, error) {
	rows, err := r.DB().QueryContext(ctx, "SELECT slug FROM listings")
	if err != nil {
		return nil, fmt.Errorf("querying listing slugs: %w", err)
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

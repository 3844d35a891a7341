package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// CustomFieldRepository provides data access for custom field configuration.
type CustomFieldRepository struct {
	BaseRepository
}

// NewCustomFieldRepository creates a new custom field repository.
func NewCustomFieldRepository(db *DB) *CustomFieldRepository {
	return &CustomFieldRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const customFieldColumns = `
	id, listing_id, field_name, display_label, enabled, sort_order,
	created_at, updated_at
`

func scanCustomField(row interface{ Scan(...any) error }) (*models.CustomField, error) {
	cf := &models.CustomField{}
	err := row.Scan(
		&cf.ID, &cf.ListingID, &cf.FieldName, &cf.DisplayLabel,
		&cf.Enabled, &cf.SortOrder, &cf.CreatedAt, &cf.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return cf, nil
}

// ListForListing retrieves all custom fields for a listing in sort order.
func (r *CustomFieldRepository) ListForListing(ctx context.Context, listingID int64) ([]models.CustomField, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+customFieldColumns+" FROM custom_fields WHERE listing_id = ? ORDER BY sort_order, field_name",
		listingID)
	if err != nil {
		return nil, fmt.Errorf("querying custom fields: %w", err)
	}
	defer rows.Close()

	return collectCustomFields(rows)
}

// ListEnabledForListing retrieves only the enabled custom fields for a
// listing in sort order, the set the renderer consumes.
func (r *CustomFieldRepository) ListEnabledForListing(ctx context.Context, listingID int64) ([]models.CustomField, error) {
	rows, err := r.DB().QueryContext(ctx,
		"SELECT "+customFieldColumns+` FROM custom_fields
		 WHERE listing_id = ? AND enabled = 1
		 ORDER BY sort_order, field_name`,
		listingID)
	if err != nil {
		return nil, fmt.Errorf("querying enabled custom fields: %w", err)
	}
	defer rows.Close()

	return collectCustomFields(rows)
}

func collectCustomFields(rows *sql.Rows) ([]models.CustomField, error) {
	var fields []models.CustomField
	for rows.Next() {
		cf, err := scanCustomField(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning custom field: %w", err)
		}
		fields = append(fields, *cf)
	}
	return fields, rows.Err()
}

// Upsert creates or updates a custom field keyed on (listing, field name).
func (r *CustomFieldRepository) Upsert(ctx context.Context, cf *models.CustomField) error {
	now := r.Now()

	row := r.DB().QueryRowContext(ctx,
		"SELECT id FROM custom_fields WHERE listing_id = ? AND field_name = ?",
		cf.ListingID, cf.FieldName)

	var existingID int64
	err := row.Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		result, err := r.DB().ExecContext(ctx, `
			INSERT INTO custom_fields (
				listing_id, field_name, display_label, enabled, sort_order,
				created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?)
		`, cf.ListingID, cf.FieldName, cf.DisplayLabel, cf.Enabled, cf.SortOrder, now, now)
		if err != nil {
			return fmt.Errorf("inserting custom field: %w", err)
		}
		cf.ID, _ = result.LastInsertId()
		cf.CreatedAt = now
		cf.UpdatedAt = now
		return nil
	case err != nil:
		return fmt.Errorf("querying custom field: %w", err)
	}

	_, err = r.DB().ExecContext(ctx, `
		UPDATE custom_fields SET display_label = ?, enabled = ?, sort_order = ?, updated_at = ?
		WHERE id = ?
	`, cf.DisplayLabel, cf.Enabled, cf.SortOrder, now, existingID)
	if err != nil {
		return fmt.Errorf("updating custom field: %w", err)
	}
	cf.ID = existingID
	cf.UpdatedAt = now
	return nil
}

// Delete removes a custom field by ID.
func (r *CustomFieldRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM custom_fields WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting custom field: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("custom field not found: %d", id)
	}
	return nil
}

package models

import (
	"time"
)

// CustomField configures one field of the iCal event description for a
// listing. Enabled fields are rendered in sort order as
// "<display label>: <value>"; fields with no value for a booking are
// omitted.
type CustomField struct {
	ID           int64     `json:"id"`
	ListingID    int64     `json:"listing_id"`
	FieldName    string    `json:"field_name"`
	DisplayLabel string    `json:"display_label"`
	Enabled      bool      `json:"enabled"`
	SortOrder    int       `json:"sort_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

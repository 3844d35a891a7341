// Package models contains the domain models for the application.
package models

import (
	"time"
)

// Listing represents a Cloudbeds property configured for iCal export.
// Listings are created and updated only by property reconciliation
// against the booking source, never by feed rendering.
type Listing struct {
	ID            int64      `json:"id"`
	CloudbedsID   string     `json:"cloudbeds_id"`
	Name          string     `json:"name"`
	Slug          string     `json:"slug"`
	Timezone      string     `json:"timezone"`
	Enabled       bool       `json:"enabled"`
	SyncEnabled   bool       `json:"sync_enabled"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	LastSyncError *string    `json:"last_sync_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Location resolves the listing's IANA timezone, falling back to UTC.
// Timezone validity is enforced at upsert time, so a bad value here
// means the row predates validation.
func (l *Listing) Location() *time.Location {
	loc, err := time.LoadLocation(l.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

func TestCustomFieldUpsertAndOrdering(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewCustomFieldRepository(db)
	ctx := context.Background()

	listingID := createTestListing(t, db, "prop-1", "Beach House")

	entries := []*models.CustomField{
		{ListingID: listingID, FieldName: "special_requests", DisplayLabel: "Special Requests", Enabled: true, SortOrder: 2},
		{ListingID: listingID, FieldName: "num_guests", DisplayLabel: "Guests", Enabled: true, SortOrder: 1},
		{ListingID: listingID, FieldName: "booking_notes", DisplayLabel: "Notes", Enabled: false, SortOrder: 0},
	}
	for _, cf := range entries {
		require.NoError(t, repo.Upsert(ctx, cf))
	}

	all, err := repo.ListForListing(ctx, listingID)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "booking_notes", all[0].FieldName)

	enabled, err := repo.ListEnabledForListing(ctx, listingID)
	require.NoError(t, err)
	require.Len(t, enabled, 2)
	assert.Equal(t, "num_guests", enabled[0].FieldName)
	assert.Equal(t, "special_requests", enabled[1].FieldName)
}

func TestCustomFieldUpsertReplacesByName(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewCustomFieldRepository(db)
	ctx := context.Background()

	listingID := createTestListing(t, db, "prop-1", "Beach House")

	require.NoError(t, repo.Upsert(ctx, &models.CustomField{
		ListingID: listingID, FieldName: "num_guests", DisplayLabel: "Guests", Enabled: true, SortOrder: 0,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.CustomField{
		ListingID: listingID, FieldName: "num_guests", DisplayLabel: "Guest Count", Enabled: false, SortOrder: 3,
	}))

	all, err := repo.ListForListing(ctx, listingID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Guest Count", all[0].DisplayLabel)
	assert.False(t, all[0].Enabled)
	assert.Equal(t, 3, all[0].SortOrder)
}

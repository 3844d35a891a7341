package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomUpsertGeneratesUniqueSlugs(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	listingID := createTestListing(t, db, "prop-1", "Beach House")

	first, created, err := repo.Upsert(ctx, listingID, "r-1", "Ocean View", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "ocean-view", first.Slug)
	assert.True(t, first.Enabled)

	// Same display name on a different upstream room must not collide.
	second, created, err := repo.Upsert(ctx, listingID, "r-2", "Ocean View", nil)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.Slug, second.Slug)
	assert.True(t, ValidSlug(second.Slug))
}

func TestRoomUpsertKeepsSlugAndFlagsOnRename(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	listingID := createTestListing(t, db, "prop-1", "Beach House")

	room, _, err := repo.Upsert(ctx, listingID, "r-1", "Ocean View", nil)
	require.NoError(t, err)
	require.NoError(t, repo.SetEnabled(ctx, room.ID, false))

	roomType := "Suite"
	updated, created, err := repo.Upsert(ctx, listingID, "r-1", "Ocean View Suite", &roomType)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, updated.ID)
	assert.Equal(t, "Ocean View Suite", updated.Name)
	assert.Equal(t, "ocean-view", updated.Slug, "published feed URLs survive upstream renames")
	assert.False(t, updated.Enabled)
	require.NotNil(t, updated.RoomType)
	assert.Equal(t, "Suite", *updated.RoomType)
}

func TestRoomGetBySlugs(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	listingID := createTestListing(t, db, "prop-1", "Beach House")
	room, _, err := repo.Upsert(ctx, listingID, "r-1", "Ocean View", nil)
	require.NoError(t, err)

	found, err := repo.GetBySlugs(ctx, "beach-house", "ocean-view")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, room.ID, found.ID)

	missing, err := repo.GetBySlugs(ctx, "beach-house", "attic")
	require.NoError(t, err)
	assert.Nil(t, missing)

	wrongListing, err := repo.GetBySlugs(ctx, "other-house", "ocean-view")
	require.NoError(t, err)
	assert.Nil(t, wrongListing)
}

func TestRoomUpdateSlugRejectsMalformed(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRoomRepository(db)
	ctx := context.Background()

	listingID := createTestListing(t, db, "prop-1", "Beach House")
	room, _, err := repo.Upsert(ctx, listingID, "r-1", "Ocean View", nil)
	require.NoError(t, err)

	assert.Error(t, repo.UpdateSlug(ctx, room.ID, "Bad Slug"))
	assert.Error(t, repo.UpdateSlug(ctx, room.ID, "double--hyphen"))

	require.NoError(t, repo.UpdateSlug(ctx, room.ID, "front-room"))
	updated, err := repo.GetByID(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "front-room", updated.Slug)
}

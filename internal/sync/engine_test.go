package sync

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rentalsync-bridge/backend/internal/cloudbeds"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

type fakeSource struct {
	mu         gosync.Mutex
	properties []cloudbeds.PropertyDTO
	rooms      map[string][]cloudbeds.RoomDTO
	bookings   map[string][]cloudbeds.BookingDTO
	err        error

	// onListRooms runs at the top of every ListRooms call; tests use it
	// to hold a sync mid-flight.
	onListRooms func()
}

func (f *fakeSource) GetProperties(ctx context.Context, accessToken string) ([]cloudbeds.PropertyDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.properties, nil
}

func (f *fakeSource) ListRooms(ctx context.Context, accessToken, propertyID string) ([]cloudbeds.RoomDTO, error) {
	if f.onListRooms != nil {
		f.onListRooms()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rooms[propertyID], nil
}

func (f *fakeSource) ListBookings(ctx context.Context, accessToken, propertyID string, from, to time.Time) ([]cloudbeds.BookingDTO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.bookings[propertyID], nil
}

func (f *fakeSource) setBookings(propertyID string, bookings []cloudbeds.BookingDTO) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[propertyID] = bookings
}

type staticTokens struct{ err error }

func (s staticTokens) Acquire(ctx context.Context) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "test-token", nil
}

type recordingCache struct {
	mu          gosync.Mutex
	invalidated []string
}

func (c *recordingCache) InvalidateListing(listingSlug string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, listingSlug)
	return 0
}

type engineFixture struct {
	engine   *Engine
	source   *fakeSource
	cache    *recordingCache
	listings *storage.ListingRepository
	rooms    *storage.RoomRepository
	bookings *storage.BookingRepository

	listingID int64
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	require.NoError(t, storage.RunMigrations(db, log))

	f := &engineFixture{
		source: &fakeSource{
			rooms:    make(map[string][]cloudbeds.RoomDTO),
			bookings: make(map[string][]cloudbeds.BookingDTO),
		},
		cache:    &recordingCache{},
		listings: storage.NewListingRepository(db),
		rooms:    storage.NewRoomRepository(db),
		bookings: storage.NewBookingRepository(db),
	}
	f.engine = NewEngine(f.source, staticTokens{}, f.cache, nil,
		f.listings, f.rooms, f.bookings, log)

	ctx := context.Background()
	listing, _, err := f.listings.Upsert(ctx, "prop-1", "Beach House", "beach-house", "UTC")
	require.NoError(t, err)
	f.listingID = listing.ID

	f.source.rooms["prop-1"] = []cloudbeds.RoomDTO{
		{RoomID: "r-1", RoomName: "Ocean View", RoomTypeName: "Suite"},
	}

	return f
}

func confirmedBooking(id, roomID string, checkIn time.Time, nights int) cloudbeds.BookingDTO {
	return cloudbeds.BookingDTO{
		ReservationID:  id,
		GuestFirstName: "Ada",
		GuestLastName:  "Lovelace",
		GuestPhone:     "+1 (555) 123-0199",
		StartDate:      checkIn.Format("2006-01-02"),
		EndDate:        checkIn.AddDate(0, 0, nights).Format("2006-01-02"),
		Status:         "confirmed",
		RoomID:         roomID,
	}
}

func TestSyncListingInsertsRoomsAndBookings(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	checkIn := time.Now().UTC().AddDate(0, 0, 7)
	f.source.setBookings("prop-1", []cloudbeds.BookingDTO{
		confirmedBooking("res-1", "r-1", checkIn, 3),
	})

	result, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.RoomsSeen)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 0, result.Updated)
	assert.NotEmpty(t, result.RunID)

	room, err := f.rooms.GetByCloudbedsID(ctx, f.listingID, "r-1")
	require.NoError(t, err)
	require.NotNil(t, room)

	booking, err := f.bookings.GetByCloudbedsID(ctx, f.listingID, "res-1")
	require.NoError(t, err)
	require.NotNil(t, booking)
	assert.Equal(t, "Ada Lovelace", *booking.GuestName)
	require.NotNil(t, booking.RoomID)
	assert.Equal(t, room.ID, *booking.RoomID)

	// Only the last four digits of the phone survive ingestion.
	require.NotNil(t, booking.GuestPhoneLast4)
	assert.Equal(t, "0199", *booking.GuestPhoneLast4)

	listing, err := f.listings.GetByID(ctx, f.listingID)
	require.NoError(t, err)
	assert.NotNil(t, listing.LastSyncAt)
	assert.Nil(t, listing.LastSyncError)

	assert.Equal(t, []string{"beach-house"}, f.cache.invalidated)
}

func TestSyncListingIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	checkIn := time.Now().UTC().AddDate(0, 0, 7)
	f.source.setBookings("prop-1", []cloudbeds.BookingDTO{
		confirmedBooking("res-1", "r-1", checkIn, 3),
	})

	_, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)

	result, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 0, result.Cancelled)

	all, err := f.bookings.ListForListing(ctx, f.listingID)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSyncListingCancelsDisappearedBookings(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	checkIn := time.Now().UTC().AddDate(0, 0, 7)
	f.source.setBookings("prop-1", []cloudbeds.BookingDTO{
		confirmedBooking("res-1", "r-1", checkIn, 3),
		confirmedBooking("res-2", "r-1", checkIn.AddDate(0, 0, 10), 2),
	})

	_, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)

	// res-2 vanishes from the next fetch: cancelled upstream.
	f.source.setBookings("prop-1", []cloudbeds.BookingDTO{
		confirmedBooking("res-1", "r-1", checkIn, 3),
	})

	result, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)

	gone, err := f.bookings.GetByCloudbedsID(ctx, f.listingID, "res-2")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, gone.Status)

	kept, err := f.bookings.GetByCloudbedsID(ctx, f.listingID, "res-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, kept.Status)
}

func TestSyncListingCancelsAbsentPendingButNotNoShow(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	checkIn := time.Now().UTC().AddDate(0, 0, 7)
	for id, status := range map[string]string{
		"res-pending": models.BookingStatusPending,
		"res-noshow":  models.BookingStatusNoShow,
	} {
		_, err := f.bookings.Upsert(ctx, &models.Booking{
			ListingID:          f.listingID,
			CloudbedsBookingID: id,
			CheckIn:            checkIn,
			CheckOut:           checkIn.AddDate(0, 0, 2),
			Status:             status,
		})
		require.NoError(t, err)
	}

	result, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Cancelled)

	pending, err := f.bookings.GetByCloudbedsID(ctx, f.listingID, "res-pending")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, pending.Status)

	noShow, err := f.bookings.GetByCloudbedsID(ctx, f.listingID, "res-noshow")
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusNoShow, noShow.Status)
}

func TestSyncListingSkipsInvalidBookings(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	checkIn := time.Now().UTC().AddDate(0, 0, 7)
	missingID := confirmedBooking("", "r-1", checkIn, 2)
	badDates := confirmedBooking("res-bad", "r-1", checkIn, 0)
	unparseable := confirmedBooking("res-worse", "r-1", checkIn, 2)
	unparseable.StartDate = "next tuesday"

	f.source.setBookings("prop-1", []cloudbeds.BookingDTO{
		missingID, badDates, unparseable,
		confirmedBooking("res-good", "r-1", checkIn, 2),
	})

	result, err := f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err, "invalid records never fail the whole run")
	assert.Equal(t, 3, result.Skipped)
	assert.Equal(t, 1, result.Inserted)

	all, err := f.bookings.ListForListing(ctx, f.listingID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "res-good", all[0].CloudbedsBookingID)
}

func TestSyncListingFailsFastWhenInProgress(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	var once gosync.Once
	f.source.onListRooms = func() {
		once.Do(func() { close(entered) })
		<-release
	}

	done := make(chan error, 1)
	go func() {
		_, err := f.engine.SyncListing(ctx, f.listingID)
		done <- err
	}()

	// The first sync holds the listing lock while blocked upstream.
	<-entered
	_, err := f.engine.SyncListing(ctx, f.listingID)
	var syncErr *Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrInProgress, syncErr.Kind)

	close(release)
	require.NoError(t, <-done)

	// The lock is released once the first run completes.
	_, err = f.engine.SyncListing(ctx, f.listingID)
	require.NoError(t, err)
}

func TestSyncListingCredentialFailure(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.engine.tokens = staticTokens{err: errors.New("credential invalid")}
	ctx := context.Background()

	_, err := f.engine.SyncListing(ctx, f.listingID)
	var syncErr *Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrCredential, syncErr.Kind)

	listing, getErr := f.listings.GetByID(ctx, f.listingID)
	require.NoError(t, getErr)
	require.NotNil(t, listing.LastSyncError)
	assert.Empty(t, f.cache.invalidated, "failed syncs leave cached feeds alone")
}

func TestSyncListingUpstreamFailure(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	f.source.err = errors.New("connection reset")
	ctx := context.Background()

	_, err := f.engine.SyncListing(ctx, f.listingID)
	var syncErr *Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrUpstream, syncErr.Kind)
}

func TestSyncListingUnknownAndDisabled(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.engine.SyncListing(ctx, 9999)
	var syncErr *Error
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrNotFound, syncErr.Kind)

	require.NoError(t, f.listings.SetSyncEnabled(ctx, f.listingID, false))
	_, err = f.engine.SyncListing(ctx, f.listingID)
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrDisabled, syncErr.Kind)

	broken, _, err := f.listings.Upsert(ctx, "", "Broken", "broken", "UTC")
	require.NoError(t, err)
	require.NoError(t, f.listings.SetSyncEnabled(ctx, broken.ID, true))
	_, err = f.engine.SyncListing(ctx, broken.ID)
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, ErrValidation, syncErr.Kind)
}

func TestSyncPropertiesDiscoversAndFallsBackTimezone(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.source.properties = []cloudbeds.PropertyDTO{
		{PropertyID: "prop-1", PropertyName: "Beach House", PropertyTimezone: "America/New_York"},
		{PropertyID: "prop-2", PropertyName: "City Loft", PropertyTimezone: "Mars/Olympus_Mons"},
		{PropertyID: ""},
	}

	created, err := f.engine.SyncProperties(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, created, "prop-1 already exists, prop-2 is new, empty id skipped")

	loft, err := f.listings.GetByCloudbedsID(ctx, "prop-2")
	require.NoError(t, err)
	require.NotNil(t, loft)
	assert.Equal(t, "UTC", loft.Timezone, "unknown timezones fall back to UTC")
	assert.Equal(t, "city-loft", loft.Slug)
	assert.False(t, loft.Enabled)
}

func TestSyncPropertiesResolvesSlugCollision(t *testing.T) {
	t.Parallel()

	f := newEngineFixture(t)
	ctx := context.Background()

	f.source.properties = []cloudbeds.PropertyDTO{
		{PropertyID: "prop-2", PropertyName: "Beach House", PropertyTimezone: "UTC"},
	}

	created, err := f.engine.SyncProperties(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	dupe, err := f.listings.GetByCloudbedsID(ctx, "prop-2")
	require.NoError(t, err)
	require.NotNil(t, dupe)
	assert.NotEqual(t, "beach-house", dupe.Slug)
	assert.True(t, storage.ValidSlug(dupe.Slug))
}

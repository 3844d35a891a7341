// Package sync reconciles the booking source with local storage: it
// pulls properties, rooms, and reservations, upserts them, and marks
// bookings that disappeared upstream as cancelled.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/rentalsync-bridge/backend/internal/cloudbeds"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

const (
	// windowBehind includes bookings whose stay recently ended so a
	// late cancellation of an in-progress stay is still observed.
	windowBehind = 24 * time.Hour
	// windowAhead bounds how far into the future bookings are pulled.
	windowAhead = 365 * 24 * time.Hour

	// Purge retention, measured from checkout date and cancellation
	// observation respectively.
	purgeCheckedOutAfter = 90 * 24 * time.Hour
	purgeCancelledAfter  = 30 * 24 * time.Hour
)

// BookingSource is the upstream API surface the engine consumes.
type BookingSource interface {
	GetProperties(ctx context.Context, accessToken string) ([]cloudbeds.PropertyDTO, error)
	ListRooms(ctx context.Context, accessToken, propertyID string) ([]cloudbeds.RoomDTO, error)
	ListBookings(ctx context.Context, accessToken, propertyID string, from, to time.Time) ([]cloudbeds.BookingDTO, error)
}

// TokenProvider hands out valid access tokens.
type TokenProvider interface {
	Acquire(ctx context.Context) (string, error)
}

// FeedInvalidator evicts cached feeds after storage changes.
type FeedInvalidator interface {
	InvalidateListing(listingSlug string) int
}

// Notifier receives sync outcomes for broadcast to connected clients.
type Notifier interface {
	SyncCompleted(result *Result)
	SyncFailed(listingID int64, listingName string, err error)
}

// Result summarizes one sync run for a listing.
type Result struct {
	RunID       string        `json:"run_id"`
	ListingID   int64         `json:"listing_id"`
	ListingName string        `json:"listing_name"`
	RoomsSeen   int           `json:"rooms_seen"`
	Inserted    int           `json:"inserted"`
	Updated     int           `json:"updated"`
	Cancelled   int           `json:"cancelled"`
	Skipped     int           `json:"skipped"`
	Duration    time.Duration `json:"-"`
	DurationMS  int64         `json:"duration_ms"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Engine runs sync operations. Each listing syncs under its own lock;
// a second sync of the same listing fails fast instead of queueing.
type Engine struct {
	source   BookingSource
	tokens   TokenProvider
	cache    FeedInvalidator
	notifier Notifier

	listings *storage.ListingRepository
	rooms    *storage.RoomRepository
	bookings *storage.BookingRepository

	log *logrus.Logger
	now func() time.Time

	mu    gosync.Mutex
	locks map[int64]*gosync.Mutex
}

// NewEngine creates a sync engine.
func NewEngine(source BookingSource, tokens TokenProvider, cache FeedInvalidator,
	notifier Notifier, listings *storage.ListingRepository, rooms *storage.RoomRepository,
	bookings *storage.BookingRepository, log *logrus.Logger) *Engine {
	return &Engine{
		source:   source,
		tokens:   tokens,
		cache:    cache,
		notifier: notifier,
		listings: listings,
		rooms:    rooms,
		bookings: bookings,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[int64]*gosync.Mutex),
	}
}

func (e *Engine) listingLock(listingID int64) *gosync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[listingID]
	if !ok {
		lock = &gosync.Mutex{}
		e.locks[listingID] = lock
	}
	return lock
}

// SyncProperties reconciles the listing table with the properties
// visible to the current credentials. New properties are created
// enabled; existing ones keep their operator-set flags and slug.
func (e *Engine) SyncProperties(ctx context.Context) (created int, err error) {
	token, err := e.tokens.Acquire(ctx)
	if err != nil {
		return 0, classifyTokenError(err)
	}

	props, err := e.source.GetProperties(ctx, token)
	if err != nil {
		return 0, &Error{Kind: ErrUpstream, Err: err}
	}

	for _, prop := range props {
		if prop.PropertyID == "" {
			e.log.Warn("Skipping property with empty id")
			continue
		}
		name := prop.PropertyName
		if name == "" {
			name = prop.PropertyID
		}
		tz := prop.PropertyTimezone
		if _, tzErr := time.LoadLocation(tz); tz == "" || tzErr != nil {
			e.log.WithFields(logrus.Fields{
				"property_id": prop.PropertyID,
				"timezone":    tz,
			}).Warn("Property has unusable timezone, falling back to UTC")
			tz = "UTC"
		}

		taken, slugErr := e.listings.ListSlugs(ctx)
		if slugErr != nil {
			return created, fmt.Errorf("loading listing slugs: %w", slugErr)
		}
		slug := storage.UniqueSlug(name, taken)

		// Upsert keeps the existing slug for known properties, so the
		// candidate only matters on first discovery.
		_, wasCreated, upErr := e.listings.Upsert(ctx, prop.PropertyID, name, slug, tz)
		if upErr != nil {
			return created, fmt.Errorf("upserting listing %s: %w", prop.PropertyID, upErr)
		}
		if wasCreated {
			created++
			e.log.WithFields(logrus.Fields{
				"property_id": prop.PropertyID,
				"name":        name,
				"slug":        slug,
			}).Info("Discovered new property")
		}
	}

	return created, nil
}

// SyncListing synchronizes one listing's rooms and bookings. It fails
// fast with ErrInProgress when a sync for the same listing is running.
func (e *Engine) SyncListing(ctx context.Context, listingID int64) (*Result, error) {
	listing, err := e.listings.GetByID(ctx, listingID)
	if err != nil {
		return nil, fmt.Errorf("loading listing: %w", err)
	}
	if listing == nil {
		return nil, &Error{Kind: ErrNotFound, Err: fmt.Errorf("listing %d", listingID)}
	}
	if !listing.SyncEnabled {
		return nil, &Error{Kind: ErrDisabled, Err: fmt.Errorf("listing %q", listing.Name)}
	}
	if listing.CloudbedsID == "" {
		return nil, &Error{Kind: ErrValidation, Err: fmt.Errorf("listing %q has no property id", listing.Name)}
	}

	lock := e.listingLock(listingID)
	if !lock.TryLock() {
		return nil, &Error{Kind: ErrInProgress, Err: fmt.Errorf("listing %q", listing.Name)}
	}
	defer lock.Unlock()

	result, err := e.syncLocked(ctx, listing)
	if err != nil {
		if recErr := e.listings.RecordSyncError(ctx, listing.ID, err.Error()); recErr != nil {
			e.log.WithError(recErr).Error("Failed to record sync error")
		}
		if e.notifier != nil {
			e.notifier.SyncFailed(listing.ID, listing.Name, err)
		}
		return nil, err
	}

	if recErr := e.listings.RecordSyncSuccess(ctx, listing.ID); recErr != nil {
		e.log.WithError(recErr).Error("Failed to record sync success")
	}
	if e.cache != nil {
		e.cache.InvalidateListing(listing.Slug)
	}
	if e.notifier != nil {
		e.notifier.SyncCompleted(result)
	}
	return result, nil
}

func (e *Engine) syncLocked(ctx context.Context, listing *models.Listing) (*Result, error) {
	started := e.now()
	result := &Result{
		RunID:       uuid.New().String(),
		ListingID:   listing.ID,
		ListingName: listing.Name,
	}
	log := e.log.WithFields(logrus.Fields{
		"run_id":  result.RunID,
		"listing": listing.Name,
	})

	token, err := e.tokens.Acquire(ctx)
	if err != nil {
		return nil, classifyTokenError(err)
	}

	roomDTOs, err := e.source.ListRooms(ctx, token, listing.CloudbedsID)
	if err != nil {
		return nil, &Error{Kind: ErrUpstream, Err: err}
	}

	roomsByUpstreamID := make(map[string]*models.Room, len(roomDTOs))
	for _, dto := range roomDTOs {
		if dto.RoomID == "" {
			log.Warn("Skipping room with empty id")
			continue
		}
		name := dto.RoomName
		if name == "" {
			name = dto.RoomID
		}
		var roomType *string
		if dto.RoomTypeName != "" {
			rt := dto.RoomTypeName
			roomType = &rt
		}
		room, _, upErr := e.rooms.Upsert(ctx, listing.ID, dto.RoomID, name, roomType)
		if upErr != nil {
			return nil, fmt.Errorf("upserting room %s: %w", dto.RoomID, upErr)
		}
		roomsByUpstreamID[dto.RoomID] = room
	}
	result.RoomsSeen = len(roomsByUpstreamID)

	// Rooms are never deleted on the strength of a single fetch; a room
	// missing upstream just gets flagged for the operator.
	storedRooms, err := e.rooms.ListByListing(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("loading stored rooms: %w", err)
	}
	for _, room := range storedRooms {
		if _, ok := roomsByUpstreamID[room.CloudbedsRoomID]; !ok {
			log.WithField("room", room.Name).Warn("Room no longer present upstream")
		}
	}

	from := started.Add(-windowBehind)
	to := started.Add(windowAhead)
	bookingDTOs, err := e.source.ListBookings(ctx, token, listing.CloudbedsID, from, to)
	if err != nil {
		return nil, &Error{Kind: ErrUpstream, Err: err}
	}

	// Upserts commit individually so a bad record late in the batch
	// never rolls back earlier progress.
	seen := make(map[string]bool, len(bookingDTOs))
	loc := listing.Location()
	for _, dto := range bookingDTOs {
		booking, skipReason := e.buildBooking(listing, roomsByUpstreamID, &dto, loc)
		if booking == nil {
			result.Skipped++
			log.WithFields(logrus.Fields{
				"booking_id": dto.ReservationID,
				"reason":     skipReason,
			}).Warn("Skipping invalid booking")
			continue
		}
		seen[booking.CloudbedsBookingID] = true

		created, upErr := e.bookings.Upsert(ctx, booking)
		if upErr != nil {
			result.Skipped++
			log.WithError(upErr).WithField("booking_id", booking.CloudbedsBookingID).
				Error("Failed to upsert booking")
			continue
		}
		if created {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	// A confirmed or pending booking inside the window that the source
	// no longer returns was cancelled upstream.
	stored, err := e.bookings.ListForListing(ctx, listing.ID)
	if err != nil {
		return nil, fmt.Errorf("loading stored bookings: %w", err)
	}
	for _, booking := range stored {
		if seen[booking.CloudbedsBookingID] {
			continue
		}
		if booking.Status != models.BookingStatusConfirmed && booking.Status != models.BookingStatusPending {
			continue
		}
		if booking.CheckOut.Before(from) || booking.CheckIn.After(to) {
			continue
		}
		if err := e.bookings.MarkCancelled(ctx, booking.ID); err != nil {
			log.WithError(err).WithField("booking_id", booking.CloudbedsBookingID).
				Error("Failed to mark booking cancelled")
			continue
		}
		result.Cancelled++
	}

	result.Duration = e.now().Sub(started)
	result.DurationMS = result.Duration.Milliseconds()
	result.CompletedAt = e.now()

	log.WithFields(logrus.Fields{
		"inserted":  result.Inserted,
		"updated":   result.Updated,
		"cancelled": result.Cancelled,
		"skipped":   result.Skipped,
		"duration":  result.Duration.Round(time.Millisecond).String(),
	}).Info("Listing sync completed")

	return result, nil
}

// buildBooking converts a reservation DTO to a storage booking. A nil
// return with a reason means the record is invalid and gets skipped.
func (e *Engine) buildBooking(listing *models.Listing, rooms map[string]*models.Room,
	dto *cloudbeds.BookingDTO, loc *time.Location) (*models.Booking, string) {
	if dto.ReservationID == "" {
		return nil, "missing reservation id"
	}

	checkIn, err := cloudbeds.ParseDateIn(dto.StartDate, loc)
	if err != nil {
		return nil, "unparseable check-in date"
	}
	checkOut, err := cloudbeds.ParseDateIn(dto.EndDate, loc)
	if err != nil {
		return nil, "unparseable check-out date"
	}
	if !checkOut.After(checkIn) {
		return nil, "check-out not after check-in"
	}

	booking := &models.Booking{
		ListingID:          listing.ID,
		CloudbedsBookingID: dto.ReservationID,
		CheckIn:            checkIn,
		CheckOut:           checkOut,
		Status:             cloudbeds.NormalizeStatus(dto.Status),
		CustomData:         dto.CustomValues(),
	}

	if name := dto.Name(); name != "" {
		booking.GuestName = &name
	}
	// Only the last four digits of the phone number are retained.
	if last4 := cloudbeds.ExtractPhoneLast4(dto.Phone()); last4 != "" {
		booking.GuestPhoneLast4 = &last4
	}
	if ref := dto.RoomRef(); ref != "" {
		if room, ok := rooms[ref]; ok {
			booking.RoomID = &room.ID
		}
	}

	return booking, ""
}

// SyncAll syncs every sync-enabled listing sequentially. Failures are
// recorded per listing and do not halt the run.
func (e *Engine) SyncAll(ctx context.Context) {
	listings, err := e.listings.ListSyncEnabled(ctx)
	if err != nil {
		e.log.WithError(err).Error("Failed to load listings for sync")
		return
	}

	for _, listing := range listings {
		if ctx.Err() != nil {
			return
		}
		if _, err := e.SyncListing(ctx, listing.ID); err != nil {
			var syncErr *Error
			if errors.As(err, &syncErr) && syncErr.Kind == ErrInProgress {
				e.log.WithField("listing", listing.Name).Debug("Sync already running, skipping")
				continue
			}
			e.log.WithError(err).WithField("listing", listing.Name).Error("Listing sync failed")
		}
	}
}

// Purge removes bookings past their retention window: checked-out
// stays after 90 days, cancellations after 30.
func (e *Engine) Purge(ctx context.Context) {
	removed, err := e.bookings.PurgeCheckedOut(ctx, purgeCheckedOutAfter)
	if err != nil {
		e.log.WithError(err).Error("Failed to purge checked-out bookings")
	} else if removed > 0 {
		e.log.WithField("removed", removed).Info("Purged checked-out bookings")
	}

	removed, err = e.bookings.PurgeCancelled(ctx, purgeCancelledAfter)
	if err != nil {
		e.log.WithError(err).Error("Failed to purge cancelled bookings")
	} else if removed > 0 {
		e.log.WithField("removed", removed).Info("Purged cancelled bookings")
	}
}

func classifyTokenError(err error) error {
	return &Error{Kind: ErrCredential, Err: err}
}

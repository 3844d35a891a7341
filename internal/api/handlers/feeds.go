package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/rentalsync-bridge/backend/internal/api/middleware"
	"github.com/rentalsync-bridge/backend/internal/feed"
)

// Feed serves the per-room iCalendar feed, preferring the cache and
// rendering on miss. Every resolution failure is a plain 404 so feed
// URLs do not leak which rooms exist.
func Feed(renderer *feed.Renderer, cache *feed.Cache, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		listingSlug := vars["listingSlug"]
		roomSlug := vars["roomSlug"]

		payload, ok := cache.Get(listingSlug, roomSlug)
		if !ok {
			var err error
			payload, err = renderer.Render(r.Context(), listingSlug, roomSlug)
			if err != nil {
				var renderErr *feed.RenderError
				if errors.As(err, &renderErr) {
					middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Calendar feed not found")
					return
				}
				log.WithError(err).WithFields(logrus.Fields{
					"listing": listingSlug,
					"room":    roomSlug,
				}).Error("Failed to render feed")
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to render calendar")
				return
			}
			cache.Put(listingSlug, roomSlug, payload)
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", roomSlug+".ics"))
		w.Write(payload)
	}
}

// LegacyFeed rejects the retired property-level feed shape. Clients
// still polling the old URL get an explicit 410 rather than a silent
// 404 so the migration is discoverable.
func LegacyFeed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusGone, middleware.ErrGone,
			"Property-level feeds have been replaced by per-room feeds: /ical/{listing}/{room}.ics")
	}
}

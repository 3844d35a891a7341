package cloudbeds

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestListRoomsDecodesEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getRooms", r.URL.Path)
		assert.Equal(t, "prop-1", r.URL.Query().Get("propertyID"))
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success": true, "data": [
			{"roomID": "r-1", "roomName": "Ocean View", "roomTypeName": "Suite"},
			{"roomID": "r-2", "roomName": "Garden View"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL+"/token", testLogger())
	rooms, err := client.ListRooms(context.Background(), "token-1", "prop-1")
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "Ocean View", rooms[0].RoomName)
	assert.Equal(t, "Suite", rooms[0].RoomTypeName)
}

func TestListBookingsSendsDateWindow(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/getReservations", r.URL.Path)
		assert.Equal(t, "2026-08-29", r.URL.Query().Get("checkOutFrom"))
		assert.Equal(t, "2027-08-30", r.URL.Query().Get("checkInTo"))
		w.Write([]byte(`{"success": true, "data": []}`))
	}))
	defer server.Close()

	from := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	to := time.Date(2027, 8, 30, 12, 0, 0, 0, time.UTC)

	client := NewClient(server.URL, server.URL+"/token", testLogger())
	bookings, err := client.ListBookings(context.Background(), "token", "prop-1", from, to)
	require.NoError(t, err)
	assert.Empty(t, bookings)
}

func TestGetRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"success": true, "data": []}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL+"/token", testLogger())
	_, err := client.GetProperties(context.Background(), "token")
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL+"/token", testLogger())
	_, err := client.GetProperties(context.Background(), "token")
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestGetFailsOnUnsuccessfulEnvelope(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false, "message": "property not accessible"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL+"/token", testLogger())
	_, err := client.GetProperties(context.Background(), "token")
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "client-1", r.Form.Get("client_id"))
		assert.Equal(t, "old-refresh", r.Form.Get("refresh_token"))

		w.Write([]byte(`{"access_token": "new-access", "refresh_token": "new-refresh", "expires_in": 3600}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL, testLogger())
	token, err := client.RefreshToken(context.Background(), "client-1", "secret", "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", token.AccessToken)
	assert.Equal(t, "new-refresh", token.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)
}

func TestRefreshTokenRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, server.URL, testLogger())
	_, err := client.RefreshToken(context.Background(), "client-1", "secret", "dead-refresh")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
}

// Package cloudbeds implements the HTTP client for the Cloudbeds booking
// source: property metadata, rooms, reservations, and OAuth token refresh.
package cloudbeds

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

const (
	// DefaultBaseURL is the production Cloudbeds API root.
	DefaultBaseURL = "https://api.cloudbeds.com/api/v1.3"

	// DefaultTokenURL is the production OAuth token endpoint.
	DefaultTokenURL = "https://hotels.cloudbeds.com/api/v1.2/oauth/token"

	requestTimeout = 30 * time.Second
	maxTries       = 4
)

// APIError is a non-2xx response from the booking source. The response
// body is intentionally not carried; it may echo request parameters.
type APIError struct {
	StatusCode int
	Operation  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: upstream returned status %d", e.Operation, e.StatusCode)
}

// Client calls the Cloudbeds API with bounded timeouts, exponential
// backoff on rate limits and server errors, and a circuit breaker that
// fails fast during a hard upstream outage.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	breaker    *gobreaker.CircuitBreaker
	log        *logrus.Logger
}

// NewClient creates a Cloudbeds API client. Empty URLs select the
// production endpoints.
func NewClient(baseURL, tokenURL string, log *logrus.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "cloudbeds",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Upstream circuit breaker state changed")
		},
	})

	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokenURL:   tokenURL,
		breaker:    breaker,
		log:        log,
	}
}

// GetProperties fetches the properties visible to the access token.
func (c *Client) GetProperties(ctx context.Context, accessToken string) ([]PropertyDTO, error) {
	var props []PropertyDTO
	err := c.getJSON(ctx, "get_properties", accessToken, "/oauth/metadata", nil, &props)
	if err != nil {
		return nil, err
	}
	return props, nil
}

// ListRooms fetches the rooms of a property.
func (c *Client) ListRooms(ctx context.Context, accessToken, propertyID string) ([]RoomDTO, error) {
	query := url.Values{"propertyID": {propertyID}}
	var rooms []RoomDTO
	err := c.getJSON(ctx, "list_rooms", accessToken, "/getRooms", query, &rooms)
	if err != nil {
		return nil, err
	}
	return rooms, nil
}

// ListBookings fetches reservations for a property whose stay overlaps
// the [from, to] window.
func (c *Client) ListBookings(ctx context.Context, accessToken, propertyID string, from, to time.Time) ([]BookingDTO, error) {
	query := url.Values{
		"propertyID":   {propertyID},
		"checkOutFrom": {from.Format("2006-01-02")},
		"checkInTo":    {to.Format("2006-01-02")},
	}
	var bookings []BookingDTO
	err := c.getJSON(ctx, "list_bookings", accessToken, "/getReservations", query, &bookings)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

// RefreshToken exchanges a refresh token for a new token pair.
func (c *Client) RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Body may describe the rejected grant; status is enough.
		return nil, &APIError{StatusCode: resp.StatusCode, Operation: "refresh_token"}
	}

	var payload struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if payload.AccessToken == "" || payload.RefreshToken == "" {
		return nil, fmt.Errorf("token response missing token material")
	}

	expiresIn := payload.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return &Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		ExpiresAt:    time.Now().UTC().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// envelope is the standard Cloudbeds response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// getJSON performs a GET through the circuit breaker with retries and
// decodes the envelope's data field into out.
func (c *Client) getJSON(ctx context.Context, operation, accessToken, path string, query url.Values, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	body, err := c.breaker.Execute(func() (any, error) {
		return backoff.Retry(ctx, func() ([]byte, error) {
			return c.doGet(ctx, operation, endpoint, accessToken)
		},
			backoff.WithBackOff(backoff.NewExponentialBackOff()),
			backoff.WithMaxTries(maxTries),
		)
	})
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body.([]byte), &env); err != nil {
		return fmt.Errorf("%s: decoding response: %w", operation, err)
	}
	if !env.Success {
		return fmt.Errorf("%s: upstream reported failure", operation)
	}
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%s: decoding data: %w", operation, err)
	}
	return nil
}

// doGet issues a single GET. Rate limits honor Retry-After; client
// errors are permanent, server errors retry.
func (c *Client) doGet(ctx context.Context, operation, endpoint, accessToken string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("%s: building request: %w", operation, err))
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", operation, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%s: reading response: %w", operation, err)
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		seconds := retryAfterSeconds(resp.Header.Get("Retry-After"))
		c.log.WithFields(logrus.Fields{
			"operation":   operation,
			"retry_after": seconds,
		}).Warn("Upstream rate limited, backing off")
		return nil, backoff.RetryAfter(seconds)

	case resp.StatusCode >= 500:
		return nil, &APIError{StatusCode: resp.StatusCode, Operation: operation}

	default:
		return nil, backoff.Permanent(&APIError{StatusCode: resp.StatusCode, Operation: operation})
	}
}

func retryAfterSeconds(header string) int {
	if header == "" {
		return 1
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds <= 0 {
		return 1
	}
	return seconds
}

// Package credential manages the OAuth token lifecycle for the booking
// source connection: lease validity tracking, proactive refresh ahead of
// expiry, and invalidation when the upstream rejects the refresh grant.
package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/rentalsync-bridge/backend/internal/cloudbeds"
	"github.com/rentalsync-bridge/backend/internal/storage"
)

// ExpiryMargin is how long before token expiry a refresh is triggered.
// A token presented to the upstream must outlive the request in flight.
const ExpiryMargin = 5 * time.Minute

// Reason classifies why a credential operation failed.
type Reason string

const (
	// ReasonUnconfigured means no credentials have been saved yet.
	ReasonUnconfigured Reason = "unconfigured"
	// ReasonInvalid means the stored refresh token was rejected and a
	// new authorization is required.
	ReasonInvalid Reason = "invalid"
	// ReasonRefreshFailed means the refresh could not complete for a
	// transient reason; the stored credentials are still presumed good.
	ReasonRefreshFailed Reason = "refresh_failed"
)

// Error is a credential lifecycle failure.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("credential %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// TokenRefresher exchanges a refresh token for a new token pair.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, clientID, clientSecret, refreshToken string) (*cloudbeds.Token, error)
}

// Manager hands out valid access tokens, refreshing lazily when the
// stored token is within ExpiryMargin of expiry. Concurrent callers
// needing a refresh are coalesced into a single upstream exchange.
type Manager struct {
	repo      *storage.CredentialRepository
	refresher TokenRefresher
	log       *logrus.Logger
	group     singleflight.Group
	now       func() time.Time
}

// NewManager creates a credential manager.
func NewManager(repo *storage.CredentialRepository, refresher TokenRefresher, log *logrus.Logger) *Manager {
	return &Manager{
		repo:      repo,
		refresher: refresher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Acquire returns an access token valid for at least ExpiryMargin,
// refreshing first if needed. It never returns a token that is already
// expired or about to expire.
func (m *Manager) Acquire(ctx context.Context) (string, error) {
	cred, err := m.repo.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	if cred == nil {
		return "", &Error{Reason: ReasonUnconfigured}
	}
	if cred.Invalid {
		return "", &Error{Reason: ReasonInvalid}
	}

	now := m.now()
	if cred.AccessToken != nil && cred.ExpiresAt != nil && !cred.ExpiresWithin(now, ExpiryMargin) {
		return *cred.AccessToken, nil
	}
	if cred.RefreshToken == nil {
		return "", &Error{Reason: ReasonUnconfigured, Err: fmt.Errorf("no refresh token stored")}
	}

	// Coalesce concurrent refreshes into one upstream exchange. The
	// fixed key is correct because there is a single credential row.
	result, err, _ := m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, cred.ClientID, cred.ClientSecret, *cred.RefreshToken)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Refresh forces a token refresh regardless of remaining validity.
// Used by the settings API to verify newly saved credentials.
func (m *Manager) Refresh(ctx context.Context) error {
	cred, err := m.repo.Get(ctx)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}
	if cred == nil || cred.RefreshToken == nil {
		return &Error{Reason: ReasonUnconfigured}
	}
	_, err, _ = m.group.Do("refresh", func() (any, error) {
		return m.refresh(ctx, cred.ClientID, cred.ClientSecret, *cred.RefreshToken)
	})
	return err
}

func (m *Manager) refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (any, error) {
	token, err := m.refresher.RefreshToken(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		if isGrantRejection(err) {
			// The refresh token itself was refused; further retries
			// cannot succeed until the operator re-authorizes.
			if markErr := m.repo.MarkInvalid(ctx); markErr != nil {
				m.log.WithError(markErr).Error("Failed to mark credentials invalid")
			}
			m.log.WithError(err).Error("Refresh token rejected, re-authorization required")
			return nil, &Error{Reason: ReasonInvalid, Err: err}
		}
		// Transient failure: keep the stored tokens untouched so the
		// next attempt can retry with the same grant.
		m.log.WithError(err).Warn("Token refresh failed, will retry on next acquire")
		return nil, &Error{Reason: ReasonRefreshFailed, Err: err}
	}

	if err := m.repo.UpdateTokens(ctx, token.AccessToken, token.RefreshToken, token.ExpiresAt); err != nil {
		return nil, fmt.Errorf("persisting refreshed tokens: %w", err)
	}

	m.log.WithField("expires_at", token.ExpiresAt.Format(time.RFC3339)).Info("Access token refreshed")
	return token.AccessToken, nil
}

// isGrantRejection reports whether the refresh failure means the grant
// itself is dead rather than the upstream being briefly unreachable.
func isGrantRejection(err error) bool {
	var apiErr *cloudbeds.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == 400 || apiErr.StatusCode == 401 || apiErr.StatusCode == 403
}

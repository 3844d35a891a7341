package models

import (
	"time"
)

// Credential states derived from the stored record.
const (
	CredentialStateUninitialized = "uninitialized"
	CredentialStateActive        = "active"
	CredentialStateExpired       = "expired"
	CredentialStateInvalid       = "invalid"
)

// Credential holds the OAuth material used to call the booking source.
// A single logical record exists per deployment; the store enforces the
// singleton with a fixed primary key.
type Credential struct {
	ID           int64      `json:"id"`
	ClientID     string     `json:"client_id"`
	ClientSecret string     `json:"-"`
	AccessToken  *string    `json:"-"`
	RefreshToken *string    `json:"-"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Invalid      bool       `json:"invalid"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// State reports the credential lifecycle state at the given instant.
func (c *Credential) State(now time.Time) string {
	if c == nil || c.ClientID == "" {
		return CredentialStateUninitialized
	}
	if c.Invalid {
		return CredentialStateInvalid
	}
	if c.AccessToken == nil || *c.AccessToken == "" {
		return CredentialStateUninitialized
	}
	if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
		return CredentialStateExpired
	}
	return CredentialStateActive
}

// ExpiresWithin reports whether the access token expires within d of now.
// A credential with no recorded expiry is treated as expiring.
func (c *Credential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !c.ExpiresAt.After(now.Add(d))
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// CredentialRepository provides data access for the deployment's single
// booking-source credential. The singleton is enforced by the table's
// fixed primary key, not by convention.
type CredentialRepository struct {
	BaseRepository
}

// NewCredentialRepository creates a new credential repository.
func NewCredentialRepository(db *DB) *CredentialRepository {
	return &CredentialRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Get retrieves the credential record, or nil when unconfigured.
func (r *CredentialRepository) Get(ctx context.Context) (*models.Credential, error) {
	c := &models.Credential{}
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, client_id, client_secret, access_token, refresh_token,
		       expires_at, invalid, created_at, updated_at
		FROM credentials WHERE id = 1
	`).Scan(
		&c.ID, &c.ClientID, &c.ClientSecret, &c.AccessToken, &c.RefreshToken,
		&c.ExpiresAt, &c.Invalid, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying credential: %w", err)
	}
	return c, nil
}

// Save stores the credential record, replacing any prior one.
func (r *CredentialRepository) Save(ctx context.Context, c *models.Credential) error {
	now := r.Now()
	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO credentials (
			id, client_id, client_secret, access_token, refresh_token,
			expires_at, invalid, created_at, updated_at
		) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			invalid = excluded.invalid,
			updated_at = excluded.updated_at
	`,
		c.ClientID, c.ClientSecret, c.AccessToken, c.RefreshToken,
		c.ExpiresAt, c.Invalid, now, now,
	)
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	c.ID = 1
	c.UpdatedAt = now
	return nil
}

// UpdateTokens atomically replaces the stored token material after a
// successful refresh and clears the invalid flag.
func (r *CredentialRepository) UpdateTokens(ctx context.Context, accessToken, refreshToken string, expiresAt time.Time) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE credentials SET
			access_token = ?, refresh_token = ?, expires_at = ?,
			invalid = 0, updated_at = ?
		WHERE id = 1
	`, accessToken, refreshToken, expiresAt, r.Now())
	if err != nil {
		return fmt.Errorf("updating tokens: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("credential not configured")
	}
	return nil
}

// MarkInvalid flags the credential as requiring re-authorization. The
// stored tokens are left untouched for operator inspection.
func (r *CredentialRepository) MarkInvalid(ctx context.Context) error {
	_, err := r.DB().ExecContext(ctx,
		"UPDATE credentials SET invalid = 1, updated_at = ? WHERE id = 1", r.Now())
	if err != nil {
		return fmt.Errorf("marking credential invalid: %w", err)
	}
	return nil
}

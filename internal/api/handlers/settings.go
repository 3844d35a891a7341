package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rentalsync-bridge/backend/internal/api/middleware"
	"github.com/rentalsync-bridge/backend/internal/credential"
	"github.com/rentalsync-bridge/backend/internal/events"
	"github.com/rentalsync-bridge/backend/internal/storage"
	"github.com/rentalsync-bridge/backend/internal/storage/models"
)

// CredentialsResponse describes the stored connection without exposing
// secret material.
type CredentialsResponse struct {
	State     string  `json:"state"`
	ClientID  string  `json:"client_id,omitempty"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// GetCredentials returns the connection state.
func GetCredentials(creds *storage.CredentialRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, err := creds.Get(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query credentials")
			return
		}

		resp := CredentialsResponse{State: models.CredentialStateUninitialized}
		if cred != nil {
			resp.State = cred.State(time.Now().UTC())
			resp.ClientID = cred.ClientID
			if cred.ExpiresAt != nil {
				s := cred.ExpiresAt.Format(time.RFC3339)
				resp.ExpiresAt = &s
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

// UpdateCredentialsRequest replaces the stored OAuth app credentials
// and refresh token.
type UpdateCredentialsRequest struct {
	ClientID     string `json:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" validate:"required"`
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// UpdateCredentials stores new credentials and verifies them with an
// immediate refresh, so the operator learns about a bad grant now
// rather than at the next sync.
func UpdateCredentials(creds *storage.CredentialRepository, manager *credential.Manager,
	broadcaster *events.Broadcaster, log *logrus.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateCredentialsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if err := validate.Struct(&req); err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadRequest, middleware.ErrValidation,
				"client_id, client_secret, and refresh_token are required", err.Error())
			return
		}

		ctx := r.Context()
		refreshToken := req.RefreshToken
		cred := &models.Credential{
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
			RefreshToken: &refreshToken,
		}
		if err := creds.Save(ctx, cred); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to save credentials")
			return
		}

		if err := manager.Refresh(ctx); err != nil {
			log.WithError(err).Warn("Saved credentials failed verification")
			broadcaster.CredentialsChanged(models.CredentialStateInvalid)
			middleware.WriteError(w, http.StatusBadGateway, middleware.ErrCredential,
				"Credentials saved but the booking source rejected them")
			return
		}

		broadcaster.CredentialsChanged(models.CredentialStateActive)
		GetCredentials(creds)(w, r)
	}
}

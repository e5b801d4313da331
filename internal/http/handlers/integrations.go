package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

type setKeyRequest struct {
	APIKey string `json:"apiKey"`
}

// IntegrationSetKey stores an API key for a provider. The key itself is never
// echoed back.
func (a *App) IntegrationSetKey(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	provider := chi.URLParam(r, "provider")
	adapter, ok := a.Registry.Get(provider)
	if !ok {
		a.error(w, http.StatusBadRequest, "bad_request", "unknown provider")
		return
	}
	var req setKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "apiKey required")
		return
	}
	// Keys are stored under the adapter's credential namespace, which is what
	// the key gates look up; the registry ID is just the route parameter.
	credential := adapter.Descriptor().Credential
	if credential == "" {
		credential = provider
	}
	if err := a.Credentials.SetToken(r.Context(), credential, strings.TrimSpace(req.APIKey)); err != nil {
		a.Logger.Error().Err(err).Str("provider", provider).Msg("handlers: store integration key")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store key")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "stored"})
}

// IntegrationStatus reports whether a provider currently has a usable
// credential.
func (a *App) IntegrationStatus(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	adapter, ok := a.Registry.Get(provider)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "unknown provider")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"provider":   provider,
		"configured": adapter.Configured(),
	})
}

// Package handler implements the HTTP endpoints. Handlers decode input,
// enforce tenant match, call one service, and encode the result; all domain
// decisions live in the services.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/apikey"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/session"
	"github.com/keyward/keyward/pkg/models"
)

// APIKeys serves the key lifecycle endpoints.
type APIKeys struct {
	keys     *apikey.Service
	auditLog *audit.Log
}

func NewAPIKeys(keys *apikey.Service, auditLog *audit.Log) *APIKeys {
	return &APIKeys{keys: keys, auditLog: auditLog}
}

type createKeyRequest struct {
	Name           string   `json:"name"`
	AllowedOrigins []string `json:"allowedOrigins,omitempty"`
	AllowedScopes  []string `json:"allowedScopes,omitempty"`
}

type keyMetadata struct {
	KeyID      uuid.UUID           `json:"keyId"`
	Name       string              `json:"name"`
	KeyPrefix  string              `json:"keyPrefix"`
	Status     models.APIKeyStatus `json:"status"`
	CreatedAt  time.Time           `json:"createdAt"`
	RotatedAt  *time.Time          `json:"rotatedAt,omitempty"`
	RevokedAt  *time.Time          `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time          `json:"lastUsedAt,omitempty"`
}

func toMetadata(k *models.APIKey) keyMetadata {
	return keyMetadata{
		KeyID:      k.ID,
		Name:       k.Name,
		KeyPrefix:  k.KeyPrefix,
		Status:     k.Status,
		CreatedAt:  k.CreatedAt,
		RotatedAt:  k.RotatedAt,
		RevokedAt:  k.RevokedAt,
		LastUsedAt: k.LastUsedAt,
	}
}

// Create handles POST /tenants/{tenantID}/api-keys. The raw secret is
// returned exactly once.
func (h *APIKeys) Create(w http.ResponseWriter, r *http.Request) {
	claims, tenantID, ok := h.tenantMatch(w, r)
	if !ok {
		return
	}

	var req createKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}

	res, err := h.keys.Create(r.Context(), tenantID, req.Name, claims.Subject.String(), apikey.Constraints{
		AllowedOrigins: req.AllowedOrigins,
		AllowedScopes:  req.AllowedScopes,
	})
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.Created(w, map[string]any{
		"apiKey": res.RawSecret,
		"keyId":  res.Key.ID,
		"name":   res.Key.Name,
	})
}

// List handles GET /tenants/{tenantID}/api-keys. Metadata only, never
// secret material.
func (h *APIKeys) List(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := h.tenantMatch(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.List(r.Context(), tenantID)
	if err != nil {
		response.FromError(w, err)
		return
	}

	out := make([]keyMetadata, 0, len(keys))
	for _, k := range keys {
		out = append(out, toMetadata(k))
	}
	response.JSON(w, map[string]any{"apiKeys": out})
}

// Rotate handles POST /tenants/{tenantID}/api-keys/{keyID}/rotate.
func (h *APIKeys) Rotate(w http.ResponseWriter, r *http.Request) {
	claims, tenantID, ok := h.tenantMatch(w, r)
	if !ok {
		return
	}
	keyID, ok := h.keyID(w, r)
	if !ok {
		return
	}

	res, err := h.keys.Rotate(r.Context(), tenantID, keyID, claims.Subject.String())
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, map[string]any{
		"apiKey":   res.RawSecret,
		"keyId":    res.Key.ID,
		"oldKeyId": res.OldKeyID,
	})
}

// Reveal handles POST /tenants/{tenantID}/api-keys/{keyID}/reveal. The
// returned value is encrypted with a key derived from the caller's own
// session token.
func (h *APIKeys) Reveal(w http.ResponseWriter, r *http.Request) {
	claims, tenantID, ok := h.tenantMatch(w, r)
	if !ok {
		return
	}
	keyID, ok := h.keyID(w, r)
	if !ok {
		return
	}
	token, _ := middleware.GetSessionToken(r)

	sealed, err := h.keys.Reveal(r.Context(), tenantID, keyID, claims.Subject.String(), token)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, map[string]any{"apiKey": sealed})
}

// Revoke handles DELETE /tenants/{tenantID}/api-keys/{keyID}. Terminal and
// immediately effective.
func (h *APIKeys) Revoke(w http.ResponseWriter, r *http.Request) {
	claims, tenantID, ok := h.tenantMatch(w, r)
	if !ok {
		return
	}
	keyID, ok := h.keyID(w, r)
	if !ok {
		return
	}

	if err := h.keys.Revoke(r.Context(), tenantID, keyID, claims.Subject.String()); err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, map[string]any{})
}

// tenantMatch authorizes the caller for the path tenant before anything is
// read. A mismatch is audited and denied without revealing whether the
// target resource exists.
func (h *APIKeys) tenantMatch(w http.ResponseWriter, r *http.Request) (*session.Claims, uuid.UUID, bool) {
	return tenantMatch(w, r, h.auditLog)
}

func (h *APIKeys) keyID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_key_id", "key id must be a UUID", nil)
		return uuid.Nil, false
	}
	return keyID, true
}

package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKeyStatus is the lifecycle state of an API key. Revoked is terminal;
// rotated keys keep verifying until the grace window ends.
type APIKeyStatus string

const (
	KeyActive  APIKeyStatus = "active"
	KeyRotated APIKeyStatus = "rotated"
	KeyRevoked APIKeyStatus = "revoked"
)

// APIKey is the stored record for a tenant's API key.
//
// SecretHash is a one-way digest used for O(1) lookup; EncryptedSecret is the
// server-key-encrypted raw secret, kept only so an explicit reveal can return
// it. The raw secret itself is never persisted. These two fields are part of
// the stored record but must never appear in an HTTP response: handlers build
// their own response types from the metadata fields.
type APIKey struct {
	ID              uuid.UUID    `json:"key_id"`
	TenantID        uuid.UUID    `json:"tenant_id"`
	Name            string       `json:"name"`
	SecretHash      string       `json:"secret_hash"`
	EncryptedSecret string       `json:"encrypted_secret"`
	KeyPrefix       string       `json:"key_prefix"`
	Status          APIKeyStatus `json:"status"`
	AllowedOrigins  []string     `json:"allowed_origins,omitempty"`
	AllowedScopes   []string     `json:"allowed_scopes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	RotatedAt       *time.Time   `json:"rotated_at,omitempty"`
	ReplacedBy      *uuid.UUID   `json:"replaced_by,omitempty"`
	RevokedAt       *time.Time   `json:"revoked_at,omitempty"`
	LastUsedAt      *time.Time   `json:"last_used_at,omitempty"`
}

// KeyIndexEntry is the value stored in the global secret-hash index. It maps
// a secret digest to the owning tenant and key without a per-tenant scan.
type KeyIndexEntry struct {
	TenantID uuid.UUID `json:"tenant_id"`
	KeyID    uuid.UUID `json:"key_id"`
}

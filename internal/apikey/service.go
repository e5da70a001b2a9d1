// Package apikey implements the API key lifecycle: create, list, verify,
// reveal, rotate, revoke. Verification is a direct read against the global
// secret-hash index, so it stays O(1) as tenants grow.
package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/crypto"
	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/tenant"
	"github.com/keyward/keyward/pkg/models"
)

const (
	maxNameLen = 100
	// maxScanRecords bounds the legacy fallback scan for records written
	// before the hash index existed. Beyond this the lookup fails closed.
	maxScanRecords = 512
)

// Constraints are the optional usage restrictions attached to a key.
type Constraints struct {
	AllowedOrigins []string
	AllowedScopes  []string
}

// Service manages API keys for all tenants. It holds the unscoped KV because
// it owns the global hash index; tenant records are always accessed through
// a tenant-scoped view.
type Service struct {
	kv          store.KV
	cipher      *crypto.Cipher
	auditLog    *audit.Log
	tenants     *tenant.Service
	environment string
	grace       time.Duration
	now         func() time.Time
}

// NewService creates the lifecycle manager.
func NewService(kv store.KV, cipher *crypto.Cipher, auditLog *audit.Log, tenants *tenant.Service, environment string, grace time.Duration) *Service {
	return &Service{
		kv:          kv,
		cipher:      cipher,
		auditLog:    auditLog,
		tenants:     tenants,
		environment: environment,
		grace:       grace,
		now:         time.Now,
	}
}

// SetClock overrides the clock for tests (grace-window checks).
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateResult carries the one-time raw secret alongside the stored record.
type CreateResult struct {
	RawSecret string
	Key       *models.APIKey
}

// Create generates a new key for the tenant. The raw secret is returned
// exactly once and never persisted in the clear.
func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, name string, actor string, c Constraints) (*CreateResult, error) {
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TenantActive {
		return nil, errs.NewAuthorization("tenant_suspended", "tenant is suspended")
	}

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLen {
		return nil, errs.NewValidation("invalid_name", "name is required and must be at most 100 characters")
	}

	rawSecret, err := crypto.GenerateSecret(s.environment)
	if err != nil {
		slog.Error("secret generation failed", "error", err)
		return nil, errs.NewEncryption("secret_generation_failed", "failed to create API key")
	}

	encrypted, err := s.cipher.Encrypt([]byte(rawSecret))
	if err != nil {
		return nil, err
	}

	key := &models.APIKey{
		ID:              uuid.New(),
		TenantID:        tenantID,
		Name:            name,
		SecretHash:      crypto.SecretHash(rawSecret),
		EncryptedSecret: encrypted,
		KeyPrefix:       crypto.DisplayPrefix(rawSecret),
		Status:          models.KeyActive,
		AllowedOrigins:  c.AllowedOrigins,
		AllowedScopes:   c.AllowedScopes,
		CreatedAt:       s.now().UTC(),
	}

	if err := s.putKey(ctx, key); err != nil {
		return nil, err
	}

	// The index claim is conditional: a digest collision across tenants is
	// impossible by construction, so a conflict here means something is wrong.
	entry, _ := json.Marshal(models.KeyIndexEntry{TenantID: tenantID, KeyID: key.ID})
	if err := s.kv.PutIfAbsent(ctx, store.KeyHashIndexKey(key.SecretHash), entry, 0); err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to create API key")
	}

	s.auditLog.Record(ctx, audit.Event{
		TenantID: tenantID,
		Actor:    actor,
		Action:   audit.ActionKeyCreated,
		Target:   key.ID.String(),
		Detail:   map[string]string{"name": name},
	})

	return &CreateResult{RawSecret: rawSecret, Key: key}, nil
}

// List returns the tenant's key records. Callers building responses must use
// only the metadata fields; secret material stays in the record.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}

	scoped := store.ForTenant(s.kv, tenantID)
	entries, err := scoped.List(ctx, "apikey:", 0)
	if err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to list API keys")
	}

	keys := make([]*models.APIKey, 0, len(entries))
	for _, e := range entries {
		var k models.APIKey
		if err := json.Unmarshal(e.Value, &k); err != nil {
			continue
		}
		s.mergeLastUsed(ctx, &k)
		keys = append(keys, &k)
	}
	return keys, nil
}

// VerifyResult identifies the tenant and key behind a presented secret.
type VerifyResult struct {
	TenantID    uuid.UUID
	KeyID       uuid.UUID
	Constraints Constraints
}

// Verify resolves a raw secret to its key via the hash index: one digest,
// one index read, one record read. Revoked keys fail immediately; rotated
// keys pass only inside the grace window. The caller learns nothing beyond
// valid/invalid.
func (s *Service) Verify(ctx context.Context, rawSecret string) (*VerifyResult, error) {
	invalid := errs.NewAuthentication("invalid_api_key", "invalid API key")
	if rawSecret == "" {
		return nil, invalid
	}

	hash := crypto.SecretHash(rawSecret)

	key, err := s.lookupByHash(ctx, hash)
	if err != nil {
		return nil, invalid
	}

	if !s.verifiable(key) {
		return nil, invalid
	}

	t, err := s.tenants.Get(ctx, key.TenantID)
	if err != nil {
		return nil, invalid
	}
	if t.Status != models.TenantActive {
		return nil, errs.NewAuthorization("tenant_suspended", "tenant is suspended")
	}

	s.touchLastUsed(key)

	return &VerifyResult{
		TenantID: key.TenantID,
		KeyID:    key.ID,
		Constraints: Constraints{
			AllowedOrigins: key.AllowedOrigins,
			AllowedScopes:  key.AllowedScopes,
		},
	}, nil
}

// Reveal decrypts the stored secret with the server key and re-encrypts it
// with a key derived from the caller's session token. The second layer binds
// exposure to the live session and is never skipped. Tenant/session checks
// happen in the handler before this is called; the reveal is audited
// unconditionally.
func (s *Service) Reveal(ctx context.Context, tenantID, keyID uuid.UUID, actor, sessionToken string) (string, error) {
	key, err := s.loadKey(ctx, tenantID, keyID)
	if err != nil {
		return "", err
	}

	plaintext, err := s.cipher.Decrypt(key.EncryptedSecret)
	if err != nil {
		slog.Error("reveal decryption failed", "tenant_id", tenantID, "key_id", keyID)
		return "", err
	}

	sessionCipher, err := crypto.NewSessionCipher(sessionToken)
	if err != nil {
		return "", err
	}
	sealed, err := sessionCipher.Encrypt(plaintext)
	if err != nil {
		return "", err
	}

	s.auditLog.Record(ctx, audit.Event{
		TenantID: tenantID,
		Actor:    actor,
		Action:   audit.ActionKeyRevealed,
		Target:   keyID.String(),
	})

	return sealed, nil
}

// RotateResult carries the replacement key and its one-time raw secret.
type RotateResult struct {
	RawSecret string
	Key       *models.APIKey
	OldKeyID  uuid.UUID
}

// Rotate creates a replacement key and flips the old record to rotated. The
// old key keeps satisfying Verify until the grace window ends; that window
// is a business decision, not a bug to fix.
func (s *Service) Rotate(ctx context.Context, tenantID, keyID uuid.UUID, actor string) (*RotateResult, error) {
	old, err := s.loadKey(ctx, tenantID, keyID)
	if err != nil {
		return nil, err
	}
	if old.Status != models.KeyActive {
		return nil, errs.NewConflict("not_active", "only an active key can be rotated")
	}

	created, err := s.Create(ctx, tenantID, old.Name, actor, Constraints{
		AllowedOrigins: old.AllowedOrigins,
		AllowedScopes:  old.AllowedScopes,
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	old.Status = models.KeyRotated
	old.RotatedAt = &now
	old.ReplacedBy = &created.Key.ID
	if err := s.putKey(ctx, old); err != nil {
		return nil, err
	}

	s.auditLog.Record(ctx, audit.Event{
		TenantID: tenantID,
		Actor:    actor,
		Action:   audit.ActionKeyRotated,
		Target:   keyID.String(),
		Detail:   map[string]string{"replaced_by": created.Key.ID.String()},
	})

	return &RotateResult{RawSecret: created.RawSecret, Key: created.Key, OldKeyID: keyID}, nil
}

// Revoke terminates a key with no grace period: the index entry is removed,
// so the very next Verify fails.
func (s *Service) Revoke(ctx context.Context, tenantID, keyID uuid.UUID, actor string) error {
	key, err := s.loadKey(ctx, tenantID, keyID)
	if err != nil {
		return err
	}
	if key.Status == models.KeyRevoked {
		return errs.NewConflict("already_revoked", "API key is already revoked")
	}

	now := s.now().UTC()
	key.Status = models.KeyRevoked
	key.RevokedAt = &now
	if err := s.putKey(ctx, key); err != nil {
		return err
	}

	if err := s.kv.Delete(ctx, store.KeyHashIndexKey(key.SecretHash)); err != nil {
		// The record's status already blocks Verify; the dangling index entry
		// is only a wasted read.
		slog.Warn("failed to remove hash index entry", "key_id", keyID, "error", err)
	}

	s.auditLog.Record(ctx, audit.Event{
		TenantID: tenantID,
		Actor:    actor,
		Action:   audit.ActionKeyRevoked,
		Target:   keyID.String(),
	})

	return nil
}

// verifiable applies the lazy status check: active always, rotated only
// inside the grace window.
func (s *Service) verifiable(key *models.APIKey) bool {
	switch key.Status {
	case models.KeyActive:
		return true
	case models.KeyRotated:
		return key.RotatedAt != nil && s.now().Sub(*key.RotatedAt) < s.grace
	default:
		return false
	}
}

func (s *Service) lookupByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	data, err := s.kv.Get(ctx, store.KeyHashIndexKey(hash))
	if err == nil {
		var entry models.KeyIndexEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			return nil, err
		}
		return s.loadKeyRaw(ctx, entry.TenantID, entry.KeyID)
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return s.scanByHash(ctx, hash)
}

// scanByHash is the bounded fallback for pre-index records. It touches at
// most maxScanRecords entries and honors the request deadline; when the
// budget runs out it fails closed rather than hang.
func (s *Service) scanByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	entries, err := s.kv.List(ctx, "t:", maxScanRecords)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !strings.Contains(e.Key, ":apikey:") {
			continue
		}
		var k models.APIKey
		if err := json.Unmarshal(e.Value, &k); err != nil {
			continue
		}
		if k.SecretHash == hash {
			// Backfill the index so the next lookup is a direct read.
			entry, _ := json.Marshal(models.KeyIndexEntry{TenantID: k.TenantID, KeyID: k.ID})
			_ = s.kv.PutIfAbsent(ctx, store.KeyHashIndexKey(hash), entry, 0)
			return &k, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Service) loadKey(ctx context.Context, tenantID, keyID uuid.UUID) (*models.APIKey, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	key, err := s.loadKeyRaw(ctx, tenantID, keyID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewNotFound("key_not_found", "API key does not exist")
	}
	if err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load API key")
	}
	return key, nil
}

func (s *Service) loadKeyRaw(ctx context.Context, tenantID, keyID uuid.UUID) (*models.APIKey, error) {
	scoped := store.ForTenant(s.kv, tenantID)
	data, err := scoped.Get(ctx, store.APIKeyKey(keyID))
	if err != nil {
		return nil, err
	}
	var k models.APIKey
	if err := json.Unmarshal(data, &k); err != nil {
		return nil, err
	}
	return &k, nil
}

func (s *Service) putKey(ctx context.Context, key *models.APIKey) error {
	data, err := json.Marshal(key)
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to store API key")
	}
	scoped := store.ForTenant(s.kv, key.TenantID)
	if err := scoped.Put(ctx, store.APIKeyKey(key.ID), data, 0); err != nil {
		return errs.NewUpstream("storage_error", "failed to store API key")
	}
	return nil
}

// touchLastUsed records usage asynchronously under a companion key, so the
// write can never race a status change on the record itself. LastUsedAt is
// informational; a lost update here is tolerated.
func (s *Service) touchLastUsed(key *models.APIKey) {
	now := s.now().UTC()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		scoped := store.ForTenant(s.kv, key.TenantID)
		_ = scoped.Put(ctx, store.APIKeyLastUsedKey(key.ID), []byte(now.Format(time.RFC3339Nano)), 0)
	}()
}

// mergeLastUsed fills LastUsedAt from the companion key, best-effort.
func (s *Service) mergeLastUsed(ctx context.Context, key *models.APIKey) {
	scoped := store.ForTenant(s.kv, key.TenantID)
	data, err := scoped.Get(ctx, store.APIKeyLastUsedKey(key.ID))
	if err != nil {
		return
	}
	if t, err := time.Parse(time.RFC3339Nano, string(data)); err == nil {
		key.LastUsedAt = &t
	}
}

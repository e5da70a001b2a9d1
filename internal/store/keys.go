package store

import (
	"fmt"

	"github.com/google/uuid"
)

// Key layout. Tenant-owned data lives under "t:{tenantID}:"; everything else
// (tenant records, the secret-hash index, name reservations, data requests)
// is global by design and owned by exactly one service.

// TenantPrefix is the namespace all of a tenant's data lives under.
func TenantPrefix(tenantID uuid.UUID) string {
	return fmt.Sprintf("t:%s:", tenantID)
}

// TenantKey addresses the tenant record itself.
func TenantKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("tenant:%s", tenantID)
}

// APIKeyKey addresses an API key record within a tenant namespace.
func APIKeyKey(keyID uuid.UUID) string {
	return fmt.Sprintf("apikey:%s", keyID)
}

// APIKeyLastUsedKey addresses a key's last-used timestamp. It lives beside
// the record so the async usage write can never clobber a status change.
func APIKeyLastUsedKey(keyID uuid.UUID) string {
	return fmt.Sprintf("apikeylu:%s", keyID)
}

// KeyHashIndexKey addresses the global secret-hash -> (tenant, key) index
// entry. The digest is globally unique, so lookup never needs the tenant.
func KeyHashIndexKey(secretHash string) string {
	return fmt.Sprintf("kh:%s", secretHash)
}

// NameKey addresses a name reservation within a scope. The name must already
// be normalized; uniqueness is enforced by the key itself.
func NameKey(scope, normalized string) string {
	return fmt.Sprintf("name:%s:%s", scope, normalized)
}

// NameOwnerKey addresses the owner -> current-name pointer within a scope.
func NameOwnerKey(scope string, ownerID uuid.UUID) string {
	return fmt.Sprintf("nameowner:%s:%s", scope, ownerID)
}

// NameHistoryKey addresses an owner's change history within a scope.
func NameHistoryKey(scope string, ownerID uuid.UUID) string {
	return fmt.Sprintf("namehist:%s:%s", scope, ownerID)
}

// AuditKey addresses one audit event within a tenant namespace. unixNano
// is zero-padded so lexicographic key order is chronological order.
func AuditKey(unixNano int64, eventID uuid.UUID) string {
	return fmt.Sprintf("audit:%020d:%s", unixNano, eventID)
}

// DataRequestKey addresses a sensitive-data access request.
func DataRequestKey(requestID uuid.UUID) string {
	return fmt.Sprintf("dr:%s", requestID)
}

package cache

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuotaHourKey is the hourly counter bucket for a tenant. Buckets carry the
// time window in the key, so they roll over by expiry with no cleanup.
func QuotaHourKey(tenantID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("quota:%s:h:%s", tenantID, at.UTC().Format("2006010215"))
}

// QuotaDayKey is the daily counter bucket for a tenant.
func QuotaDayKey(tenantID uuid.UUID, at time.Time) string {
	return fmt.Sprintf("quota:%s:d:%s", tenantID, at.UTC().Format("20060102"))
}

// SessionKey stores the last issued session token for a device, for the
// best-effort restoration flow.
func SessionKey(deviceID string) string {
	return fmt.Sprintf("session:%s", deviceID)
}

// Package audit appends structured security events to the store. Recording
// never fails the caller's request: a failed write is logged and dropped.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/store"
)

// Actions recorded by the service.
const (
	ActionKeyCreated        = "key.created"
	ActionKeyRotated        = "key.rotated"
	ActionKeyRevoked        = "key.revoked"
	ActionKeyRevealed       = "key.revealed"
	ActionNameChanged       = "name.changed"
	ActionCrossTenantDenied = "access.cross_tenant_denied"
	ActionRequestCreated    = "data_request.created"
	ActionRequestApproved   = "data_request.approved"
	ActionRequestRejected   = "data_request.rejected"
	ActionTenantConfig      = "tenant.config_updated"
)

// Event is one security-relevant occurrence, stored under the tenant it
// concerns so the tenant's trail is a single prefix scan.
type Event struct {
	ID        uuid.UUID         `json:"id"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	Actor     string            `json:"actor"`
	Action    string            `json:"action"`
	Target    string            `json:"target,omitempty"`
	Detail    map[string]string `json:"detail,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Log appends events to the KV store.
type Log struct {
	kv  store.KV
	now func() time.Time
}

// NewLog creates an audit log over the store.
func NewLog(kv store.KV) *Log {
	return &Log{kv: kv, now: time.Now}
}

// SetClock overrides the clock for tests.
func (l *Log) SetClock(now func() time.Time) { l.now = now }

// Record appends an event. It fills ID and CreatedAt and never returns an
// error: audit must not break the operation it describes.
func (l *Log) Record(ctx context.Context, e Event) {
	e.ID = uuid.New()
	e.CreatedAt = l.now().UTC()

	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("audit marshal failed", "action", e.Action, "error", err)
		return
	}

	key := store.AuditKey(e.CreatedAt.UnixNano(), e.ID)
	scoped := store.ForTenant(l.kv, e.TenantID)
	if err := scoped.Put(ctx, key, data, 0); err != nil {
		slog.Error("audit write failed", "action", e.Action, "tenant_id", e.TenantID, "error", err)
	}
}

// List returns up to limit events for the tenant, newest first.
func (l *Log) List(ctx context.Context, tenantID uuid.UUID, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	scoped := store.ForTenant(l.kv, tenantID)
	entries, err := scoped.List(ctx, "audit:", 0)
	if err != nil {
		return nil, err
	}

	// Keys are zero-padded timestamps, so entries arrive oldest first.
	events := make([]Event, 0, limit)
	for i := len(entries) - 1; i >= 0 && len(events) < limit; i-- {
		var e Event
		if err := json.Unmarshal(entries[i].Value, &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

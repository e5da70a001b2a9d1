// Package store provides the namespaced key-value abstraction every other
// component persists through. Values are opaque bytes; expiry is evaluated
// lazily at read time, never by a background sweep.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("key not found")
var ErrKeyExists = errors.New("key already exists")

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   string
	Value []byte
}

// KV is the data access interface. All persistence goes through here.
// Implementations must be safe for concurrent use. A zero ttl means the
// entry never expires.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// PutIfAbsent is a conditional write: it fails with ErrKeyExists when the
	// key is already present. This is the primitive that makes first-writer-wins
	// claims (the secret-hash index, name reservations) safe under concurrency.
	PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// List returns up to limit entries whose key starts with prefix, in key
	// order. limit <= 0 applies the implementation default.
	List(ctx context.Context, prefix string, limit int) ([]Entry, error)
	Ping(ctx context.Context) error
}

// TenantKV is a view of a KV that prefixes every key with the tenant's
// namespace. Services hold a TenantKV for tenant-owned data, so a read
// through the wrong tenant's view cannot land on another tenant's keys.
type TenantKV struct {
	kv     KV
	prefix string
}

// ForTenant returns the tenant-scoped view of kv.
func ForTenant(kv KV, tenantID uuid.UUID) *TenantKV {
	return &TenantKV{kv: kv, prefix: TenantPrefix(tenantID)}
}

func (t *TenantKV) Get(ctx context.Context, key string) ([]byte, error) {
	return t.kv.Get(ctx, t.prefix+key)
}

func (t *TenantKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.kv.Put(ctx, t.prefix+key, value, ttl)
}

func (t *TenantKV) PutIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return t.kv.PutIfAbsent(ctx, t.prefix+key, value, ttl)
}

func (t *TenantKV) Delete(ctx context.Context, key string) error {
	return t.kv.Delete(ctx, t.prefix+key)
}

// List strips the tenant prefix from returned keys, so callers never see
// (or accidentally re-use) fully qualified cross-tenant keys.
func (t *TenantKV) List(ctx context.Context, prefix string, limit int) ([]Entry, error) {
	entries, err := t.kv.List(ctx, t.prefix+prefix, limit)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Key = entries[i].Key[len(t.prefix):]
	}
	return entries, nil
}

func (t *TenantKV) Ping(ctx context.Context) error {
	return t.kv.Ping(ctx)
}

// Package tenant manages tenant records and the read-through config cache.
// The cache is invalidated immediately on every write, so a config update is
// visible to the next request.
package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/pkg/models"
)

const cacheTTL = 5 * time.Minute

// Service owns tenant records.
type Service struct {
	kv    store.KV
	cache *ttlcache.Cache[string, *models.Tenant]
	now   func() time.Time
}

// NewService creates the tenant service and starts its cache janitor. The
// cache lives for the process lifetime.
func NewService(kv store.KV) *Service {
	c := ttlcache.New(
		ttlcache.WithTTL[string, *models.Tenant](cacheTTL),
		ttlcache.WithDisableTouchOnHit[string, *models.Tenant](),
	)
	go c.Start()

	return &Service{kv: kv, cache: c, now: time.Now}
}

// SetClock overrides the clock for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Create provisions a new tenant on the given plan.
func (s *Service) Create(ctx context.Context, plan models.Plan) (*models.Tenant, error) {
	if !models.ValidPlan(plan) {
		return nil, errs.NewValidation("invalid_plan", "plan must be one of free, pro, enterprise")
	}

	now := s.now().UTC()
	t := &models.Tenant{
		ID:        uuid.New(),
		Plan:      plan,
		Status:    models.TenantActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Get returns the tenant, serving repeated reads from the cache.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if item := s.cache.Get(id.String()); item != nil {
		return item.Value(), nil
	}

	data, err := s.kv.Get(ctx, store.TenantKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, errs.NewNotFound("tenant_not_found", "tenant does not exist")
	}
	if err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load tenant")
	}

	var t models.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, errs.NewUpstream("storage_error", "failed to load tenant")
	}
	s.cache.Set(id.String(), &t, ttlcache.DefaultTTL)
	return &t, nil
}

// UpdateConfig replaces the tenant's config overrides.
func (s *Service) UpdateConfig(ctx context.Context, id uuid.UUID, cfg models.TenantConfig) (*models.Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *t
	updated.Config = cfg
	updated.UpdatedAt = s.now().UTC()
	if err := s.put(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetStatus flips a tenant between active and suspended. Tenants are never
// deleted, so the audit trail under them stays intact.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status models.TenantStatus) (*models.Tenant, error) {
	if status != models.TenantActive && status != models.TenantSuspended {
		return nil, errs.NewValidation("invalid_status", "status must be active or suspended")
	}
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *t
	updated.Status = status
	updated.UpdatedAt = s.now().UTC()
	if err := s.put(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) put(ctx context.Context, t *models.Tenant) error {
	data, err := json.Marshal(t)
	if err != nil {
		return errs.NewUpstream("storage_error", "failed to store tenant")
	}
	if err := s.kv.Put(ctx, store.TenantKey(t.ID), data, 0); err != nil {
		return errs.NewUpstream("storage_error", "failed to store tenant")
	}
	// Invalidate before anyone can read the stale entry.
	s.cache.Delete(t.ID.String())
	return nil
}

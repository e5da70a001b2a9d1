package tenant_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/tenant"
	"github.com/keyward/keyward/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	svc := tenant.NewService(store.NewMemoryKV())
	ctx := context.Background()

	created, err := svc.Create(ctx, models.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, models.TenantActive, created.Status)
	assert.NotEqual(t, uuid.Nil, created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, models.PlanFree, got.Plan)
}

func TestCreate_InvalidPlan(t *testing.T) {
	svc := tenant.NewService(store.NewMemoryKV())

	_, err := svc.Create(context.Background(), models.Plan("platinum"))
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindValidation, e.Kind)
}

func TestGet_Unknown(t *testing.T) {
	svc := tenant.NewService(store.NewMemoryKV())

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindNotFound, e.Kind)
}

func TestUpdateConfig_InvalidatesCache(t *testing.T) {
	svc := tenant.NewService(store.NewMemoryKV())
	ctx := context.Background()

	created, err := svc.Create(ctx, models.PlanPro)
	require.NoError(t, err)

	// Warm the cache.
	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.UpdateConfig(ctx, created.ID, models.TenantConfig{RequestsPerHour: 42})
	require.NoError(t, err)

	// The very next read must see the new config, not the cached record.
	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.Config.RequestsPerHour)
}

func TestSetStatus(t *testing.T) {
	svc := tenant.NewService(store.NewMemoryKV())
	ctx := context.Background()

	created, err := svc.Create(ctx, models.PlanFree)
	require.NoError(t, err)

	suspended, err := svc.SetStatus(ctx, created.ID, models.TenantSuspended)
	require.NoError(t, err)
	assert.Equal(t, models.TenantSuspended, suspended.Status)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TenantSuspended, got.Status)

	_, err = svc.SetStatus(ctx, created.ID, models.TenantStatus("deleted"))
	require.Error(t, err)
}

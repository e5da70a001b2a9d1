package names_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/names"
	"github.com/keyward/keyward/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPolicy = names.ChangePolicy{Limit: 2, Window: 30 * 24 * time.Hour}

func newService() *names.Service {
	return names.NewService(store.NewMemoryKV(), testPolicy)
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"Swift Eagle", "Swift Eagle", false},
		{"  Swift   Eagle  ", "Swift Eagle", false},
		{"a-b_c 9", "a-b_c 9", false},
		{"ab", "", true},
		{"", "", true},
		{"this name is way too long to be allowed at all", "", true},
		{"bad!chars", "", true},
		{"-leading", "", true},
	}
	for _, tt := range tests {
		got, err := names.Sanitize(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		require.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestReserveReleaseReserve(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	first, second := uuid.New(), uuid.New()

	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, first))

	// Case-insensitive collision.
	err := svc.Reserve(ctx, "swift eagle", names.ScopeGlobal, second)
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindConflict, e.Kind)

	// Re-reserving your own name is a no-op.
	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, first))

	require.NoError(t, svc.Release(ctx, "Swift Eagle", names.ScopeGlobal, first))
	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, second))
}

func TestReserve_ConcurrentSingleWinner(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, uuid.New())
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestRelease_Idempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	require.NoError(t, svc.Release(ctx, "never held", names.ScopeGlobal, owner))

	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, owner))

	// Someone else releasing your name does nothing.
	require.NoError(t, svc.Release(ctx, "Swift Eagle", names.ScopeGlobal, other))
	free, err := svc.IsUnique(ctx, "Swift Eagle", names.ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, free)
}

func TestIsUnique(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	free, err := svc.IsUnique(ctx, "Swift Eagle", names.ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, free)

	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, uuid.New()))

	free, err = svc.IsUnique(ctx, "SWIFT EAGLE", names.ScopeGlobal)
	require.NoError(t, err)
	assert.False(t, free)
}

func TestScopesAreIndependent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	tenantScope := uuid.New().String()

	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", names.ScopeGlobal, uuid.New()))
	require.NoError(t, svc.Reserve(ctx, "Swift Eagle", tenantScope, uuid.New()))
}

func TestChange_RollingLimit(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := uuid.New()

	now := time.Now()
	svc.SetClock(func() time.Time { return now })

	_, err := svc.Change(ctx, names.ScopeGlobal, owner, "First Name")
	require.NoError(t, err)
	_, err = svc.Change(ctx, names.ScopeGlobal, owner, "Second Name")
	require.NoError(t, err)

	// Limit of two reached; the third change inside the window is rejected
	// with the date the window reopens.
	_, err = svc.Change(ctx, names.ScopeGlobal, owner, "Third Name")
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindRateLimit, e.Kind)
	detail, ok := e.Detail.(map[string]string)
	require.True(t, ok)
	assert.NotEmpty(t, detail["nextChangeDate"])

	// Once the oldest change ages out, changing works again.
	now = now.Add(testPolicy.Window + time.Minute)
	got, err := svc.Change(ctx, names.ScopeGlobal, owner, "Third Name")
	require.NoError(t, err)
	assert.Equal(t, "Third Name", got)
}

func TestChange_ReleasesOldName(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner, other := uuid.New(), uuid.New()

	_, err := svc.Change(ctx, names.ScopeGlobal, owner, "Old Name")
	require.NoError(t, err)
	_, err = svc.Change(ctx, names.ScopeGlobal, owner, "New Name")
	require.NoError(t, err)

	// The old name is free again.
	require.NoError(t, svc.Reserve(ctx, "Old Name", names.ScopeGlobal, other))

	current, held, err := svc.Current(ctx, names.ScopeGlobal, owner)
	require.NoError(t, err)
	require.True(t, held)
	assert.Equal(t, "New Name", current)
}

func TestChange_SameNameIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.Change(ctx, names.ScopeGlobal, owner, "Swift Eagle")
	require.NoError(t, err)

	// Re-setting the held name does not consume a change.
	got, err := svc.Change(ctx, names.ScopeGlobal, owner, "SWIFT EAGLE")
	require.NoError(t, err)
	assert.Equal(t, "Swift Eagle", got)

	_, err = svc.Change(ctx, names.ScopeGlobal, owner, "Another Name")
	require.NoError(t, err)
}

func TestChange_TakenName(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Change(ctx, names.ScopeGlobal, uuid.New(), "Swift Eagle")
	require.NoError(t, err)

	_, err = svc.Change(ctx, names.ScopeGlobal, uuid.New(), "Swift Eagle")
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.KindConflict, e.Kind)
}

func TestReleaseAllFor(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	owner := uuid.New()

	_, err := svc.Change(ctx, names.ScopeGlobal, owner, "Swift Eagle")
	require.NoError(t, err)

	require.NoError(t, svc.ReleaseAllFor(ctx, names.ScopeGlobal, owner))

	free, err := svc.IsUnique(ctx, "Swift Eagle", names.ScopeGlobal)
	require.NoError(t, err)
	assert.True(t, free)

	_, held, err := svc.Current(ctx, names.ScopeGlobal, owner)
	require.NoError(t, err)
	assert.False(t, held)

	// History is gone too, so the change budget is fresh.
	ok, _, err := svc.CanChange(ctx, names.ScopeGlobal, owner)
	require.NoError(t, err)
	assert.True(t, ok)
}

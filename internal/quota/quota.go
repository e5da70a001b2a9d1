// Package quota throttles credentialed requests per tenant per time window.
// Counters live in the cache keyed by tenant and bucket, so they expire on
// their own. Throttling is best-effort: the increment is atomic, the limit
// check is not, and a cache outage fails open rather than blocking traffic.
package quota

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/pkg/models"
)

// Plan defaults, overridable per tenant via config.
var planLimits = map[models.Plan]Limits{
	models.PlanFree:       {RequestsPerHour: 100, RequestsPerDay: 1000},
	models.PlanPro:        {RequestsPerHour: 1000, RequestsPerDay: 20000},
	models.PlanEnterprise: {RequestsPerHour: 10000, RequestsPerDay: 200000},
}

// Limits is the effective request budget for a tenant.
type Limits struct {
	RequestsPerHour int `json:"requests_per_hour"`
	RequestsPerDay  int `json:"requests_per_day"`
}

// LimitsFor resolves a tenant's budget: plan defaults with any per-tenant
// config overrides applied.
func LimitsFor(t *models.Tenant) Limits {
	l := planLimits[t.Plan]
	if t.Config.RequestsPerHour > 0 {
		l.RequestsPerHour = t.Config.RequestsPerHour
	}
	if t.Config.RequestsPerDay > 0 {
		l.RequestsPerDay = t.Config.RequestsPerDay
	}
	return l
}

// Usage is the current consumption against both windows.
type Usage struct {
	Limits
	UsedHour int64 `json:"used_hour"`
	UsedDay  int64 `json:"used_day"`
}

// Tracker counts key-bearing requests against per-tenant budgets.
type Tracker struct {
	cache cache.Cache
	now   func() time.Time
}

func NewTracker(c cache.Cache) *Tracker {
	return &Tracker{cache: c, now: time.Now}
}

// SetClock overrides the clock for tests.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

// CheckAndIncrement charges one request against both the hourly and daily
// bucket and rejects once either limit is exceeded. Counter failures are
// logged and allowed through.
func (t *Tracker) CheckAndIncrement(ctx context.Context, tenant *models.Tenant) error {
	limits := LimitsFor(tenant)
	now := t.now()

	hour, err := t.cache.IncrWithExpiry(ctx, cache.QuotaHourKey(tenant.ID, now), 2*time.Hour)
	if err != nil {
		slog.Warn("quota counter unavailable, allowing request", "tenant_id", tenant.ID, "error", err)
		return nil
	}
	if hour > int64(limits.RequestsPerHour) {
		return errs.NewRateLimit("quota_exceeded", "hourly request quota exceeded",
			map[string]string{"window": "hour", "retryAt": nextHour(now).Format(time.RFC3339)})
	}

	day, err := t.cache.IncrWithExpiry(ctx, cache.QuotaDayKey(tenant.ID, now), 48*time.Hour)
	if err != nil {
		slog.Warn("quota counter unavailable, allowing request", "tenant_id", tenant.ID, "error", err)
		return nil
	}
	if day > int64(limits.RequestsPerDay) {
		return errs.NewRateLimit("quota_exceeded", "daily request quota exceeded",
			map[string]string{"window": "day", "retryAt": nextDay(now).Format(time.RFC3339)})
	}
	return nil
}

// Usage reports consumption without charging a request.
func (t *Tracker) Usage(ctx context.Context, tenant *models.Tenant) (*Usage, error) {
	now := t.now()
	hour, err := t.read(ctx, cache.QuotaHourKey(tenant.ID, now))
	if err != nil {
		return nil, err
	}
	day, err := t.read(ctx, cache.QuotaDayKey(tenant.ID, now))
	if err != nil {
		return nil, err
	}
	return &Usage{Limits: LimitsFor(tenant), UsedHour: hour, UsedDay: day}, nil
}

func (t *Tracker) read(ctx context.Context, key string) (int64, error) {
	data, ok, err := t.cache.Get(ctx, key)
	if err != nil {
		return 0, errs.NewUpstream("cache_error", "failed to read quota counter")
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, errs.NewUpstream("cache_error", "failed to read quota counter")
	}
	return n, nil
}

func nextHour(now time.Time) time.Time {
	return now.UTC().Truncate(time.Hour).Add(time.Hour)
}

func nextDay(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

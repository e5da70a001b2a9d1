package models

import (
	"time"

	"github.com/google/uuid"
)

// Plan determines a tenant's default quota limits.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// TenantStatus is the lifecycle state of a tenant. Tenants are never hard-deleted;
// suspension is a status flip so the audit trail survives.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
)

// TenantConfig holds per-tenant overrides. Zero values mean "use plan defaults".
type TenantConfig struct {
	RequestsPerHour int      `json:"requests_per_hour,omitempty"`
	RequestsPerDay  int      `json:"requests_per_day,omitempty"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`
}

// Tenant is an isolated customer account. Every key, name, and quota counter
// is scoped to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID    `json:"id"`
	Plan      Plan         `json:"plan"`
	Status    TenantStatus `json:"status"`
	Config    TenantConfig `json:"config"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// ValidPlan reports whether p is a known plan.
func ValidPlan(p Plan) bool {
	switch p {
	case PlanFree, PlanPro, PlanEnterprise:
		return true
	}
	return false
}

package handler

import (
	"net/http"

	"github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/quota"
	"github.com/keyward/keyward/internal/tenant"
)

// Quota serves GET /auth/quota. The route requires both credentials: the
// session proves who is asking, the API key identifies whose budget to show,
// and the two must belong to the same tenant.
type Quota struct {
	tracker *quota.Tracker
	tenants *tenant.Service
}

func NewQuota(tracker *quota.Tracker, tenants *tenant.Service) *Quota {
	return &Quota{tracker: tracker, tenants: tenants}
}

func (h *Quota) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_token", "missing, invalid, or expired session token", nil)
		return
	}
	key, ok := middleware.GetAPIKey(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_api_key", "missing or invalid API key", nil)
		return
	}
	if claims.TenantID != key.TenantID {
		response.Error(w, http.StatusForbidden,
			"cross_tenant_denied", "session and API key belong to different tenants", nil)
		return
	}

	tn, err := h.tenants.Get(r.Context(), key.TenantID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	usage, err := h.tracker.Usage(r.Context(), tn)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.JSON(w, map[string]any{
		"requestsPerHour": usage.RequestsPerHour,
		"requestsPerDay":  usage.RequestsPerDay,
		"usedHour":        usage.UsedHour,
		"usedDay":         usage.UsedDay,
	})
}

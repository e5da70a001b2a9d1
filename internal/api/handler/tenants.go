package handler

import (
	"net/http"
	"strconv"

	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/tenant"
)

// Tenants serves the tenant-facing read endpoints: the tenant's own record
// and its audit trail.
type Tenants struct {
	tenants  *tenant.Service
	auditLog *audit.Log
}

func NewTenants(tenants *tenant.Service, auditLog *audit.Log) *Tenants {
	return &Tenants{tenants: tenants, auditLog: auditLog}
}

// Get handles GET /tenants/{tenantID}.
func (h *Tenants) Get(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := tenantMatch(w, r, h.auditLog)
	if !ok {
		return
	}
	tn, err := h.tenants.Get(r.Context(), tenantID)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, tn)
}

// AuditTrail handles GET /tenants/{tenantID}/audit, newest events first.
func (h *Tenants) AuditTrail(w http.ResponseWriter, r *http.Request) {
	_, tenantID, ok := tenantMatch(w, r, h.auditLog)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := h.auditLog.List(r.Context(), tenantID, limit)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, map[string]any{"events": events})
}

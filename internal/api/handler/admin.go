package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/datarequest"
	"github.com/keyward/keyward/internal/tenant"
	"github.com/keyward/keyward/pkg/models"
)

// Admin serves the privileged surface: the sensitive-data request workflow
// and tenant provisioning/config. Every route is behind RequireAdmin.
type Admin struct {
	requests *datarequest.Service
	tenants  *tenant.Service
	auditLog *audit.Log
}

func NewAdmin(requests *datarequest.Service, tenants *tenant.Service, auditLog *audit.Log) *Admin {
	return &Admin{requests: requests, tenants: tenants, auditLog: auditLog}
}

type createDataRequest struct {
	TargetTenantID uuid.UUID `json:"targetTenantId"`
	DataType       string    `json:"dataType"`
	Reason         string    `json:"reason"`
}

// CreateDataRequest handles POST /admin/data-requests.
func (h *Admin) CreateDataRequest(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_token", "missing, invalid, or expired session token", nil)
		return
	}

	var req createDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}

	created, err := h.requests.Create(r.Context(), claims.Subject.String(), req.TargetTenantID, req.DataType, req.Reason)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, created)
}

// ListDataRequests handles GET /admin/data-requests.
func (h *Admin) ListDataRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.requests.List(r.Context())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, map[string]any{"dataRequests": reqs})
}

// GetDataRequest handles GET /admin/data-requests/{requestID}.
func (h *Admin) GetDataRequest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := h.requests.Get(r.Context(), id)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, req)
}

// ApproveDataRequest handles POST /admin/data-requests/{requestID}/approve.
func (h *Admin) ApproveDataRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.requests.Approve)
}

// RejectDataRequest handles POST /admin/data-requests/{requestID}/reject.
func (h *Admin) RejectDataRequest(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.requests.Reject)
}

func (h *Admin) decide(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, id uuid.UUID, decidedBy string) (*models.DataRequest, error)) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_token", "missing, invalid, or expired session token", nil)
		return
	}
	id, ok := h.requestID(w, r)
	if !ok {
		return
	}
	req, err := fn(r.Context(), id, claims.Subject.String())
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.JSON(w, req)
}

type createTenantRequest struct {
	Plan models.Plan `json:"plan"`
}

// CreateTenant handles POST /tenants.
func (h *Admin) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}
	tn, err := h.tenants.Create(r.Context(), req.Plan)
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Created(w, tn)
}

// UpdateTenantConfig handles PATCH /tenants/{tenantID}/config.
func (h *Admin) UpdateTenantConfig(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_token", "missing, invalid, or expired session token", nil)
		return
	}
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_tenant_id", "tenant id must be a UUID", nil)
		return
	}

	var cfg models.TenantConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}

	tn, err := h.tenants.UpdateConfig(r.Context(), tenantID, cfg)
	if err != nil {
		response.FromError(w, err)
		return
	}

	h.auditLog.Record(r.Context(), audit.Event{
		TenantID: tenantID,
		Actor:    claims.Subject.String(),
		Action:   audit.ActionTenantConfig,
	})
	response.JSON(w, tn)
}

func (h *Admin) requestID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "requestID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_request_id", "request id must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

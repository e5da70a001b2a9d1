package handler

import (
	"encoding/json"
	"net/http"

	"github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/names"
)

// DisplayName serves PUT /users/me/display-name. Display names are unique
// globally; the owner is the session subject.
type DisplayName struct {
	names    *names.Service
	auditLog *audit.Log
}

func NewDisplayName(n *names.Service, auditLog *audit.Log) *DisplayName {
	return &DisplayName{names: n, auditLog: auditLog}
}

type displayNameRequest struct {
	DisplayName string `json:"displayName"`
}

func (h *DisplayName) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_token", "missing, invalid, or expired session token", nil)
		return
	}

	var req displayNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON", nil)
		return
	}

	name, err := h.names.Change(r.Context(), names.ScopeGlobal, claims.Subject, req.DisplayName)
	if err != nil {
		response.FromError(w, err)
		return
	}

	h.auditLog.Record(r.Context(), audit.Event{
		TenantID: claims.TenantID,
		Actor:    claims.Subject.String(),
		Action:   audit.ActionNameChanged,
		Detail:   map[string]string{"display_name": name},
	})
	response.JSON(w, map[string]string{"displayName": name})
}

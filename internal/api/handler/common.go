package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/session"
)

// tenantMatch verifies the session's tenant against the path tenant before
// any tenant-scoped read happens. A mismatch returns an opaque 403, recorded
// in the target tenant's audit trail, and never discloses whether the
// addressed resource exists.
func tenantMatch(w http.ResponseWriter, r *http.Request, auditLog *audit.Log) (*session.Claims, uuid.UUID, bool) {
	claims, ok := middleware.GetClaims(r)
	if !ok {
		response.Error(w, http.StatusUnauthorized,
			"invalid_token", "missing, invalid, or expired session token", nil)
		return nil, uuid.Nil, false
	}

	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "invalid_tenant_id", "tenant id must be a UUID", nil)
		return nil, uuid.Nil, false
	}

	if claims.TenantID != tenantID {
		auditLog.Record(r.Context(), audit.Event{
			TenantID: tenantID,
			Actor:    claims.Subject.String(),
			Action:   audit.ActionCrossTenantDenied,
			Target:   r.URL.Path,
		})
		response.Error(w, http.StatusForbidden,
			"cross_tenant_denied", "session does not belong to this tenant", nil)
		return nil, uuid.Nil, false
	}
	return claims, tenantID, true
}

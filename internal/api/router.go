// Package api wires middleware and handlers into the HTTP router.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keyward/keyward/internal/api/handler"
	mw "github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/metrics"
)

// Dependencies holds everything the router mounts.
type Dependencies struct {
	Auth      *mw.Auth
	AuthLimit *mw.AuthLimit

	Health http.HandlerFunc

	Keys        *handler.APIKeys
	DisplayName *handler.DisplayName
	Quota       *handler.Quota
	Sessions    *handler.Sessions
	Tenants     *handler.Tenants
	Admin       *handler.Admin
}

// NewRouter builds the chi router with the full middleware stack and routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Recovery)
	r.Use(mw.Logger)
	r.Use(mw.Metrics)

	// Public surface.
	r.Get("/healthz", orNotImplemented(deps.Health))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.With(deps.AuthLimit.Limit).Post("/auth/sessions/restore", deps.Sessions.Restore)

	// Session-authenticated dashboard surface.
	r.Group(func(r chi.Router) {
		r.Use(deps.AuthLimit.Limit)
		r.Use(deps.Auth.Session)

		r.Get("/tenants/{tenantID}", deps.Tenants.Get)
		r.Get("/tenants/{tenantID}/audit", deps.Tenants.AuditTrail)

		r.Post("/tenants/{tenantID}/api-keys", deps.Keys.Create)
		r.Get("/tenants/{tenantID}/api-keys", deps.Keys.List)
		r.Post("/tenants/{tenantID}/api-keys/{keyID}/rotate", deps.Keys.Rotate)
		r.Post("/tenants/{tenantID}/api-keys/{keyID}/reveal", deps.Keys.Reveal)
		r.Delete("/tenants/{tenantID}/api-keys/{keyID}", deps.Keys.Revoke)

		r.Put("/users/me/display-name", deps.DisplayName.Update)

		// Quota additionally requires the API key whose budget is shown.
		r.With(deps.Auth.APIKey).Get("/auth/quota", deps.Quota.Get)

		// Elevated surface.
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireAdmin)

			r.Post("/tenants", deps.Admin.CreateTenant)
			r.Patch("/tenants/{tenantID}/config", deps.Admin.UpdateTenantConfig)

			r.Post("/admin/data-requests", deps.Admin.CreateDataRequest)
			r.Get("/admin/data-requests", deps.Admin.ListDataRequests)
			r.Get("/admin/data-requests/{requestID}", deps.Admin.GetDataRequest)
			r.Post("/admin/data-requests/{requestID}/approve", deps.Admin.ApproveDataRequest)
			r.Post("/admin/data-requests/{requestID}/reject", deps.Admin.RejectDataRequest)
		})
	})

	return r
}

func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "not_implemented", "endpoint not yet implemented", nil)
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/keyward/keyward/internal/api/response"
	"github.com/keyward/keyward/internal/apikey"
	"github.com/keyward/keyward/internal/errs"
	"github.com/keyward/keyward/internal/metrics"
	"github.com/keyward/keyward/internal/quota"
	"github.com/keyward/keyward/internal/session"
	"github.com/keyward/keyward/internal/tenant"
)

// Auth provides the two credential middlewares: signed session tokens for
// dashboard operations and raw API keys for programmatic calls.
type Auth struct {
	sessions *session.Manager
	keys     *apikey.Service
	tenants  *tenant.Service
	quota    *quota.Tracker
}

func NewAuth(sessions *session.Manager, keys *apikey.Service, tenants *tenant.Service, quota *quota.Tracker) *Auth {
	return &Auth{sessions: sessions, keys: keys, tenants: tenants, quota: quota}
}

// Session verifies the Bearer session token and sets the claims and the raw
// token in the request context.
func (a *Auth) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearerToken(r)
		if token == "" {
			metrics.RecordAuthFailure("session")
			response.Error(w, http.StatusUnauthorized,
				"invalid_token", "missing, invalid, or expired session token", nil)
			return
		}

		claims, err := a.sessions.Verify(token)
		if err != nil {
			metrics.RecordAuthFailure("session")
			response.FromError(w, err)
			return
		}

		ctx := SetClaims(r.Context(), claims)
		ctx = SetSessionToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKey verifies the X-Api-Key credential and charges the request against
// the tenant's quota before passing it on.
func (a *Auth) APIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-Api-Key"))
		if raw == "" {
			metrics.RecordAuthFailure("api_key")
			response.Error(w, http.StatusUnauthorized,
				"invalid_api_key", "missing or invalid API key", nil)
			return
		}

		res, err := a.keys.Verify(r.Context(), raw)
		if err != nil {
			metrics.RecordAuthFailure("api_key")
			metrics.RecordVerification("rejected")
			response.FromError(w, err)
			return
		}
		metrics.RecordVerification("accepted")

		tn, err := a.tenants.Get(r.Context(), res.TenantID)
		if err != nil {
			response.FromError(w, err)
			return
		}
		if err := a.quota.CheckAndIncrement(r.Context(), tn); err != nil {
			if e, ok := errs.As(err); ok {
				if detail, ok := e.Detail.(map[string]string); ok {
					metrics.RecordQuotaRejection(detail["window"])
				}
			}
			response.FromError(w, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetAPIKey(r.Context(), res)))
	})
}

// RequireAdmin gates elevated operations. It assumes Session already ran.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := GetClaims(r)
		if !ok {
			response.Error(w, http.StatusUnauthorized,
				"invalid_token", "missing, invalid, or expired session token", nil)
			return
		}
		if !claims.Admin {
			response.Error(w, http.StatusForbidden,
				"admin_required", "this operation requires elevated privileges", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package middleware

import (
	"context"
	"net/http"

	"github.com/keyward/keyward/internal/apikey"
	"github.com/keyward/keyward/internal/session"
)

type contextKey string

const (
	claimsKey       contextKey = "session_claims"
	sessionTokenKey contextKey = "session_token"
	apiKeyKey       contextKey = "api_key"
)

// SetClaims stores the verified session identity on the context.
func SetClaims(ctx context.Context, c *session.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// GetClaims returns the verified session identity, if a session middleware ran.
func GetClaims(r *http.Request) (*session.Claims, bool) {
	c, ok := r.Context().Value(claimsKey).(*session.Claims)
	return c, ok
}

// SetSessionToken keeps the raw token alongside the claims. The reveal flow
// derives its response cipher from it.
func SetSessionToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, sessionTokenKey, token)
}

func GetSessionToken(r *http.Request) (string, bool) {
	t, ok := r.Context().Value(sessionTokenKey).(string)
	return t, ok
}

// SetAPIKey stores the verified API key identity on the context.
func SetAPIKey(ctx context.Context, v *apikey.VerifyResult) context.Context {
	return context.WithValue(ctx, apiKeyKey, v)
}

func GetAPIKey(r *http.Request) (*apikey.VerifyResult, bool) {
	v, ok := r.Context().Value(apiKeyKey).(*apikey.VerifyResult)
	return v, ok
}

// Package session issues and verifies the signed, self-contained tokens that
// identify human users. Verification is stateless; restoration is a
// best-effort cache lookup that can only ever degrade to "no session".
package session

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/internal/errs"
)

// Claims is the verified identity carried by a session token.
type Claims struct {
	Subject   uuid.UUID
	TenantID  uuid.UUID
	Email     string
	Admin     bool
	ExpiresAt time.Time
}

type tokenClaims struct {
	TenantID string `json:"tid"`
	Email    string `json:"email"`
	Admin    bool   `json:"adm,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens (HS256) and caches issued tokens
// per device for restoration.
type Manager struct {
	secret []byte
	ttl    time.Duration
	cache  cache.Cache
	now    func() time.Time
}

// NewManager creates a Manager. cache may be nil, which disables restoration
// but not issue/verify.
func NewManager(signingSecret string, ttl time.Duration, c cache.Cache) *Manager {
	return &Manager{secret: []byte(signingSecret), ttl: ttl, cache: c, now: time.Now}
}

// SetClock overrides the clock for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// Issue signs a token for the user. When deviceID is non-empty the token is
// also cached server-side so Restore can find it later; a cache failure does
// not fail the issue.
func (m *Manager) Issue(ctx context.Context, subject, tenantID uuid.UUID, email string, admin bool, deviceID string) (string, error) {
	now := m.now()
	claims := tokenClaims{
		TenantID: tenantID.String(),
		Email:    email,
		Admin:    admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", errs.NewEncryption("token_signing_failed", "failed to sign session token")
	}

	if deviceID != "" && m.cache != nil {
		_ = m.cache.Set(ctx, cache.SessionKey(deviceID), []byte(token), m.ttl)
	}
	return token, nil
}

// Verify checks signature and expiry and returns the claims. No store I/O.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)

	var claims tokenClaims
	token, err := parser.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, errs.NewAuthentication("invalid_token", "missing, invalid, or expired session token")
	}

	subject, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errs.NewAuthentication("invalid_token", "missing, invalid, or expired session token")
	}
	tenantID, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return nil, errs.NewAuthentication("invalid_token", "missing, invalid, or expired session token")
	}

	return &Claims{
		Subject:   subject,
		TenantID:  tenantID,
		Email:     claims.Email,
		Admin:     claims.Admin,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// Restore looks up a previously issued, still-valid token for the device.
// Inability to restore is not an error: any miss, cache failure, or expired
// token simply means no session.
func (m *Manager) Restore(ctx context.Context, deviceID string) (string, bool) {
	if deviceID == "" || m.cache == nil {
		return "", false
	}
	raw, ok, err := m.cache.Get(ctx, cache.SessionKey(deviceID))
	if err != nil || !ok {
		return "", false
	}
	token := string(raw)
	if _, err := m.Verify(token); err != nil {
		return "", false
	}
	return token, true
}

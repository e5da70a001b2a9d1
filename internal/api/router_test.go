package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/keyward/keyward/internal/api"
	"github.com/keyward/keyward/internal/api/handler"
	mw "github.com/keyward/keyward/internal/api/middleware"
	"github.com/keyward/keyward/internal/apikey"
	"github.com/keyward/keyward/internal/audit"
	"github.com/keyward/keyward/internal/cache"
	"github.com/keyward/keyward/internal/crypto"
	"github.com/keyward/keyward/internal/datarequest"
	"github.com/keyward/keyward/internal/names"
	"github.com/keyward/keyward/internal/quota"
	"github.com/keyward/keyward/internal/session"
	"github.com/keyward/keyward/internal/store"
	"github.com/keyward/keyward/internal/tenant"
	"github.com/keyward/keyward/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signingSecret = "test-signing-secret-0123456789abcdef"

type testServer struct {
	router   http.Handler
	sessions *session.Manager
	tenants  *tenant.Service
	keys     *apikey.Service
	audit    *audit.Log
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	kv := store.NewMemoryKV()
	mem := cache.NewMemoryCache()
	cipher, err := crypto.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	auditLog := audit.NewLog(kv)
	tenants := tenant.NewService(kv)
	keys := apikey.NewService(kv, cipher, auditLog, tenants, "test", 168*time.Hour)
	nameSvc := names.NewService(kv, names.ChangePolicy{Limit: 2, Window: 720 * time.Hour})
	sessions := session.NewManager(signingSecret, 15*time.Minute, mem)
	tracker := quota.NewTracker(mem)
	requests := datarequest.NewService(kv, auditLog, tenants, datarequest.DefaultTTL)

	router := api.NewRouter(api.Dependencies{
		Auth:      mw.NewAuth(sessions, keys, tenants, tracker),
		AuthLimit: mw.NewAuthLimit(1000, 1000),

		Health: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		},

		Keys:        handler.NewAPIKeys(keys, auditLog),
		DisplayName: handler.NewDisplayName(nameSvc, auditLog),
		Quota:       handler.NewQuota(tracker, tenants),
		Sessions:    handler.NewSessions(sessions),
		Tenants:     handler.NewTenants(tenants, auditLog),
		Admin:       handler.NewAdmin(requests, tenants, auditLog),
	})

	return &testServer{router: router, sessions: sessions, tenants: tenants, keys: keys, audit: auditLog}
}

func (ts *testServer) newTenant(t *testing.T) *models.Tenant {
	t.Helper()
	tn, err := ts.tenants.Create(context.Background(), models.PlanFree)
	require.NoError(t, err)
	return tn
}

func (ts *testServer) token(t *testing.T, tenantID uuid.UUID, admin bool) string {
	t.Helper()
	token, err := ts.sessions.Issue(context.Background(), uuid.New(), tenantID, "dev@example.com", admin, "")
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, rd)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	ts := newTestServer(t)

	assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/healthz", "", nil, nil).Code)
	assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/metrics", "", nil, nil).Code)
}

func TestProtectedEndpointsRequireSession(t *testing.T) {
	ts := newTestServer(t)
	tenantID := uuid.New()

	endpoints := []struct {
		method string
		path   string
	}{
		{"POST", "/tenants/" + tenantID.String() + "/api-keys"},
		{"GET", "/tenants/" + tenantID.String() + "/api-keys"},
		{"PUT", "/users/me/display-name"},
		{"GET", "/auth/quota"},
		{"POST", "/admin/data-requests"},
		{"GET", "/admin/data-requests"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := ts.do(t, ep.method, ep.path, "", nil, nil)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "invalid_token", decode(t, w)["error"])
		})
	}
}

func TestKeyLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	tn := ts.newTenant(t)
	token := ts.token(t, tn.ID, false)
	base := "/tenants/" + tn.ID.String() + "/api-keys"

	// Create: raw secret returned exactly once.
	w := ts.do(t, "POST", base, token, map[string]string{"name": "ci-deploy"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)
	rawSecret, _ := created["apiKey"].(string)
	keyID, _ := created["keyId"].(string)
	assert.True(t, strings.HasPrefix(rawSecret, "sk_test_"))
	require.NotEmpty(t, keyID)

	// List: metadata only, never secret material.
	w = ts.do(t, "GET", base, token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), rawSecret)
	assert.Contains(t, w.Body.String(), "ci-deploy")

	// Reveal: response is sealed with the caller's session material.
	w = ts.do(t, "POST", base+"/"+keyID+"/reveal", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sealed, _ := decode(t, w)["apiKey"].(string)
	require.NotEmpty(t, sealed)
	assert.NotEqual(t, rawSecret, sealed)

	sc, err := crypto.NewSessionCipher(token)
	require.NoError(t, err)
	plain, err := sc.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, rawSecret, string(plain))

	// Rotate: new secret, old key flagged.
	w = ts.do(t, "POST", base+"/"+keyID+"/rotate", token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	rotated := decode(t, w)
	assert.Equal(t, keyID, rotated["oldKeyId"])
	newSecret, _ := rotated["apiKey"].(string)
	assert.NotEqual(t, rawSecret, newSecret)

	// Both secrets still verify inside the grace window.
	w = ts.do(t, "GET", "/auth/quota", token, nil, map[string]string{"X-Api-Key": rawSecret})
	assert.Equal(t, http.StatusOK, w.Code)
	w = ts.do(t, "GET", "/auth/quota", token, nil, map[string]string{"X-Api-Key": newSecret})
	assert.Equal(t, http.StatusOK, w.Code)

	// Revoke the new key: immediately rejected.
	newKeyID, _ := rotated["keyId"].(string)
	w = ts.do(t, "DELETE", base+"/"+newKeyID, token, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "GET", "/auth/quota", token, nil, map[string]string{"X-Api-Key": newSecret})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCrossTenantAccessDenied(t *testing.T) {
	ts := newTestServer(t)
	a := ts.newTenant(t)
	b := ts.newTenant(t)

	// Tenant A creates a key.
	tokenA := ts.token(t, a.ID, false)
	w := ts.do(t, "POST", "/tenants/"+a.ID.String()+"/api-keys", tokenA, map[string]string{"name": "k1"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	// Tenant B's session cannot touch A's keys.
	tokenB := ts.token(t, b.ID, false)
	w = ts.do(t, "GET", "/tenants/"+a.ID.String()+"/api-keys", tokenB, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "cross_tenant_denied", decode(t, w)["error"])
	// The body discloses nothing about A's resources.
	assert.NotContains(t, w.Body.String(), "k1")

	// The denial landed in A's audit trail.
	events, err := ts.audit.List(context.Background(), a.ID, 10)
	require.NoError(t, err)
	var actions []string
	for _, e := range events {
		actions = append(actions, e.Action)
	}
	assert.Contains(t, actions, audit.ActionCrossTenantDenied)
}

func TestDisplayNameFlow(t *testing.T) {
	ts := newTestServer(t)
	tn := ts.newTenant(t)
	first := ts.token(t, tn.ID, false)
	second := ts.token(t, tn.ID, false)

	// First user claims the name.
	w := ts.do(t, "PUT", "/users/me/display-name", first, map[string]string{"displayName": "Swift Eagle"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Swift Eagle", decode(t, w)["displayName"])

	// Second user collides, case-insensitively.
	w = ts.do(t, "PUT", "/users/me/display-name", second, map[string]string{"displayName": "swift eagle"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "name_taken", decode(t, w)["error"])

	// First user changes once more (limit 2), then hits the monthly cap.
	w = ts.do(t, "PUT", "/users/me/display-name", first, map[string]string{"displayName": "Bold Falcon"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, "PUT", "/users/me/display-name", first, map[string]string{"displayName": "Calm Heron"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	body := decode(t, w)
	detail, _ := body["detail"].(map[string]any)
	assert.NotEmpty(t, detail["nextChangeDate"])

	// The released name is claimable again.
	w = ts.do(t, "PUT", "/users/me/display-name", second, map[string]string{"displayName": "Swift Eagle"}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestQuotaEndpointAndThrottling(t *testing.T) {
	ts := newTestServer(t)
	tn := ts.newTenant(t)
	_, err := ts.tenants.UpdateConfig(context.Background(), tn.ID, models.TenantConfig{RequestsPerHour: 3})
	require.NoError(t, err)

	token := ts.token(t, tn.ID, false)
	created, err := ts.keys.Create(context.Background(), tn.ID, "ci", "user-1", apikey.Constraints{})
	require.NoError(t, err)
	headers := map[string]string{"X-Api-Key": created.RawSecret}

	w := ts.do(t, "GET", "/auth/quota", token, nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(3), body["requestsPerHour"])
	assert.Equal(t, float64(1), body["usedHour"])

	// Exhaust the budget; the over-limit request is turned away.
	ts.do(t, "GET", "/auth/quota", token, nil, headers)
	ts.do(t, "GET", "/auth/quota", token, nil, headers)
	w = ts.do(t, "GET", "/auth/quota", token, nil, headers)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "quota_exceeded", decode(t, w)["error"])
}

func TestQuotaRejectsMismatchedCredentials(t *testing.T) {
	ts := newTestServer(t)
	a := ts.newTenant(t)
	b := ts.newTenant(t)

	created, err := ts.keys.Create(context.Background(), a.ID, "ci", "user-1", apikey.Constraints{})
	require.NoError(t, err)

	// Session from tenant B with tenant A's key.
	w := ts.do(t, "GET", "/auth/quota", ts.token(t, b.ID, false), nil,
		map[string]string{"X-Api-Key": created.RawSecret})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminSurface(t *testing.T) {
	ts := newTestServer(t)
	tn := ts.newTenant(t)
	admin := ts.token(t, tn.ID, true)
	regular := ts.token(t, tn.ID, false)

	// Non-admin sessions are rejected with 403.
	w := ts.do(t, "GET", "/admin/data-requests", regular, nil, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Admin opens a request against the tenant.
	w = ts.do(t, "POST", "/admin/data-requests", admin, map[string]any{
		"targetTenantId": tn.ID,
		"dataType":       "billing_email",
		"reason":         "support escalation #4821",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	reqID, _ := decode(t, w)["request_id"].(string)
	require.NotEmpty(t, reqID)

	w = ts.do(t, "GET", "/admin/data-requests/"+reqID, admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", decode(t, w)["status"])

	w = ts.do(t, "POST", "/admin/data-requests/"+reqID+"/approve", admin, nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "approved", decode(t, w)["status"])

	// Approving twice conflicts.
	w = ts.do(t, "POST", "/admin/data-requests/"+reqID+"/approve", admin, nil, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAdminTenantManagement(t *testing.T) {
	ts := newTestServer(t)
	tn := ts.newTenant(t)
	admin := ts.token(t, tn.ID, true)

	w := ts.do(t, "POST", "/tenants", admin, map[string]string{"plan": "pro"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "pro", decode(t, w)["plan"])

	w = ts.do(t, "PATCH", "/tenants/"+tn.ID.String()+"/config", admin,
		map[string]int{"requests_per_hour": 50}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	got, err := ts.tenants.Get(context.Background(), tn.ID)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Config.RequestsPerHour)
}

func TestSessionRestore(t *testing.T) {
	ts := newTestServer(t)
	tn := ts.newTenant(t)

	// No device header: still 200, empty token.
	w := ts.do(t, "POST", "/auth/sessions/restore", "", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", decode(t, w)["token"])

	// A previously issued session is handed back for its device.
	token, err := ts.sessions.Issue(context.Background(), uuid.New(), tn.ID, "dev@example.com", false, "device-42")
	require.NoError(t, err)

	w = ts.do(t, "POST", "/auth/sessions/restore", "", nil, map[string]string{"X-Device-Id": "device-42"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, token, decode(t, w)["token"])
}

func TestRouterNotFound(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, "GET", "/nonexistent", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

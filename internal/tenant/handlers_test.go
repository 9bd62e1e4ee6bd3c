package tenant

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/auth"
	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/quota"
)

type testEnv struct {
	router *gin.Engine
	gate   *auth.Gate
	store  *MemoryStore
	usage  *quota.MemoryUsageStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	authStore := auth.NewMemoryStore()
	tokens := auth.NewTokenIssuer("0123456789abcdef0123456789abcdef", time.Hour)
	gate := auth.NewGate(authStore, authStore, tokens)

	store := NewMemoryStore()
	usage := quota.NewMemoryUsageStore()
	enforcer := quota.NewEnforcer(NewLimits(store), usage)

	r := gin.New()
	NewHandler(store, gate, enforcer).RegisterRoutes(r,
		auth.RequireSession(gate, tokens), auth.RequireReady())

	return &testEnv{router: r, gate: gate, store: store, usage: usage}
}

// signUpReady registers a user and walks them through policy acceptance,
// returning their token. The tenant is still unbound.
func (e *testEnv) signUp(t *testing.T, email string) (token, userID string) {
	t.Helper()
	sess, err := e.gate.SignUp(context.Background(), email, "Ana", "correct-horse")
	if err != nil {
		t.Fatalf("sign-up failed: %v", err)
	}
	return sess.Token, sess.User.UserID
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %s", w.Body.String())
	}
	return body
}

func TestListPlansIsPublic(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(http.MethodGet, "/v1/plans", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := decode(t, w)
	plans := body["plans"].([]any)
	if len(plans) != 3 {
		t.Fatalf("expected 3 plans, got %d", len(plans))
	}
	premium := plans[2].(map[string]any)
	if premium["monthly_invoice_limit"].(float64) != -1 {
		t.Errorf("expected unlimited premium invoices, got %v", premium["monthly_invoice_limit"])
	}
}

func TestOnboardingCreatesAndBindsTenant(t *testing.T) {
	e := newTestEnv(t)
	token, userID := e.signUp(t, "ana@example.com")

	w := e.do(http.MethodPost, "/v1/tenants", token, gin.H{
		"name": "Salão da Ana", "slug": "salao-da-ana",
		"cnpj": "11.222.333/0001-81", "segment": "beleza",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	created := body["tenant"].(map[string]any)
	if created["tier"] != string(TierFree) {
		t.Errorf("new tenants must start free, got %v", created["tier"])
	}
	if created["cnpj"] != "11222333000181" {
		t.Errorf("expected normalized CNPJ, got %v", created["cnpj"])
	}

	// The session is now bound to the tenant.
	state, sc, err := e.gate.Resolve(context.Background(), userID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if state != auth.StatePendingAcceptance {
		t.Errorf("expected %s after onboarding, got %s", auth.StatePendingAcceptance, state)
	}
	if sc.TenantID != created["id"] {
		t.Errorf("tenant binding mismatch: %s vs %v", sc.TenantID, created["id"])
	}
}

func TestOnboardingTwiceConflicts(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signUp(t, "ana@example.com")

	req := gin.H{"name": "Salão", "slug": "salao-da-ana"}
	if w := e.do(http.MethodPost, "/v1/tenants", token, req); w.Code != http.StatusCreated {
		t.Fatalf("first onboarding: expected 201, got %d", w.Code)
	}

	w := e.do(http.MethodPost, "/v1/tenants", token, gin.H{"name": "Outro", "slug": "outro"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if body := decode(t, w); body["error"] != "already_onboarded" {
		t.Errorf("expected already_onboarded, got %v", body["error"])
	}
}

func TestCreateTenantValidation(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signUp(t, "ana@example.com")

	cases := []struct {
		name string
		body gin.H
		want string
	}{
		{"missing slug", gin.H{"name": "Salão"}, "invalid_request"},
		{"bad slug", gin.H{"name": "Salão", "slug": "Ab"}, "invalid_slug"},
		{"bad cnpj", gin.H{"name": "Salão", "slug": "salao", "cnpj": "123"}, "invalid_cnpj"},
	}
	for _, tc := range cases {
		w := e.do(http.MethodPost, "/v1/tenants", token, tc.body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", tc.name, w.Code)
			continue
		}
		if body := decode(t, w); body["error"] != tc.want {
			t.Errorf("%s: expected %s, got %v", tc.name, tc.want, body["error"])
		}
	}
}

func TestCreateTenantSlugTaken(t *testing.T) {
	e := newTestEnv(t)
	tokenA, _ := e.signUp(t, "ana@example.com")
	tokenB, _ := e.signUp(t, "bruno@example.com")

	if w := e.do(http.MethodPost, "/v1/tenants", tokenA, gin.H{"name": "A", "slug": "salao"}); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}
	w := e.do(http.MethodPost, "/v1/tenants", tokenB, gin.H{"name": "B", "slug": "salao"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if body := decode(t, w); body["error"] != "slug_taken" {
		t.Errorf("expected slug_taken, got %v", body["error"])
	}
}

// onboard creates a ready session with a bound tenant and returns the token
// and tenant ID.
func (e *testEnv) onboard(t *testing.T, email, slug string) (token, tenantID string) {
	t.Helper()
	token, userID := e.signUp(t, email)
	w := e.do(http.MethodPost, "/v1/tenants", token, gin.H{"name": "Salão", "slug": slug})
	if w.Code != http.StatusCreated {
		t.Fatalf("onboarding failed: %d %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	tenantID = body["tenant"].(map[string]any)["id"].(string)
	if _, _, err := e.gate.AcceptPolicies(context.Background(), userID, true, true); err != nil {
		t.Fatalf("accept policies: %v", err)
	}
	return token, tenantID
}

func TestGetAndUpdateTenant(t *testing.T) {
	e := newTestEnv(t)
	token, tenantID := e.onboard(t, "ana@example.com", "salao")

	w := e.do(http.MethodGet, "/v1/tenants/me", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["tenant"].(map[string]any)["id"] != tenantID {
		t.Errorf("wrong tenant returned")
	}
	if body["plan"].(map[string]any)["tier"] != string(TierFree) {
		t.Errorf("expected free plan in response")
	}

	w = e.do(http.MethodPatch, "/v1/tenants/me", token, gin.H{"name": "Novo Nome", "segment": "estética"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	got, _ := e.store.Get(context.Background(), tenantID)
	if got.Name != "Novo Nome" || got.Segment != "estética" {
		t.Errorf("update not persisted: %+v", got)
	}
}

func TestUsageEndpoint(t *testing.T) {
	e := newTestEnv(t)
	token, tenantID := e.onboard(t, "ana@example.com", "salao")

	period := clock.CurrentPeriod(clock.System{})
	for i := 0; i < 3; i++ {
		e.usage.Record(tenantID, quota.KindAppointment, period)
	}
	e.usage.Record(tenantID, quota.KindInvoice, period)

	w := e.do(http.MethodGet, "/v1/tenants/me/usage", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	appts := body["appointments"].(map[string]any)
	if appts["usage"].(float64) != 3 || appts["limit"].(float64) != 20 {
		t.Errorf("wrong appointment usage: %v", appts)
	}
	invoices := body["invoices"].(map[string]any)
	if invoices["usage"].(float64) != 1 || invoices["limit"].(float64) != 10 {
		t.Errorf("wrong invoice usage: %v", invoices)
	}
}

func TestTenantRoutesRequireReadySession(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.signUp(t, "ana@example.com")

	// No tenant bound yet: tenant-scoped routes are gated off.
	w := e.do(http.MethodGet, "/v1/tenants/me", token, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}
	if body := decode(t, w); body["error"] != "tenant_not_bound" {
		t.Errorf("expected tenant_not_bound, got %v", body["error"])
	}
}

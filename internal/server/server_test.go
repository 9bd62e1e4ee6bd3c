package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agendanf/agendanf/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:       "8080",
		Env:        "development",
		LogLevel:   "error",
		JWTSecret:  "test-secret-0123456789abcdef-0123456789abcdef",
		SessionTTL: 1,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s
}

func do(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
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
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	if w := do(s, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(s, http.MethodGet, "/health/live", "", nil); w.Code != http.StatusOK {
		t.Errorf("liveness: expected 200, got %d", w.Code)
	}
	// Readiness flips only once Run has started serving.
	if w := do(s, http.MethodGet, "/health/ready", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("readiness: expected 503 before Run, got %d", w.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var info struct {
		Name string `json:"name"`
	}
	json.Unmarshal(w.Body.Bytes(), &info)
	if info.Name != "agendanf" {
		t.Errorf("unexpected service name %q", info.Name)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected a request id header")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	if w := do(s, http.MethodGet, "/metrics", "", nil); w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

// signUpReady walks a fresh account through sign-up, onboarding, and policy
// acceptance, returning a token in the ready state.
func signUpReady(t *testing.T, s *Server, email, slug string) string {
	t.Helper()

	w := do(s, http.MethodPost, "/v1/auth/signup", "", gin.H{
		"email": email, "name": "Ana Lima", "password": "correct-horse",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sess struct {
		Token string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &sess)
	if sess.Token == "" {
		t.Fatal("signup: expected a session token")
	}

	w = do(s, http.MethodPost, "/v1/tenants", sess.Token, gin.H{
		"name": "Studio Ana", "slug": slug,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("onboarding: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodPost, "/v1/auth/acceptance", sess.Token, gin.H{
		"accepted_terms": true, "accepted_privacy": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("acceptance: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	return sess.Token
}

func TestOnboardingToInvoiceFlow(t *testing.T) {
	s := newTestServer(t)

	// Tenant-scoped resources are closed to anonymous callers.
	if w := do(s, http.MethodGet, "/v1/clients", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a session, got %d", w.Code)
	}

	// Sign up; resources stay gated until onboarding and acceptance are done.
	w := do(s, http.MethodPost, "/v1/auth/signup", "", gin.H{
		"email": "flow@example.com", "name": "Ana Lima", "password": "correct-horse",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var sess struct {
		Token string `json:"token"`
	}
	json.Unmarshal(w.Body.Bytes(), &sess)

	if w = do(s, http.MethodGet, "/v1/clients", sess.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before onboarding, got %d: %s", w.Code, w.Body.String())
	}

	if w = do(s, http.MethodPost, "/v1/tenants", sess.Token, gin.H{
		"name": "Studio Ana", "slug": "studio-ana",
	}); w.Code != http.StatusCreated {
		t.Fatalf("onboarding: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	if w = do(s, http.MethodGet, "/v1/clients", sess.Token, nil); w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 before acceptance, got %d: %s", w.Code, w.Body.String())
	}

	if w = do(s, http.MethodPost, "/v1/auth/acceptance", sess.Token, gin.H{
		"accepted_terms": true, "accepted_privacy": true,
	}); w.Code != http.StatusOK {
		t.Fatalf("acceptance: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Client, appointment, invoice.
	w = do(s, http.MethodPost, "/v1/clients", sess.Token, gin.H{
		"name": "Bruna Costa", "email": "bruna@example.com",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("client: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var clientResp struct {
		Client struct {
			ID string `json:"id"`
		} `json:"client"`
	}
	json.Unmarshal(w.Body.Bytes(), &clientResp)

	w = do(s, http.MethodPost, "/v1/appointments", sess.Token, gin.H{
		"client_id": clientResp.Client.ID,
		"service":   "Corte e escova",
		"starts_at": time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("appointment: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(s, http.MethodPost, "/v1/invoices", sess.Token, gin.H{
		"client_id":    clientResp.Client.ID,
		"description":  "Corte e escova",
		"amount_cents": 12000,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("invoice: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var invResp struct {
		Invoice struct {
			Code string `json:"code"`
		} `json:"invoice"`
	}
	json.Unmarshal(w.Body.Bytes(), &invResp)
	if invResp.Invoice.Code != "NF000001" {
		t.Errorf("expected first code NF000001, got %q", invResp.Invoice.Code)
	}

	// Usage reflects the created resources.
	w = do(s, http.MethodGet, "/v1/tenants/me/usage", sess.Token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("usage: expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestPlansArePublic(t *testing.T) {
	s := newTestServer(t)

	w := do(s, http.MethodGet, "/v1/plans", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestBillingRoutesAbsentWithoutStripe(t *testing.T) {
	s := newTestServer(t)
	token := signUpReady(t, s, "nobilling@example.com", "studio-nobilling")

	if w := do(s, http.MethodPost, "/v1/billing/checkout", token, gin.H{"tier": "pro"}); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 when billing is not configured, got %d", w.Code)
	}
}

func TestTenantsAreIsolated(t *testing.T) {
	s := newTestServer(t)
	tokenA := signUpReady(t, s, "a@example.com", "studio-a")
	tokenB := signUpReady(t, s, "b@example.com", "studio-b")

	w := do(s, http.MethodPost, "/v1/clients", tokenA, gin.H{"name": "Cliente A"})
	if w.Code != http.StatusCreated {
		t.Fatalf("client: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var clientResp struct {
		Client struct {
			ID string `json:"id"`
		} `json:"client"`
	}
	json.Unmarshal(w.Body.Bytes(), &clientResp)

	path := fmt.Sprintf("/v1/clients/%s", clientResp.Client.ID)
	if w = do(s, http.MethodGet, path, tokenB, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 across tenants, got %d", w.Code)
	}
	if w = do(s, http.MethodGet, path, tokenA, nil); w.Code != http.StatusOK {
		t.Errorf("expected 200 for the owner, got %d", w.Code)
	}
}

func TestStoreUsageRoutesByKind(t *testing.T) {
	s := newTestServer(t)

	u := &storeUsage{appointments: s.appointments, invoices: s.invoices}
	if _, err := u.CountInPeriod(context.Background(), "ten_1", "unknown", "2026-01"); err == nil {
		t.Error("expected an error for an unknown kind")
	}
}

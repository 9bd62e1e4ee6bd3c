package appointments

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
	"github.com/agendanf/agendanf/internal/clients"
	"github.com/agendanf/agendanf/internal/quota"
)

func asTenant(tenantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(auth.ContextKeyTenantID, tenantID)
		c.Next()
	}
}

func newTestRouter(t *testing.T, limit int, tenantID string) (*gin.Engine, *clients.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, store, clientStore := newTestService(staticLimits(limit))
	r := gin.New()
	grp := r.Group("/v1", asTenant(tenantID))
	NewHandler(svc, store).RegisterRoutes(grp)
	return r, clientStore
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func createReq(startsAt time.Time) gin.H {
	return gin.H{
		"client_id": "cli_1",
		"service":   "Corte e escova",
		"starts_at": startsAt.Format(time.RFC3339),
	}
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	r, cs := newTestRouter(t, 10, "ten_1")
	cs.Create(context.Background(), &clients.Client{ID: "cli_1", TenantID: "ten_1", Name: "Maria"})

	w := doJSON(r, http.MethodPost, "/v1/appointments", createReq(time.Now().Add(24*time.Hour)))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Appointment Appointment `json:"appointment"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Appointment.Status != StatusScheduled {
		t.Errorf("expected scheduled status, got %s", resp.Appointment.Status)
	}
}

func TestCreateAppointmentLimitReached(t *testing.T) {
	r, cs := newTestRouter(t, 1, "ten_1")
	cs.Create(context.Background(), &clients.Client{ID: "cli_1", TenantID: "ten_1", Name: "Maria"})

	if w := doJSON(r, http.MethodPost, "/v1/appointments", createReq(time.Now())); w.Code != http.StatusCreated {
		t.Fatalf("first create: expected 201, got %d", w.Code)
	}

	w := doJSON(r, http.MethodPost, "/v1/appointments", createReq(time.Now()))
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "limit_reached" {
		t.Errorf("expected limit_reached, got %v", body["error"])
	}
	if body["usage"].(float64) != 1 || body["limit"].(float64) != 1 {
		t.Errorf("expected usage/limit in denial, got %v", body)
	}
	if body["kind"] != string(quota.KindAppointment) {
		t.Errorf("expected kind %s, got %v", quota.KindAppointment, body["kind"])
	}
}

func TestCreateAppointmentUnknownClient(t *testing.T) {
	r, _ := newTestRouter(t, 10, "ten_1")

	w := doJSON(r, http.MethodPost, "/v1/appointments", createReq(time.Now()))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "unknown_client" {
		t.Errorf("expected unknown_client, got %v", body["error"])
	}
}

func TestStatusTransitionEndpoint(t *testing.T) {
	r, cs := newTestRouter(t, 10, "ten_1")
	cs.Create(context.Background(), &clients.Client{ID: "cli_1", TenantID: "ten_1", Name: "Maria"})

	w := doJSON(r, http.MethodPost, "/v1/appointments", createReq(time.Now()))
	var created struct {
		Appointment Appointment `json:"appointment"`
	}
	json.Unmarshal(w.Body.Bytes(), &created)
	id := created.Appointment.ID

	w = doJSON(r, http.MethodPatch, "/v1/appointments/"+id, gin.H{"status": StatusCompleted})
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPatch, "/v1/appointments/"+id, gin.H{"status": StatusCancelled})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for terminal transition, got %d", w.Code)
	}
	var body map[string]any
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != "invalid_transition" {
		t.Errorf("expected invalid_transition, got %v", body["error"])
	}
}

func TestListEndpointRange(t *testing.T) {
	r, cs := newTestRouter(t, 10, "ten_1")
	cs.Create(context.Background(), &clients.Client{ID: "cli_1", TenantID: "ten_1", Name: "Maria"})

	// UTC keeps the RFC 3339 timestamps free of "+" offsets, which URL query
	// parsing would otherwise decode as spaces.
	now := time.Now().UTC()
	doJSON(r, http.MethodPost, "/v1/appointments", createReq(now.Add(time.Hour)))
	doJSON(r, http.MethodPost, "/v1/appointments", createReq(now.Add(48*time.Hour)))

	from := now.Format(time.RFC3339)
	to := now.Add(24 * time.Hour).Format(time.RFC3339)
	w := doJSON(r, http.MethodGet, "/v1/appointments?from="+from+"&to="+to, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Count int `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &body)
	if body.Count != 1 {
		t.Errorf("expected 1 appointment in range, got %d", body.Count)
	}
}

func TestListEndpointInvalidRange(t *testing.T) {
	r, _ := newTestRouter(t, 10, "ten_1")

	w := doJSON(r, http.MethodGet, "/v1/appointments?from=yesterday", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestAppointmentTenantIsolation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc, store, clientStore := newTestService(staticLimits(10))
	clientStore.Create(context.Background(), &clients.Client{ID: "cli_1", TenantID: "ten_a", Name: "Maria"})

	a := testAppointment("ten_a", "cli_1")
	if err := svc.Create(context.Background(), a); err != nil {
		t.Fatalf("create: %v", err)
	}

	other := gin.New()
	grp := other.Group("/v1", asTenant("ten_b"))
	NewHandler(svc, store).RegisterRoutes(grp)

	if w := doJSON(other, http.MethodGet, "/v1/appointments/"+a.ID, nil); w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for cross-tenant read, got %d", w.Code)
	}
}

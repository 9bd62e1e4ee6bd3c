package appointments

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/agendanf/agendanf/internal/clients"
	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/idgen"
	"github.com/agendanf/agendanf/internal/quota"
)

type staticLimits int

func (s staticLimits) MonthlyLimit(ctx context.Context, tenantID string, kind quota.Kind) (int, error) {
	return int(s), nil
}

type failingLimits struct{}

func (failingLimits) MonthlyLimit(ctx context.Context, tenantID string, kind quota.Kind) (int, error) {
	return 0, errors.New("plan store down")
}

// storeUsage backs the quota enforcer with the appointment store's own
// counts, the way the server wires it.
type storeUsage struct{ store Store }

func (u storeUsage) CountInPeriod(ctx context.Context, tenantID string, kind quota.Kind, period string) (int, error) {
	return u.store.CountInPeriod(ctx, tenantID, period)
}

func newTestService(limits quota.LimitResolver) (*Service, *MemoryStore, *clients.MemoryStore) {
	store := NewMemoryStore()
	clientStore := clients.NewMemoryStore()
	enforcer := quota.NewEnforcer(limits, storeUsage{store})
	return NewService(store, clientStore, limits, enforcer), store, clientStore
}

func testAppointment(tenantID, clientID string) *Appointment {
	now := time.Now()
	return &Appointment{
		ID:        idgen.WithPrefix("apt_"),
		TenantID:  tenantID,
		ClientID:  clientID,
		Service:   "Corte",
		StartsAt:  now.Add(24 * time.Hour),
		Status:    StatusScheduled,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func seedClient(t *testing.T, cs *clients.MemoryStore, tenantID, id string) {
	t.Helper()
	err := cs.Create(context.Background(), &clients.Client{ID: id, TenantID: tenantID, Name: "Maria"})
	if err != nil {
		t.Fatalf("seed client: %v", err)
	}
}

func TestCreateUpToLimit(t *testing.T) {
	svc, _, cs := newTestService(staticLimits(2))
	seedClient(t, cs, "ten_1", "cli_1")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := svc.Create(ctx, testAppointment("ten_1", "cli_1")); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	err := svc.Create(ctx, testAppointment("ten_1", "cli_1"))
	var exceeded *quota.ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("expected ExceededError, got %v", err)
	}
	if exceeded.Usage != 2 || exceeded.Limit != 2 || exceeded.Kind != quota.KindAppointment {
		t.Errorf("wrong denial payload: %+v", exceeded)
	}
}

func TestCreateUnlimited(t *testing.T) {
	svc, _, cs := newTestService(staticLimits(quota.Unlimited))
	seedClient(t, cs, "ten_1", "cli_1")

	for i := 0; i < 30; i++ {
		if err := svc.Create(context.Background(), testAppointment("ten_1", "cli_1")); err != nil {
			t.Fatalf("unlimited create %d: %v", i, err)
		}
	}
}

func TestCreateUnknownClient(t *testing.T) {
	svc, store, _ := newTestService(staticLimits(10))

	err := svc.Create(context.Background(), testAppointment("ten_1", "cli_ghost"))
	if !errors.Is(err, ErrUnknownClient) {
		t.Fatalf("expected ErrUnknownClient, got %v", err)
	}
	if n, _ := store.CountInPeriod(context.Background(), "ten_1", clock.CurrentPeriod(clock.System{})); n != 0 {
		t.Errorf("nothing must be written for an unknown client, got %d rows", n)
	}
}

func TestCreateCrossTenantClientRejected(t *testing.T) {
	svc, _, cs := newTestService(staticLimits(10))
	seedClient(t, cs, "ten_other", "cli_1")

	if err := svc.Create(context.Background(), testAppointment("ten_1", "cli_1")); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("another tenant's client must look unknown, got %v", err)
	}
}

func TestCreateFailsClosedOnLimitError(t *testing.T) {
	svc, store, cs := newTestService(failingLimits{})
	seedClient(t, cs, "ten_1", "cli_1")

	if err := svc.Create(context.Background(), testAppointment("ten_1", "cli_1")); err == nil {
		t.Fatal("expected error when the limit cannot be resolved")
	}
	if n, _ := store.CountInPeriod(context.Background(), "ten_1", clock.CurrentPeriod(clock.System{})); n != 0 {
		t.Errorf("no write may happen when the quota is unknown, got %d rows", n)
	}
}

func TestCreateConcurrentNeverOverrunsLimit(t *testing.T) {
	const limit = 5
	svc, store, cs := newTestService(staticLimits(limit))
	seedClient(t, cs, "ten_1", "cli_1")

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Create(context.Background(), testAppointment("ten_1", "cli_1")); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if created != limit {
		t.Errorf("expected exactly %d creations to succeed, got %d", limit, created)
	}
	n, _ := store.CountInPeriod(context.Background(), "ten_1", clock.CurrentPeriod(clock.System{}))
	if n != limit {
		t.Errorf("expected %d stored rows, got %d", limit, n)
	}
}

func TestUpdateStatusLifecycle(t *testing.T) {
	svc, _, cs := newTestService(staticLimits(10))
	seedClient(t, cs, "ten_1", "cli_1")
	ctx := context.Background()

	a := testAppointment("ten_1", "cli_1")
	if err := svc.Create(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := svc.UpdateStatus(ctx, "ten_1", a.ID, StatusCompleted)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("expected completed, got %s", got.Status)
	}

	// Completed is terminal.
	if _, err := svc.UpdateStatus(ctx, "ten_1", a.ID, StatusCancelled); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusScheduled, StatusCompleted, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.from, tc.to); got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestListByRange(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	day := time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)

	for i, hour := range []int{9, 11, 15} {
		a := testAppointment("ten_1", "cli_1")
		a.ID = fmt.Sprintf("apt_%d", i)
		a.StartsAt = day.Add(time.Duration(hour) * time.Hour)
		if err := store.Create(ctx, a, quota.Unlimited); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	// Outside the range.
	late := testAppointment("ten_1", "cli_1")
	late.StartsAt = day.AddDate(0, 0, 2)
	store.Create(ctx, late, quota.Unlimited)

	got, err := store.List(ctx, "ten_1", day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 appointments, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].StartsAt.Before(got[i-1].StartsAt) {
			t.Error("expected ascending starts_at order")
		}
	}
}

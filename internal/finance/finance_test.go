package finance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agendanf/agendanf/internal/clock"
	"github.com/agendanf/agendanf/internal/idgen"
)

func entry(tenantID string, typ Type, cents int64, occurredAt time.Time) *Entry {
	return &Entry{
		ID:          idgen.WithPrefix("fin_"),
		TenantID:    tenantID,
		Type:        typ,
		Description: "test entry",
		AmountCents: cents,
		OccurredAt:  occurredAt,
		CreatedAt:   occurredAt,
		UpdatedAt:   occurredAt,
	}
}

func TestSummarize(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	store.Create(ctx, entry("ten_1", TypeIncome, 10000, now))
	store.Create(ctx, entry("ten_1", TypeIncome, 5000, now.Add(time.Hour)))
	store.Create(ctx, entry("ten_1", TypeExpense, 3000, now.Add(2*time.Hour)))
	// Outside the period and outside the tenant, both ignored.
	store.Create(ctx, entry("ten_1", TypeIncome, 99999, now.AddDate(0, 1, 0)))
	store.Create(ctx, entry("ten_2", TypeIncome, 99999, now))

	sum, err := store.Summarize(ctx, "ten_1", clock.PeriodKey(now))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.IncomeCents != 15000 {
		t.Errorf("expected income 15000, got %d", sum.IncomeCents)
	}
	if sum.ExpenseCents != 3000 {
		t.Errorf("expected expense 3000, got %d", sum.ExpenseCents)
	}
	if sum.NetCents != 12000 {
		t.Errorf("expected net 12000, got %d", sum.NetCents)
	}
	if sum.EntryCount != 3 {
		t.Errorf("expected 3 entries, got %d", sum.EntryCount)
	}
}

func TestSummarizeEmptyPeriod(t *testing.T) {
	store := NewMemoryStore()

	sum, err := store.Summarize(context.Background(), "ten_1", "2026-01")
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if sum.IncomeCents != 0 || sum.ExpenseCents != 0 || sum.NetCents != 0 || sum.EntryCount != 0 {
		t.Errorf("expected zero summary, got %+v", sum)
	}
}

func TestSummarizeInvalidPeriod(t *testing.T) {
	store := NewMemoryStore()
	if _, err := store.Summarize(context.Background(), "ten_1", "march"); err == nil {
		t.Error("expected error for malformed period")
	}
}

func TestListBoundsArePeriodHalfOpen(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	store.Create(ctx, entry("ten_1", TypeIncome, 100, start))
	store.Create(ctx, entry("ten_1", TypeIncome, 200, end.Add(-time.Second)))
	store.Create(ctx, entry("ten_1", TypeIncome, 300, end))
	store.Create(ctx, entry("ten_1", TypeIncome, 400, start.Add(-time.Second)))

	entries, err := store.List(ctx, "ten_1", start, end)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries inside [start, end), got %d", len(entries))
	}
	if !entries[0].OccurredAt.After(entries[1].OccurredAt) {
		t.Error("expected newest-first ordering")
	}
}

func TestDeleteTenantScoped(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e := entry("ten_a", TypeExpense, 500, time.Now())
	store.Create(ctx, e)

	if err := store.Delete(ctx, "ten_b", e.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("cross-tenant delete must report not found, got %v", err)
	}
	if err := store.Delete(ctx, "ten_a", e.ID); err != nil {
		t.Errorf("owner delete: %v", err)
	}
	if err := store.Delete(ctx, "ten_a", e.ID); !errors.Is(err, ErrEntryNotFound) {
		t.Errorf("second delete must report not found, got %v", err)
	}
}

func TestTypeValid(t *testing.T) {
	if !TypeIncome.Valid() || !TypeExpense.Valid() {
		t.Error("known types must be valid")
	}
	if Type("transfer").Valid() {
		t.Error("unknown type must be invalid")
	}
}

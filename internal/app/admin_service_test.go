package app

import (
	"context"
	"errors"
	"testing"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

type fakeAdminRepo struct {
	orders    []domain.Order
	resources []domain.ProvisionedResource
}

func (f *fakeAdminRepo) ListOrders(context.Context) ([]domain.Order, error) {
	return f.orders, nil
}

func (f *fakeAdminRepo) ListResources(context.Context) ([]domain.ProvisionedResource, error) {
	return f.resources, nil
}

type stubSweeper struct {
	report SweepReport
	err    error
	calls  int
}

func (s *stubSweeper) Sweep(context.Context) (SweepReport, error) {
	s.calls++
	return s.report, s.err
}

func TestAdminService_ListOrders_FiltersByStatus(t *testing.T) {
	repo := &fakeAdminRepo{orders: []domain.Order{
		{ID: "a", Status: domain.OrderStatusActive},
		{ID: "b", Status: domain.OrderStatusExpired},
		{ID: "c", Status: domain.OrderStatusActive},
	}}
	svc := NewAdminService(repo, &stubSweeper{})
	ctx := context.Background()

	all, err := svc.ListOrders(ctx, "")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 orders, got %d", len(all))
	}

	active, err := svc.ListOrders(ctx, domain.OrderStatusActive)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "c" {
		t.Fatalf("unexpected active orders: %+v", active)
	}

	_, err = svc.ListOrders(ctx, domain.OrderStatus("bogus"))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAdminService_TriggerSweep(t *testing.T) {
	sweeper := &stubSweeper{err: domain.ErrSweepInProgress}
	svc := NewAdminService(&fakeAdminRepo{}, sweeper)

	_, err := svc.TriggerSweep(context.Background())
	if !errors.Is(err, domain.ErrSweepInProgress) {
		t.Fatalf("expected ErrSweepInProgress, got %v", err)
	}
	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep call, got %d", sweeper.calls)
	}
}

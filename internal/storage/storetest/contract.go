// Package storetest holds the behaviour every app.Store must share. Each
// store package runs Run against a fresh instance.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/testutil"
)

// Factory returns an empty store. It is called once per subtest.
type Factory func(t *testing.T) app.Store

var base = time.Date(2025, 3, 30, 0, 30, 0, 0, time.UTC)

func Run(t *testing.T, newStore Factory) {
	t.Run("CreateAndGet", func(t *testing.T) { testCreateAndGet(t, newStore(t)) })
	t.Run("TransitionCAS", func(t *testing.T) { testTransitionCAS(t, newStore(t)) })
	t.Run("ConcurrentTransition", func(t *testing.T) { testConcurrentTransition(t, newStore(t)) })
	t.Run("ActivateOrder", func(t *testing.T) { testActivateOrder(t, newStore(t)) })
	t.Run("Reclaimable", func(t *testing.T) { testReclaimable(t, newStore(t)) })
	t.Run("ReclaimLifecycle", func(t *testing.T) { testReclaimLifecycle(t, newStore(t)) })
	t.Run("ListByStatus", func(t *testing.T) { testListByStatus(t, newStore(t)) })
}

func testCreateAndGet(t *testing.T, s app.Store) {
	ctx := context.Background()
	order := testutil.NewOrder("ord-1", base)

	if err := s.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateOrder(ctx, order); !errors.Is(err, domain.ErrOrderExists) {
		t.Fatalf("expected ErrOrderExists, got %v", err)
	}

	got, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Price.Equal(order.Price) || got.Currency != order.Currency {
		t.Fatalf("price round trip: got %s %s", got.Price, got.Currency)
	}
	if !got.CreatedAt.Equal(order.CreatedAt) || got.Sizing != order.Sizing || got.Credentials != order.Credentials {
		t.Fatalf("order round trip mismatch: %+v", got)
	}
	if got.Status != domain.OrderStatusCreated {
		t.Fatalf("expected created, got %s", got.Status)
	}

	if _, err := s.GetOrder(ctx, "missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func testTransitionCAS(t *testing.T, s app.Store) {
	ctx := context.Background()
	mustCreate(t, s, testutil.NewOrder("ord-1", base))

	at := base.Add(time.Minute)
	got, err := s.TransitionOrder(ctx, "ord-1", domain.OrderStatusCreated, domain.OrderStatusPaid,
		domain.OrderUpdate{PayerEmail: "payer@shop.test", At: at})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if got.Status != domain.OrderStatusPaid || got.PayerEmail != "payer@shop.test" || !got.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected order after transition %+v", got)
	}

	if _, err := s.TransitionOrder(ctx, "ord-1", domain.OrderStatusCreated, domain.OrderStatusPaid, domain.OrderUpdate{}); !errors.Is(err, domain.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus, got %v", err)
	}
	if _, err := s.TransitionOrder(ctx, "ord-1", domain.OrderStatusPaid, domain.OrderStatusExpired, domain.OrderUpdate{}); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition, got %v", err)
	}
	if _, err := s.TransitionOrder(ctx, "missing", domain.OrderStatusCreated, domain.OrderStatusPaid, domain.OrderUpdate{}); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}

	stored, err := s.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.PayerEmail != "payer@shop.test" {
		t.Fatalf("empty update must not clear payer email, got %q", stored.PayerEmail)
	}
}

func testConcurrentTransition(t *testing.T, s app.Store) {
	ctx := context.Background()
	mustCreate(t, s, testutil.NewOrder("ord-1", base))

	const workers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		to := domain.OrderStatusPaid
		if i%2 == 1 {
			to = domain.OrderStatusPaymentFailed
		}
		go func(to domain.OrderStatus) {
			defer wg.Done()
			_, err := s.TransitionOrder(ctx, "ord-1", domain.OrderStatusCreated, to, domain.OrderUpdate{})
			switch {
			case err == nil:
				mu.Lock()
				wins++
				mu.Unlock()
			case !errors.Is(err, domain.ErrStaleStatus):
				t.Errorf("unexpected error: %v", err)
			}
		}(to)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", wins)
	}
}

func testActivateOrder(t *testing.T, s app.Store) {
	ctx := context.Background()
	order := testutil.NewOrder("ord-1", base)
	order.Status = domain.OrderStatusPaid
	mustCreate(t, s, order)

	res := testutil.NewResource("srv-1", "ord-1", base.Add(time.Hour), order.TermDays)
	if _, err := s.ActivateOrder(ctx, "ord-1", res); !errors.Is(err, domain.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus before provisioning, got %v", err)
	}
	if _, err := s.GetResourceByOrder(ctx, "ord-1"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("failed activation must not leave a resource, got %v", err)
	}

	if _, err := s.TransitionOrder(ctx, "ord-1", domain.OrderStatusPaid, domain.OrderStatusProvisioning, domain.OrderUpdate{}); err != nil {
		t.Fatalf("to provisioning: %v", err)
	}
	got, err := s.ActivateOrder(ctx, "ord-1", res)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	if got.Status != domain.OrderStatusActive {
		t.Fatalf("expected active, got %s", got.Status)
	}

	stored, err := s.GetResourceByOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if !stored.ExpiresAt.Equal(res.ExpiresAt) || !stored.ProvisionedAt.Equal(res.ProvisionedAt) {
		t.Fatalf("resource times changed in storage: %+v vs %+v", stored, res)
	}
	if stored.ExpiresAt.Sub(stored.ProvisionedAt) != 30*24*time.Hour {
		t.Fatalf("expected 30 day term, got %s", stored.ExpiresAt.Sub(stored.ProvisionedAt))
	}

	if _, err := s.ActivateOrder(ctx, "ord-1", res); !errors.Is(err, domain.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus on second activation, got %v", err)
	}
}

func testReclaimable(t *testing.T, s app.Store) {
	ctx := context.Background()
	now := base.Add(48 * time.Hour)

	seedActive(t, s, "due", now.Add(-24*time.Hour), 1) // expires exactly at now
	seedActive(t, s, "future", now.Add(-24*time.Hour+time.Second), 1)
	seedActive(t, s, "stuck", now.Add(-time.Hour), 30)

	if _, err := s.TransitionResource(ctx, "srv-stuck", domain.ResourceStatusActive, domain.ResourceStatusReclaiming); err != nil {
		t.Fatalf("claim: %v", err)
	}

	got, err := s.ListReclaimable(ctx, now)
	if err != nil {
		t.Fatalf("list reclaimable: %v", err)
	}
	ids := map[string]bool{}
	for _, r := range got {
		ids[r.ID] = true
	}
	if len(got) != 2 || !ids["srv-due"] || !ids["srv-stuck"] {
		t.Fatalf("expected srv-due and srv-stuck, got %+v", got)
	}
}

func testReclaimLifecycle(t *testing.T, s app.Store) {
	ctx := context.Background()
	seedActive(t, s, "ord-1", base, 1)

	if _, err := s.CompleteReclaim(ctx, "srv-ord-1", base); !errors.Is(err, domain.ErrIllegalTransition) {
		t.Fatalf("expected ErrIllegalTransition when not claimed, got %v", err)
	}

	if _, err := s.TransitionResource(ctx, "srv-ord-1", domain.ResourceStatusActive, domain.ResourceStatusReclaiming); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.TransitionResource(ctx, "srv-ord-1", domain.ResourceStatusActive, domain.ResourceStatusReclaiming); !errors.Is(err, domain.ErrStaleStatus) {
		t.Fatalf("expected ErrStaleStatus on double claim, got %v", err)
	}
	if _, err := s.TransitionResource(ctx, "missing", domain.ResourceStatusActive, domain.ResourceStatusReclaiming); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound, got %v", err)
	}

	failed, err := s.RecordReclaimFailure(ctx, "srv-ord-1", "panel unreachable")
	if err != nil {
		t.Fatalf("record failure: %v", err)
	}
	if failed.ReclaimAttempts != 1 || failed.LastError != "panel unreachable" || failed.Status != domain.ResourceStatusReclaiming {
		t.Fatalf("unexpected resource after failure %+v", failed)
	}

	at := base.Add(25 * time.Hour)
	order, err := s.CompleteReclaim(ctx, "srv-ord-1", at)
	if err != nil {
		t.Fatalf("complete reclaim: %v", err)
	}
	if order.Status != domain.OrderStatusExpired || !order.UpdatedAt.Equal(at) {
		t.Fatalf("unexpected order after reclaim %+v", order)
	}
	if _, err := s.GetResourceByOrder(ctx, "ord-1"); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("expected resource removed, got %v", err)
	}
	if _, err := s.CompleteReclaim(ctx, "srv-ord-1", at); !errors.Is(err, domain.ErrResourceNotFound) {
		t.Fatalf("expected ErrResourceNotFound on second completion, got %v", err)
	}

	resources, err := s.ListResources(ctx)
	if err != nil {
		t.Fatalf("list resources: %v", err)
	}
	if len(resources) != 0 {
		t.Fatalf("expected no resources, got %+v", resources)
	}
}

func testListByStatus(t *testing.T, s app.Store) {
	ctx := context.Background()
	mustCreate(t, s, testutil.NewOrder("ord-a", base))
	mustCreate(t, s, testutil.NewOrder("ord-b", base.Add(time.Second)))
	if _, err := s.TransitionOrder(ctx, "ord-b", domain.OrderStatusCreated, domain.OrderStatusPaid, domain.OrderUpdate{}); err != nil {
		t.Fatalf("transition: %v", err)
	}

	paid, err := s.ListOrdersByStatus(ctx, domain.OrderStatusPaid)
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(paid) != 1 || paid[0].ID != "ord-b" {
		t.Fatalf("expected only ord-b, got %+v", paid)
	}

	all, err := s.ListOrders(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 || all[0].ID != "ord-a" {
		t.Fatalf("expected both orders oldest first, got %+v", all)
	}
}

func mustCreate(t *testing.T, s app.Store, o domain.Order) {
	t.Helper()
	if err := s.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("create %s: %v", o.ID, err)
	}
}

// seedActive stores an active order with resource "srv-<id>".
func seedActive(t *testing.T, s app.Store, id string, provisionedAt time.Time, termDays int) {
	t.Helper()
	ctx := context.Background()
	order := testutil.NewOrder(id, provisionedAt)
	order.TermDays = termDays
	order.Status = domain.OrderStatusProvisioning
	mustCreate(t, s, order)
	if _, err := s.ActivateOrder(ctx, id, testutil.NewResource("srv-"+id, id, provisionedAt, termDays)); err != nil {
		t.Fatalf("activate %s: %v", id, err)
	}
}

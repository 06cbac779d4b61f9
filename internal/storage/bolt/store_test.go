package bolt_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/storage/bolt"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/storage/storetest"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/testutil"
)

func openTemp(t *testing.T) *bolt.Store {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "shop.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.Store { return openTemp(t) })
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := bolt.Open("  "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shop.db")
	store, err := bolt.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx := context.Background()
	at := time.Date(2025, 10, 26, 1, 30, 0, 0, time.UTC)
	order := testutil.NewOrder("ord-1", at)
	order.Status = domain.OrderStatusProvisioning
	if err := store.CreateOrder(ctx, order); err != nil {
		t.Fatalf("create: %v", err)
	}
	res := testutil.NewResource("srv-1", "ord-1", at, 7)
	if _, err := store.ActivateOrder(ctx, "ord-1", res); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := bolt.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetResourceByOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get resource: %v", err)
	}
	if !got.ExpiresAt.Equal(res.ExpiresAt) {
		t.Fatalf("expected expiry %s, got %s", res.ExpiresAt, got.ExpiresAt)
	}
	o, err := reopened.GetOrder(ctx, "ord-1")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if o.Status != domain.OrderStatusActive {
		t.Fatalf("expected active, got %s", o.Status)
	}
}

func TestStore_CanceledContext(t *testing.T) {
	store := openTemp(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.GetOrder(ctx, "ord-1"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

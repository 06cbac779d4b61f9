package app

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/shopspring/decimal"
)

// fakeStore is an in-memory store with the same CAS semantics as the real ones.
type fakeStore struct {
	mu        sync.Mutex
	orders    map[string]domain.Order
	resources map[string]domain.ProvisionedResource
	// history records every committed order status change as "id:from->to".
	history []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[string]domain.Order),
		resources: make(map[string]domain.ProvisionedResource),
	}
}

func (f *fakeStore) CreateOrder(_ context.Context, order domain.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.orders[order.ID]; ok {
		return domain.ErrOrderExists
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeStore) GetOrder(_ context.Context, id string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakeStore) ListOrders(context.Context) ([]domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Order, 0, len(f.orders))
	for _, o := range f.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	all, _ := f.ListOrders(ctx)
	var out []domain.Order
	for _, o := range all {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionOrder(_ context.Context, id string, from, to domain.OrderStatus, upd domain.OrderUpdate) (domain.Order, error) {
	if err := domain.CheckOrderTransition(from, to); err != nil {
		return domain.Order{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != from {
		return domain.Order{}, domain.ErrStaleStatus
	}
	o.Apply(to, upd)
	f.orders[id] = o
	f.history = append(f.history, id+":"+string(from)+"->"+string(to))
	return o, nil
}

func (f *fakeStore) ActivateOrder(_ context.Context, orderID string, res domain.ProvisionedResource) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderStatusProvisioning {
		return domain.Order{}, domain.ErrStaleStatus
	}
	for _, r := range f.resources {
		if r.OrderID == orderID {
			return domain.Order{}, domain.ErrResourceExists
		}
	}
	f.resources[res.ID] = res
	o.Apply(domain.OrderStatusActive, domain.OrderUpdate{At: res.ProvisionedAt})
	f.orders[orderID] = o
	f.history = append(f.history, orderID+":provisioning->active")
	return o, nil
}

func (f *fakeStore) GetResourceByOrder(_ context.Context, orderID string) (domain.ProvisionedResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.resources {
		if r.OrderID == orderID {
			return r, nil
		}
	}
	return domain.ProvisionedResource{}, domain.ErrResourceNotFound
}

func (f *fakeStore) ListResources(context.Context) ([]domain.ProvisionedResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ProvisionedResource, 0, len(f.resources))
	for _, r := range f.resources {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) ListReclaimable(ctx context.Context, now time.Time) ([]domain.ProvisionedResource, error) {
	all, _ := f.ListResources(ctx)
	var out []domain.ProvisionedResource
	for _, r := range all {
		if r.Status == domain.ResourceStatusReclaiming || (r.Status == domain.ResourceStatusActive && r.Due(now)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) TransitionResource(_ context.Context, id string, from, to domain.ResourceStatus) (domain.ProvisionedResource, error) {
	if err := domain.CheckResourceTransition(from, to); err != nil {
		return domain.ProvisionedResource{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return domain.ProvisionedResource{}, domain.ErrResourceNotFound
	}
	if r.Status != from {
		return domain.ProvisionedResource{}, domain.ErrStaleStatus
	}
	r.Status = to
	f.resources[id] = r
	return r, nil
}

func (f *fakeStore) RecordReclaimFailure(_ context.Context, id, detail string) (domain.ProvisionedResource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return domain.ProvisionedResource{}, domain.ErrResourceNotFound
	}
	r.ReclaimAttempts++
	r.LastError = detail
	f.resources[id] = r
	return r, nil
}

func (f *fakeStore) CompleteReclaim(_ context.Context, id string, at time.Time) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resources[id]
	if !ok {
		return domain.Order{}, domain.ErrResourceNotFound
	}
	if err := domain.CheckResourceTransition(r.Status, domain.ResourceStatusReclaimed); err != nil {
		return domain.Order{}, err
	}
	o, ok := f.orders[r.OrderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if o.Status != domain.OrderStatusActive {
		return domain.Order{}, domain.ErrStaleStatus
	}
	o.Apply(domain.OrderStatusExpired, domain.OrderUpdate{At: at})
	f.orders[o.ID] = o
	delete(f.resources, id)
	f.history = append(f.history, o.ID+":active->expired")
	return o, nil
}

func (f *fakeStore) putOrder(o domain.Order) {
	f.mu.Lock()
	f.orders[o.ID] = o
	f.mu.Unlock()
}

func (f *fakeStore) putResource(r domain.ProvisionedResource) {
	f.mu.Lock()
	f.resources[r.ID] = r
	f.mu.Unlock()
}

func (f *fakeStore) order(id string) domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[id]
}

func (f *fakeStore) resourceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resources)
}

type fakeGateway struct {
	mu         sync.Mutex
	nextID     int
	createErr  error
	captureErr error
	outcome    domain.CaptureOutcome
	creates    int
	captures   int
	// captureGate, when set, holds CaptureOrder until it is closed or the
	// call's context ends.
	captureGate    chan struct{}
	captureStarted chan struct{}
}

func (g *fakeGateway) CreateOrder(_ context.Context, amount decimal.Decimal, currency, description string) (domain.GatewayOrder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.creates++
	if g.createErr != nil {
		return domain.GatewayOrder{}, g.createErr
	}
	g.nextID++
	id := "PAY-" + strconv.Itoa(g.nextID)
	return domain.GatewayOrder{ID: id, RedirectURL: "https://pay.example/approve?token=" + id}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, _ string) (domain.CaptureOutcome, error) {
	if g.captureStarted != nil {
		g.captureStarted <- struct{}{}
	}
	if g.captureGate != nil {
		select {
		case <-g.captureGate:
		case <-ctx.Done():
			return domain.CaptureOutcome{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.captures++
	if g.captureErr != nil {
		return domain.CaptureOutcome{}, g.captureErr
	}
	return g.outcome, nil
}

func (g *fakeGateway) calls() (creates, captures int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.creates, g.captures
}

type fakeBackend struct {
	creates atomic.Int32
	deletes atomic.Int32

	createErr error
	createID  string
	deleteErr error
	// createGate, when set, blocks Create until it is closed.
	createGate chan struct{}
	// createStarted is signalled once Create has been entered.
	createStarted chan struct{}
	deleteGate    chan struct{}
	deleteStarted chan struct{}

	mu      sync.Mutex
	deleted []string
}

func (b *fakeBackend) Create(ctx context.Context, spec domain.ProvisionSpec) (string, error) {
	b.creates.Add(1)
	if b.createStarted != nil {
		b.createStarted <- struct{}{}
	}
	if b.createGate != nil {
		<-b.createGate
	}
	if b.createErr != nil {
		return "", b.createErr
	}
	if b.createID != "" {
		return b.createID, nil
	}
	return "srv-" + spec.OrderID, nil
}

func (b *fakeBackend) Delete(ctx context.Context, id string) error {
	b.deletes.Add(1)
	if b.deleteStarted != nil {
		b.deleteStarted <- struct{}{}
	}
	if b.deleteGate != nil {
		select {
		case <-b.deleteGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if b.deleteErr != nil {
		return b.deleteErr
	}
	b.mu.Lock()
	b.deleted = append(b.deleted, id)
	b.mu.Unlock()
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []domain.Message
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, msg domain.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return n.err
}

func (n *fakeNotifier) to(addr string) []domain.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []domain.Message
	for _, m := range n.sent {
		if m.To == addr {
			out = append(out, m)
		}
	}
	return out
}

// activateFailStore fails ActivateOrder for one order id.
type activateFailStore struct {
	*fakeStore
	failID string
}

func (f *activateFailStore) ActivateOrder(ctx context.Context, orderID string, res domain.ProvisionedResource) (domain.Order, error) {
	if orderID == f.failID {
		return domain.Order{}, errBoom
	}
	return f.fakeStore.ActivateOrder(ctx, orderID, res)
}

var errBoom = errors.New("boom")

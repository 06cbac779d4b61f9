// Package bolt is a single-file store for deployments without Postgres. Every
// compare-and-swap runs inside one bbolt write transaction.
package bolt

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"go.etcd.io/bbolt"
)

var (
	ordersBucket           = []byte("orders")
	resourcesBucket        = []byte("resources")
	resourcesByOrderBucket = []byte("resources_by_order")
)

// Store provides a BoltDB-backed order and resource store.
type Store struct {
	db *bbolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{ordersBucket, resourcesBucket, resourcesByOrderBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(o.ID) == "" {
		return domain.ErrInvalidID
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(ordersBucket)
		if b.Get([]byte(o.ID)) != nil {
			return domain.ErrOrderExists
		}
		return putJSON(b, o.ID, o)
	})
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var o domain.Order
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		o, err = getOrder(tx, id)
		return err
	})
	return o, err
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.listOrders(ctx, func(domain.Order) bool { return true })
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return s.listOrders(ctx, func(o domain.Order) bool { return o.Status == status })
}

func (s *Store) listOrders(ctx context.Context, keep func(domain.Order) bool) ([]domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(ordersBucket).ForEach(func(_, v []byte) error {
			var o domain.Order
			if err := json.Unmarshal(v, &o); err != nil {
				return fmt.Errorf("unmarshal order: %w", err)
			}
			if keep(o) {
				orders = append(orders, o)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

func (s *Store) TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus, upd domain.OrderUpdate) (domain.Order, error) {
	if err := domain.CheckOrderTransition(from, to); err != nil {
		return domain.Order{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var out domain.Order
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		out, err = transitionOrder(tx, id, from, to, upd)
		return err
	})
	return out, err
}

func (s *Store) ActivateOrder(ctx context.Context, orderID string, res domain.ProvisionedResource) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var out domain.Order
	err := s.db.Update(func(tx *bbolt.Tx) error {
		o, err := getOrder(tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusProvisioning {
			return domain.ErrStaleStatus
		}
		byOrder := tx.Bucket(resourcesByOrderBucket)
		resources := tx.Bucket(resourcesBucket)
		if byOrder.Get([]byte(orderID)) != nil || resources.Get([]byte(res.ID)) != nil {
			return domain.ErrResourceExists
		}
		res.OrderID = orderID
		if err := putJSON(resources, res.ID, res); err != nil {
			return err
		}
		if err := byOrder.Put([]byte(orderID), []byte(res.ID)); err != nil {
			return fmt.Errorf("index resource: %w", err)
		}
		out, err = transitionOrder(tx, orderID, domain.OrderStatusProvisioning, domain.OrderStatusActive, domain.OrderUpdate{At: res.ProvisionedAt})
		return err
	})
	return out, err
}

func (s *Store) GetResourceByOrder(ctx context.Context, orderID string) (domain.ProvisionedResource, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProvisionedResource{}, err
	}
	var r domain.ProvisionedResource
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(resourcesByOrderBucket).Get([]byte(orderID))
		if id == nil {
			return domain.ErrResourceNotFound
		}
		var err error
		r, err = getResource(tx, string(id))
		return err
	})
	return r, err
}

func (s *Store) ListResources(ctx context.Context) ([]domain.ProvisionedResource, error) {
	return s.listResources(ctx, func(domain.ProvisionedResource) bool { return true })
}

func (s *Store) ListReclaimable(ctx context.Context, now time.Time) ([]domain.ProvisionedResource, error) {
	return s.listResources(ctx, func(r domain.ProvisionedResource) bool {
		return r.Status == domain.ResourceStatusReclaiming || (r.Status == domain.ResourceStatusActive && r.Due(now))
	})
}

func (s *Store) listResources(ctx context.Context, keep func(domain.ProvisionedResource) bool) ([]domain.ProvisionedResource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resources := make([]domain.ProvisionedResource, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(resourcesBucket).ForEach(func(_, v []byte) error {
			var r domain.ProvisionedResource
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal resource: %w", err)
			}
			if keep(r) {
				resources = append(resources, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(resources, func(i, j int) bool {
		if !resources[i].ExpiresAt.Equal(resources[j].ExpiresAt) {
			return resources[i].ExpiresAt.Before(resources[j].ExpiresAt)
		}
		return resources[i].ID < resources[j].ID
	})
	return resources, nil
}

func (s *Store) TransitionResource(ctx context.Context, id string, from, to domain.ResourceStatus) (domain.ProvisionedResource, error) {
	if err := domain.CheckResourceTransition(from, to); err != nil {
		return domain.ProvisionedResource{}, err
	}
	return s.updateResource(ctx, id, func(r *domain.ProvisionedResource) error {
		if r.Status != from {
			return domain.ErrStaleStatus
		}
		r.Status = to
		return nil
	})
}

func (s *Store) RecordReclaimFailure(ctx context.Context, id, detail string) (domain.ProvisionedResource, error) {
	return s.updateResource(ctx, id, func(r *domain.ProvisionedResource) error {
		r.ReclaimAttempts++
		r.LastError = detail
		return nil
	})
}

func (s *Store) updateResource(ctx context.Context, id string, mutate func(*domain.ProvisionedResource) error) (domain.ProvisionedResource, error) {
	if err := ctx.Err(); err != nil {
		return domain.ProvisionedResource{}, err
	}
	var out domain.ProvisionedResource
	err := s.db.Update(func(tx *bbolt.Tx) error {
		r, err := getResource(tx, id)
		if err != nil {
			return err
		}
		if err := mutate(&r); err != nil {
			return err
		}
		out = r
		return putJSON(tx.Bucket(resourcesBucket), id, r)
	})
	return out, err
}

func (s *Store) CompleteReclaim(ctx context.Context, id string, at time.Time) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}
	var out domain.Order
	err := s.db.Update(func(tx *bbolt.Tx) error {
		r, err := getResource(tx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckResourceTransition(r.Status, domain.ResourceStatusReclaimed); err != nil {
			return err
		}
		out, err = transitionOrder(tx, r.OrderID, domain.OrderStatusActive, domain.OrderStatusExpired, domain.OrderUpdate{At: at})
		if err != nil {
			return err
		}
		if err := tx.Bucket(resourcesBucket).Delete([]byte(id)); err != nil {
			return fmt.Errorf("delete resource: %w", err)
		}
		return tx.Bucket(resourcesByOrderBucket).Delete([]byte(r.OrderID))
	})
	return out, err
}

func transitionOrder(tx *bbolt.Tx, id string, from, to domain.OrderStatus, upd domain.OrderUpdate) (domain.Order, error) {
	o, err := getOrder(tx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if o.Status != from {
		return domain.Order{}, domain.ErrStaleStatus
	}
	o.Apply(to, upd)
	if err := putJSON(tx.Bucket(ordersBucket), id, o); err != nil {
		return domain.Order{}, err
	}
	return o, nil
}

func getOrder(tx *bbolt.Tx, id string) (domain.Order, error) {
	payload := tx.Bucket(ordersBucket).Get([]byte(id))
	if payload == nil {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	var o domain.Order
	if err := json.Unmarshal(payload, &o); err != nil {
		return domain.Order{}, fmt.Errorf("unmarshal order: %w", err)
	}
	return o, nil
}

func getResource(tx *bbolt.Tx, id string) (domain.ProvisionedResource, error) {
	payload := tx.Bucket(resourcesBucket).Get([]byte(id))
	if payload == nil {
		return domain.ProvisionedResource{}, domain.ErrResourceNotFound
	}
	var r domain.ProvisionedResource
	if err := json.Unmarshal(payload, &r); err != nil {
		return domain.ProvisionedResource{}, fmt.Errorf("unmarshal resource: %w", err)
	}
	return r, nil
}

func putJSON(b *bbolt.Bucket, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return b.Put([]byte(key), payload)
}

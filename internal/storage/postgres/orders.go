package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, resource_kind, memory_mb, cpu_percent, disk_mb, term_days, display_name,
	username, password, buyer_email, payer_email, price::text, currency, status, status_detail,
	created_at, updated_at`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		price  string
		status string
	)
	err := row.Scan(
		&o.ID, &o.ResourceKind, &o.Sizing.MemoryMB, &o.Sizing.CPUPercent, &o.Sizing.DiskMB, &o.TermDays,
		&o.DisplayName, &o.Credentials.Username, &o.Credentials.Password, &o.BuyerEmail, &o.PayerEmail,
		&price, &o.Currency, &status, &o.StatusDetail, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.Price, err = decimal.NewFromString(price)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse price %q: %w", price, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func (s *Store) CreateOrder(ctx context.Context, o domain.Order) error {
	const stmt = `
INSERT INTO orders (id, resource_kind, memory_mb, cpu_percent, disk_mb, term_days, display_name,
	username, password, buyer_email, payer_email, price, currency, status, status_detail, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::numeric, $13, $14, $15, $16, $17)`

	_, err := s.exec(ctx, stmt,
		o.ID, o.ResourceKind, o.Sizing.MemoryMB, o.Sizing.CPUPercent, o.Sizing.DiskMB, o.TermDays,
		o.DisplayName, o.Credentials.Username, o.Credentials.Password, o.BuyerEmail, o.PayerEmail,
		o.Price.String(), o.Currency, string(o.Status), o.StatusDetail, o.CreatedAt.UTC(), o.UpdatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	o, err := scanOrder(s.queryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at, id`)
}

func (s *Store) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return s.listOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at, id`, string(status))
}

func (s *Store) listOrders(ctx context.Context, sql string, args ...any) ([]domain.Order, error) {
	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// TransitionOrder moves the order from one status to another only if it is
// still in from. A lost race reports ErrStaleStatus.
func (s *Store) TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus, upd domain.OrderUpdate) (domain.Order, error) {
	if err := domain.CheckOrderTransition(from, to); err != nil {
		return domain.Order{}, err
	}

	const stmt = `
UPDATE orders
SET status = $3,
	payer_email = CASE WHEN $4 <> '' THEN $4 ELSE payer_email END,
	status_detail = CASE WHEN $5 <> '' THEN $5 ELSE status_detail END,
	updated_at = COALESCE($6, updated_at)
WHERE id = $1 AND status = $2
RETURNING ` + orderColumns

	o, err := scanOrder(s.queryRow(ctx, stmt, id, string(from), string(to), upd.PayerEmail, upd.StatusDetail, nullTime(upd.At)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Order{}, s.missOrStale(ctx, id)
		}
		return domain.Order{}, fmt.Errorf("transition order: %w", err)
	}
	return o, nil
}

// ActivateOrder records the resource and moves the order from provisioning to
// active in one transaction, so an active order always has its resource.
func (s *Store) ActivateOrder(ctx context.Context, orderID string, res domain.ProvisionedResource) (domain.Order, error) {
	if err := domain.CheckOrderTransition(domain.OrderStatusProvisioning, domain.OrderStatusActive); err != nil {
		return domain.Order{}, err
	}

	var out domain.Order
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		var status string
		err := s.queryRow(txCtx, `SELECT status FROM orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if domain.OrderStatus(status) != domain.OrderStatusProvisioning {
			return domain.ErrStaleStatus
		}

		if err := s.insertResource(txCtx, res); err != nil {
			return err
		}

		out, err = scanOrder(s.queryRow(txCtx, `
UPDATE orders SET status = $2, updated_at = $3
WHERE id = $1
RETURNING `+orderColumns, orderID, string(domain.OrderStatusActive), res.ProvisionedAt.UTC()))
		if err != nil {
			return fmt.Errorf("activate order: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return out, nil
}

func (s *Store) missOrStale(ctx context.Context, id string) error {
	var exists bool
	if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check order: %w", err)
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return domain.ErrStaleStatus
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/jackc/pgx/v5"
)

const resourceColumns = `id, order_id, status, provisioned_at, expires_at, reclaim_attempts, last_error`

func scanResource(row pgx.Row) (domain.ProvisionedResource, error) {
	var (
		r      domain.ProvisionedResource
		status string
	)
	if err := row.Scan(&r.ID, &r.OrderID, &status, &r.ProvisionedAt, &r.ExpiresAt, &r.ReclaimAttempts, &r.LastError); err != nil {
		return domain.ProvisionedResource{}, err
	}
	r.Status = domain.ResourceStatus(status)
	r.ProvisionedAt = r.ProvisionedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return r, nil
}

func (s *Store) insertResource(ctx context.Context, r domain.ProvisionedResource) error {
	_, err := s.exec(ctx, `
INSERT INTO provisioned_resources (`+resourceColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.OrderID, string(r.Status), r.ProvisionedAt.UTC(), r.ExpiresAt.UTC(), r.ReclaimAttempts, r.LastError,
	)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return domain.ErrResourceExists
		case isForeignKeyViolation(err):
			return domain.ErrOrderNotFound
		}
		return fmt.Errorf("insert resource: %w", err)
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, id string) (domain.ProvisionedResource, error) {
	r, err := scanResource(s.queryRow(ctx, `SELECT `+resourceColumns+` FROM provisioned_resources WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProvisionedResource{}, domain.ErrResourceNotFound
		}
		return domain.ProvisionedResource{}, fmt.Errorf("get resource: %w", err)
	}
	return r, nil
}

func (s *Store) GetResourceByOrder(ctx context.Context, orderID string) (domain.ProvisionedResource, error) {
	r, err := scanResource(s.queryRow(ctx, `SELECT `+resourceColumns+` FROM provisioned_resources WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProvisionedResource{}, domain.ErrResourceNotFound
		}
		return domain.ProvisionedResource{}, fmt.Errorf("get resource by order: %w", err)
	}
	return r, nil
}

func (s *Store) ListResources(ctx context.Context) ([]domain.ProvisionedResource, error) {
	return s.listResources(ctx, `SELECT `+resourceColumns+` FROM provisioned_resources ORDER BY expires_at, id`)
}

// ListReclaimable returns active resources due at now plus every resource a
// previous sweep left in reclaiming.
func (s *Store) ListReclaimable(ctx context.Context, now time.Time) ([]domain.ProvisionedResource, error) {
	return s.listResources(ctx, `
SELECT `+resourceColumns+`
FROM provisioned_resources
WHERE (status = $1 AND expires_at <= $2) OR status = $3
ORDER BY expires_at, id`,
		string(domain.ResourceStatusActive), now.UTC(), string(domain.ResourceStatusReclaiming))
}

func (s *Store) listResources(ctx context.Context, sql string, args ...any) ([]domain.ProvisionedResource, error) {
	rows, err := s.query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	defer rows.Close()

	resources := make([]domain.ProvisionedResource, 0)
	for rows.Next() {
		r, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return resources, nil
}

func (s *Store) TransitionResource(ctx context.Context, id string, from, to domain.ResourceStatus) (domain.ProvisionedResource, error) {
	if err := domain.CheckResourceTransition(from, to); err != nil {
		return domain.ProvisionedResource{}, err
	}

	r, err := scanResource(s.queryRow(ctx, `
UPDATE provisioned_resources SET status = $3
WHERE id = $1 AND status = $2
RETURNING `+resourceColumns, id, string(from), string(to)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := s.GetResource(ctx, id); gerr != nil {
				return domain.ProvisionedResource{}, gerr
			}
			return domain.ProvisionedResource{}, domain.ErrStaleStatus
		}
		return domain.ProvisionedResource{}, fmt.Errorf("transition resource: %w", err)
	}
	return r, nil
}

func (s *Store) RecordReclaimFailure(ctx context.Context, id, detail string) (domain.ProvisionedResource, error) {
	r, err := scanResource(s.queryRow(ctx, `
UPDATE provisioned_resources
SET reclaim_attempts = reclaim_attempts + 1, last_error = $2
WHERE id = $1
RETURNING `+resourceColumns, id, detail))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProvisionedResource{}, domain.ErrResourceNotFound
		}
		return domain.ProvisionedResource{}, fmt.Errorf("record reclaim failure: %w", err)
	}
	return r, nil
}

// CompleteReclaim expires the order and removes the resource record in one
// transaction. The resource must be in reclaiming and its order active.
func (s *Store) CompleteReclaim(ctx context.Context, id string, at time.Time) (domain.Order, error) {
	var out domain.Order
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		res, err := scanResource(s.queryRow(txCtx, `SELECT `+resourceColumns+` FROM provisioned_resources WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrResourceNotFound
			}
			return fmt.Errorf("lock resource: %w", err)
		}
		if err := domain.CheckResourceTransition(res.Status, domain.ResourceStatusReclaimed); err != nil {
			return err
		}

		out, err = s.TransitionOrder(txCtx, res.OrderID, domain.OrderStatusActive, domain.OrderStatusExpired, domain.OrderUpdate{At: at})
		if err != nil {
			return err
		}

		if _, err := s.exec(txCtx, `DELETE FROM provisioned_resources WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete resource: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return out, nil
}

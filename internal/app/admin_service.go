package app

import (
	"context"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

type AdminRepository interface {
	ListOrders(ctx context.Context) ([]domain.Order, error)
	ListResources(ctx context.Context) ([]domain.ProvisionedResource, error)
}

// Sweeper runs one reclaim pass.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

type AdminService struct {
	repo    AdminRepository
	sweeper Sweeper
}

func NewAdminService(repo AdminRepository, sweeper Sweeper) *AdminService {
	return &AdminService{
		repo:    repo,
		sweeper: sweeper,
	}
}

func (s *AdminService) ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	orders, err := s.repo.ListOrders(ctx)
	if err != nil {
		return nil, err
	}
	if status == "" {
		return orders, nil
	}
	if !status.Valid() {
		return nil, &domain.ValidationError{Field: "status", Reason: "unknown status"}
	}
	filtered := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if o.Status == status {
			filtered = append(filtered, o)
		}
	}
	return filtered, nil
}

// ListResources returns every live resource, including ones stuck in reclaiming.
func (s *AdminService) ListResources(ctx context.Context) ([]domain.ProvisionedResource, error) {
	return s.repo.ListResources(ctx)
}

func (s *AdminService) TriggerSweep(ctx context.Context) (SweepReport, error) {
	return s.sweeper.Sweep(ctx)
}

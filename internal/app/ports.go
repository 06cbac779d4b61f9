package app

import (
	"context"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/shopspring/decimal"
)

// PaymentGateway creates payable orders and captures them.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount decimal.Decimal, currency, description string) (domain.GatewayOrder, error)
	CaptureOrder(ctx context.Context, gatewayOrderID string) (domain.CaptureOutcome, error)
}

// ProvisioningBackend creates and deletes hosted panels. Delete returns
// domain.ErrResourceGone when the resource no longer exists upstream.
type ProvisioningBackend interface {
	Create(ctx context.Context, spec domain.ProvisionSpec) (string, error)
	Delete(ctx context.Context, resourceID string) error
}

// Notifier delivers a message. Delivery is best-effort.
type Notifier interface {
	Send(ctx context.Context, msg domain.Message) error
}

// Store is everything the services need from persistence. Both the Postgres
// and the bbolt stores satisfy it.
type Store interface {
	OrderRepository
	ReclaimRepository
	AdminRepository
}

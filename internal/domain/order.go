package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated         OrderStatus = "created"
	OrderStatusPaid            OrderStatus = "paid"
	OrderStatusProvisioning    OrderStatus = "provisioning"
	OrderStatusActive          OrderStatus = "active"
	OrderStatusProvisionFailed OrderStatus = "provision_failed"
	OrderStatusPaymentFailed   OrderStatus = "payment_failed"
	OrderStatusExpired         OrderStatus = "expired"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:      {OrderStatusPaid, OrderStatusPaymentFailed},
	OrderStatusPaid:         {OrderStatusProvisioning},
	OrderStatusProvisioning: {OrderStatusActive, OrderStatusProvisionFailed},
	OrderStatusActive:       {OrderStatusExpired},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaid, OrderStatusProvisioning, OrderStatusActive,
		OrderStatusProvisionFailed, OrderStatusPaymentFailed, OrderStatusExpired:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CheckOrderTransition returns ErrIllegalTransition when from->to is not in the table.
func CheckOrderTransition(from, to OrderStatus) error {
	if !from.CanTransitionTo(to) {
		return &TransitionError{Kind: "order", From: string(from), To: string(to)}
	}
	return nil
}

// Sizing describes the resources requested for a panel.
type Sizing struct {
	MemoryMB   int `json:"memoryMB"`
	CPUPercent int `json:"cpuPercent"`
	DiskMB     int `json:"diskMB"`
}

// Credentials are chosen by the buyer for the provisioned instance.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Order represents a purchase intent for a time-bounded panel. ID is assigned
// by the payment gateway.
type Order struct {
	ID           string          `json:"id"`
	ResourceKind string          `json:"resourceKind"`
	Sizing       Sizing          `json:"sizing"`
	TermDays     int             `json:"termDays"`
	DisplayName  string          `json:"displayName"`
	Credentials  Credentials     `json:"credentials"`
	BuyerEmail   string          `json:"buyerEmail"`
	PayerEmail   string          `json:"payerEmail,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	Status       OrderStatus     `json:"status"`
	StatusDetail string          `json:"statusDetail,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// OrderUpdate carries the optional fields written together with a status change.
type OrderUpdate struct {
	PayerEmail   string
	StatusDetail string
	At           time.Time
}

// Apply moves o to status and copies non-empty update fields.
func (o *Order) Apply(status OrderStatus, upd OrderUpdate) {
	o.Status = status
	if upd.PayerEmail != "" {
		o.PayerEmail = upd.PayerEmail
	}
	if upd.StatusDetail != "" {
		o.StatusDetail = upd.StatusDetail
	}
	if !upd.At.IsZero() {
		o.UpdatedAt = upd.At
	}
}

package http

import (
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

// orderResponse never carries the buyer's panel credentials.
type orderResponse struct {
	OrderID      string         `json:"orderId"`
	Status       string         `json:"status"`
	ResourceKind string         `json:"resourceKind"`
	Sizing       domain.Sizing  `json:"sizing"`
	TermDays     int            `json:"termDays"`
	DisplayName  string         `json:"displayName"`
	Price        string         `json:"price"`
	Currency     string         `json:"currency"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	ExpiresAt    *time.Time     `json:"expiresAt,omitempty"`
	Admin        *adminOrderExt `json:"admin,omitempty"`
}

type adminOrderExt struct {
	BuyerEmail   string `json:"buyerEmail"`
	PayerEmail   string `json:"payerEmail,omitempty"`
	Username     string `json:"username"`
	StatusDetail string `json:"statusDetail,omitempty"`
}

func toOrderResponse(o domain.Order, res *domain.ProvisionedResource) orderResponse {
	out := orderResponse{
		OrderID:      o.ID,
		Status:       string(o.Status),
		ResourceKind: o.ResourceKind,
		Sizing:       o.Sizing,
		TermDays:     o.TermDays,
		DisplayName:  o.DisplayName,
		Price:        o.Price.StringFixed(2),
		Currency:     o.Currency,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if res != nil {
		exp := res.ExpiresAt
		out.ExpiresAt = &exp
	}
	return out
}

func toAdminOrderResponse(o domain.Order) orderResponse {
	out := toOrderResponse(o, nil)
	out.Admin = &adminOrderExt{
		BuyerEmail:   o.BuyerEmail,
		PayerEmail:   o.PayerEmail,
		Username:     o.Credentials.Username,
		StatusDetail: o.StatusDetail,
	}
	return out
}

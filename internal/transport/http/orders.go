package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/shopspring/decimal"
)

// OrderCreator is the minimal interface needed to start a purchase.
type OrderCreator interface {
	CreateOrder(ctx context.Context, in app.CreateOrderInput) (app.CreateOrderResult, error)
}

// OrderReader is the minimal interface needed to look up an order.
type OrderReader interface {
	GetOrder(ctx context.Context, id string) (domain.Order, *domain.ProvisionedResource, error)
}

// HandleCreateOrder returns an HTTP handler that creates an order and the
// matching payment, answering with the URL the buyer must visit to pay.
func HandleCreateOrder(svc OrderCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}

		var req createOrderRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if field := req.missingField(); field != "" {
			writeError(w, http.StatusBadRequest, codeMissingRequiredField, field+" is required")
			return
		}

		res, err := svc.CreateOrder(r.Context(), app.CreateOrderInput{
			ResourceKind: req.ResourceKind,
			Sizing:       req.Sizing,
			TermDays:     req.TermDays,
			DisplayName:  req.DisplayName,
			Username:     req.Username,
			Password:     req.Password,
			BuyerEmail:   req.BuyerEmail,
			Price:        req.Price,
		})
		if err != nil {
			var verr *domain.ValidationError
			var gerr *domain.GatewayError
			switch {
			case errors.As(err, &verr):
				writeError(w, http.StatusBadRequest, codeInvalidField, verr.Error())
			case errors.As(err, &gerr):
				writeError(w, http.StatusBadGateway, codeGatewayError, "payment provider unavailable, try again")
			default:
				writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			}
			return
		}

		writeJSON(w, http.StatusCreated, createOrderResponse{
			OrderID:            res.Order.ID,
			PaymentRedirectURL: res.RedirectURL,
		})
	}
}

// HandleGetOrder returns an HTTP handler for GET /orders/{id}.
func HandleGetOrder(svc OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		id, ok := parseOrderPath(r.URL.Path)
		if !ok {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}

		order, res, err := svc.GetOrder(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				writeError(w, http.StatusNotFound, codeOrderNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order, res))
	}
}

type createOrderRequest struct {
	ResourceKind string          `json:"resourceKind"`
	Sizing       domain.Sizing   `json:"sizing"`
	TermDays     int             `json:"termDays"`
	DisplayName  string          `json:"displayName"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	BuyerEmail   string          `json:"buyerEmail"`
	Price        decimal.Decimal `json:"price"`
}

func (r createOrderRequest) missingField() string {
	switch {
	case strings.TrimSpace(r.ResourceKind) == "":
		return "resourceKind"
	case strings.TrimSpace(r.Username) == "":
		return "username"
	case r.Password == "":
		return "password"
	case strings.TrimSpace(r.BuyerEmail) == "":
		return "buyerEmail"
	}
	return ""
}

type createOrderResponse struct {
	OrderID            string `json:"orderId"`
	PaymentRedirectURL string `json:"paymentRedirectUrl"`
}

func parseOrderPath(path string) (string, bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 2 || parts[0] != "orders" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

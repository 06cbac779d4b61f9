package http

import (
	"context"
	"errors"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

// PaymentCapturer is the minimal interface needed by the payment return page.
type PaymentCapturer interface {
	CapturePayment(ctx context.Context, gatewayOrderID string) (app.CaptureResult, error)
}

var capturePage = template.Must(template.New("capture").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h2>{{.Title}}</h2>
<p>{{.Message}}</p>
{{- if .OrderID}}
<p>Order reference: <code>{{.OrderID}}</code></p>
{{- end}}
{{- if .ExpiresAt}}
<p>Your panel expires on {{.ExpiresAt}}.</p>
{{- end}}
</body>
</html>
`))

type capturePageData struct {
	Title     string
	Message   string
	OrderID   string
	ExpiresAt string
}

// HandleCapture returns the handler the payment provider redirects the buyer
// to after approval. It captures the payment and renders the outcome.
func HandleCapture(svc PaymentCapturer, logger *log.Logger) http.HandlerFunc {
	if logger == nil {
		logger = log.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		token := r.URL.Query().Get("token")
		if token == "" {
			renderCapturePage(w, logger, http.StatusBadRequest, capturePageData{
				Title:   "Missing payment reference",
				Message: "The link you followed is incomplete.",
			})
			return
		}

		res, err := svc.CapturePayment(r.Context(), token)
		if err != nil {
			if errors.Is(err, domain.ErrOrderNotFound) {
				renderCapturePage(w, logger, http.StatusNotFound, capturePageData{
					Title:   "Order not found",
					Message: "We could not find an order for this payment.",
				})
				return
			}
			logger.Printf("capture page failed token=%s err=%v", token, err)
			renderCapturePage(w, logger, http.StatusInternalServerError, capturePageData{
				Title:   "Something went wrong",
				Message: "We could not confirm your payment. Please reload this page in a moment.",
				OrderID: token,
			})
			return
		}

		order := res.Order
		data := capturePageData{OrderID: order.ID}
		status := http.StatusOK
		switch order.Status {
		case domain.OrderStatusActive:
			data.Title = "Payment confirmed, panel created!"
			data.Message = "A confirmation email with your login details has been sent to " + order.BuyerEmail + "."
			if res.Resource != nil {
				data.ExpiresAt = res.Resource.ExpiresAt.Format(time.RFC1123)
			}
		case domain.OrderStatusPaymentFailed:
			status = http.StatusPaymentRequired
			data.Title = "Payment declined"
			data.Message = "Your payment was not completed and you have not been charged."
		case domain.OrderStatusProvisionFailed:
			status = http.StatusInternalServerError
			data.Title = "Payment received"
			data.Message = "Your payment went through but your panel could not be created yet. Our team has been notified and will contact you."
		case domain.OrderStatusExpired:
			data.Title = "Order expired"
			data.Message = "The panel for this order has reached the end of its term."
		default:
			status = http.StatusAccepted
			data.Title = "Payment received"
			data.Message = "Your panel is being prepared. You will receive an email when it is ready."
		}
		renderCapturePage(w, logger, status, data)
	}
}

func renderCapturePage(w http.ResponseWriter, logger *log.Logger, status int, data capturePageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := capturePage.Execute(w, data); err != nil {
		logger.Printf("render capture page err=%v", err)
	}
}

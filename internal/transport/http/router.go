package http

import (
	"log"
	"net/http"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
)

// OrderService is what the public order routes need.
type OrderService interface {
	OrderCreator
	OrderReader
	PaymentCapturer
}

type RouterConfig struct {
	Orders      OrderService
	Admin       AdminService
	AdminToken  string
	CORSOrigins []string
	Clock       clock.Clock
	Logger      *log.Logger
}

// NewRouter assembles every route behind tracing, request logging and CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.NewSystem()
	}

	mux := http.NewServeMux()
	mux.Handle("/health", HealthHandler(cfg.Clock))
	mux.Handle("/orders", HandleCreateOrder(cfg.Orders))
	mux.Handle("/orders/capture", HandleCapture(cfg.Orders, cfg.Logger))
	mux.Handle("/orders/", HandleGetOrder(cfg.Orders))
	mux.Handle("/admin/orders", RequireAdmin(cfg.AdminToken, HandleAdminOrders(cfg.Admin)))
	mux.Handle("/admin/resources", RequireAdmin(cfg.AdminToken, HandleAdminResources(cfg.Admin)))
	mux.Handle("/admin/sweep", RequireAdmin(cfg.AdminToken, HandleAdminSweep(cfg.Admin)))
	mux.Handle("/", NotFoundHandler())

	return Tracing(RequestLogger(CORS(cfg.CORSOrigins, mux), cfg.Logger))
}

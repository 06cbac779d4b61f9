package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"
)

var tracer = otel.Tracer("github.com/LORD-OBITO-DEV/Shop-panel/internal/app")

type OrderRepository interface {
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	TransitionOrder(ctx context.Context, id string, from, to domain.OrderStatus, upd domain.OrderUpdate) (domain.Order, error)
	ActivateOrder(ctx context.Context, orderID string, res domain.ProvisionedResource) (domain.Order, error)
	GetResourceByOrder(ctx context.Context, orderID string) (domain.ProvisionedResource, error)
}

const (
	defaultCurrency         = "USD"
	defaultMaxTermDays      = 365
	defaultProvisionTimeout = 2 * time.Minute
	defaultCaptureTimeout   = 30 * time.Second
)

// OrderService drives an order from creation through payment capture to an
// active panel.
type OrderService struct {
	repo     OrderRepository
	gateway  PaymentGateway
	backend  ProvisioningBackend
	notifier Notifier
	clock    clock.Clock
	logger   *log.Logger

	currency         string
	adminEmail       string
	panelURL         string
	kinds            map[string]struct{}
	maxTermDays      int
	provisionTimeout time.Duration
	captureTimeout   time.Duration

	captures singleflight.Group
}

func NewOrderService(
	repo OrderRepository,
	gateway PaymentGateway,
	backend ProvisioningBackend,
	notifier Notifier,
	clk clock.Clock,
	opts ...OrderServiceOption,
) *OrderService {
	svc := &OrderService{
		repo:             repo,
		gateway:          gateway,
		backend:          backend,
		notifier:         notifier,
		clock:            clk,
		logger:           log.Default(),
		currency:         defaultCurrency,
		maxTermDays:      defaultMaxTermDays,
		provisionTimeout: defaultProvisionTimeout,
		captureTimeout:   defaultCaptureTimeout,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OrderServiceOption func(*OrderService)

func WithLogger(logger *log.Logger) OrderServiceOption {
	return func(s *OrderService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithCurrency(code string) OrderServiceOption {
	return func(s *OrderService) {
		if code != "" {
			s.currency = strings.ToUpper(code)
		}
	}
}

// WithAdminEmail sets the address that receives operational notifications.
func WithAdminEmail(addr string) OrderServiceOption {
	return func(s *OrderService) { s.adminEmail = addr }
}

// WithPanelURL sets the login URL included in buyer notifications.
func WithPanelURL(url string) OrderServiceOption {
	return func(s *OrderService) { s.panelURL = url }
}

// WithResourceKinds restricts accepted resource kinds. Without it any
// non-empty kind is accepted.
func WithResourceKinds(kinds ...string) OrderServiceOption {
	return func(s *OrderService) {
		if len(kinds) == 0 {
			return
		}
		s.kinds = make(map[string]struct{}, len(kinds))
		for _, k := range kinds {
			s.kinds[k] = struct{}{}
		}
	}
}

func WithMaxTermDays(days int) OrderServiceOption {
	return func(s *OrderService) {
		if days > 0 {
			s.maxTermDays = days
		}
	}
}

func WithProvisionTimeout(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.provisionTimeout = d
		}
	}
}

// WithCaptureTimeout bounds the gateway capture call. The call is not tied to
// the caller's context.
func WithCaptureTimeout(d time.Duration) OrderServiceOption {
	return func(s *OrderService) {
		if d > 0 {
			s.captureTimeout = d
		}
	}
}

func (s *OrderService) now() time.Time {
	return domain.Timestamp(s.clock.Now())
}

type CreateOrderInput struct {
	ResourceKind string
	Sizing       domain.Sizing
	TermDays     int
	DisplayName  string
	Username     string
	Password     string
	BuyerEmail   string
	Price        decimal.Decimal
}

type CreateOrderResult struct {
	Order       domain.Order
	RedirectURL string
}

// CaptureResult reports the order state after a capture callback. Duplicate
// is set when the callback changed nothing because the order had already
// left the created state.
type CaptureResult struct {
	Order     domain.Order
	Resource  *domain.ProvisionedResource
	Duplicate bool
}

func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := s.validate(&in); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CreateOrderResult{}, err
	}

	description := fmt.Sprintf("%s panel %q for %d days", in.ResourceKind, in.DisplayName, in.TermDays)
	gw, err := s.gateway.CreateOrder(ctx, in.Price, s.currency, description)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CreateOrderResult{}, &domain.GatewayError{Op: "create order", Err: err}
	}
	if gw.ID == "" {
		return CreateOrderResult{}, &domain.GatewayError{Op: "create order", Err: errors.New("empty order id")}
	}

	now := s.now()
	order := domain.Order{
		ID:           gw.ID,
		ResourceKind: in.ResourceKind,
		Sizing:       in.Sizing,
		TermDays:     in.TermDays,
		DisplayName:  in.DisplayName,
		Credentials:  domain.Credentials{Username: in.Username, Password: in.Password},
		BuyerEmail:   in.BuyerEmail,
		Price:        in.Price,
		Currency:     s.currency,
		Status:       domain.OrderStatusCreated,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CreateOrderResult{}, err
	}

	span.SetAttributes(attribute.String("order.id", order.ID))
	s.logger.Printf("order created id=%s kind=%s term_days=%d price=%s %s",
		order.ID, order.ResourceKind, order.TermDays, order.Price.StringFixed(2), order.Currency)
	return CreateOrderResult{Order: order, RedirectURL: gw.RedirectURL}, nil
}

func (s *OrderService) validate(in *CreateOrderInput) error {
	in.ResourceKind = strings.TrimSpace(in.ResourceKind)
	in.BuyerEmail = strings.TrimSpace(in.BuyerEmail)
	in.Username = strings.TrimSpace(in.Username)
	in.DisplayName = strings.TrimSpace(in.DisplayName)

	if in.ResourceKind == "" {
		return &domain.ValidationError{Field: "resourceKind", Reason: "required"}
	}
	if s.kinds != nil {
		if _, ok := s.kinds[in.ResourceKind]; !ok {
			return &domain.ValidationError{Field: "resourceKind", Reason: "unknown kind"}
		}
	}
	if in.Sizing.MemoryMB <= 0 || in.Sizing.CPUPercent <= 0 || in.Sizing.DiskMB <= 0 {
		return &domain.ValidationError{Field: "sizing", Reason: "memoryMB, cpuPercent and diskMB must be positive"}
	}
	if in.TermDays <= 0 {
		return &domain.ValidationError{Field: "termDays", Reason: "must be positive"}
	}
	if in.TermDays > s.maxTermDays {
		return &domain.ValidationError{Field: "termDays", Reason: fmt.Sprintf("must not exceed %d", s.maxTermDays)}
	}
	if in.BuyerEmail == "" {
		return &domain.ValidationError{Field: "buyerEmail", Reason: "required"}
	}
	if addr, err := mail.ParseAddress(in.BuyerEmail); err != nil || addr.Address != in.BuyerEmail {
		return &domain.ValidationError{Field: "buyerEmail", Reason: "malformed address"}
	}
	if !in.Price.IsPositive() {
		return &domain.ValidationError{Field: "price", Reason: "must be positive"}
	}
	if !in.Price.Equal(in.Price.Round(2)) {
		return &domain.ValidationError{Field: "price", Reason: "at most two decimal places"}
	}
	if in.Username == "" || in.Password == "" {
		return &domain.ValidationError{Field: "credentials", Reason: "username and password are required"}
	}
	if in.DisplayName == "" {
		in.DisplayName = in.Username
	}
	return nil
}

// GetOrder returns the order and, when one exists, its provisioned resource.
func (s *OrderService) GetOrder(ctx context.Context, id string) (domain.Order, *domain.ProvisionedResource, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return domain.Order{}, nil, err
	}
	res, err := s.repo.GetResourceByOrder(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrResourceNotFound) {
			return order, nil, nil
		}
		return domain.Order{}, nil, err
	}
	return order, &res, nil
}

// CapturePayment captures the gateway order and runs the capture transition.
// Concurrent calls for the same id share one execution. The capture runs to
// completion even when ctx is cancelled; the caller then gets ctx's error and
// the order is settled in the background.
func (s *OrderService) CapturePayment(ctx context.Context, gatewayOrderID string) (CaptureResult, error) {
	detached := context.WithoutCancel(ctx)
	ch := s.captures.DoChan(gatewayOrderID, func() (any, error) {
		cctx, cancel := context.WithTimeout(detached, s.captureTimeout)
		defer cancel()
		return s.capturePayment(cctx, gatewayOrderID)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return CaptureResult{}, r.Err
		}
		return r.Val.(CaptureResult), nil
	case <-ctx.Done():
		s.logger.Printf("WARN: capture caller gone, settling in background id=%s", gatewayOrderID)
		return CaptureResult{}, ctx.Err()
	}
}

func (s *OrderService) capturePayment(ctx context.Context, id string) (CaptureResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CapturePayment")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", id))

	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Printf("WARN: capture requested for unknown order id=%s", id)
		}
		span.SetStatus(codes.Error, err.Error())
		return CaptureResult{}, err
	}
	if order.Status != domain.OrderStatusCreated {
		return s.duplicate(ctx, order)
	}

	outcome, err := s.gateway.CaptureOrder(ctx, id)
	if err != nil {
		s.logger.Printf("capture failed id=%s err=%v", id, err)
		span.SetStatus(codes.Error, err.Error())
		return CaptureResult{}, &domain.GatewayError{Op: "capture order", Err: err}
	}
	return s.OnPaymentCaptured(ctx, id, outcome)
}

// OnPaymentCaptured applies a capture outcome to the order. It is idempotent:
// once the order has left the created state further calls change nothing.
func (s *OrderService) OnPaymentCaptured(ctx context.Context, gatewayOrderID string, outcome domain.CaptureOutcome) (CaptureResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.OnPaymentCaptured")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", gatewayOrderID),
		attribute.Bool("payment.captured", outcome.Captured),
	)

	order, err := s.repo.GetOrder(ctx, gatewayOrderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			s.logger.Printf("WARN: capture callback for unknown order id=%s", gatewayOrderID)
		}
		span.SetStatus(codes.Error, err.Error())
		return CaptureResult{}, err
	}
	if order.Status != domain.OrderStatusCreated {
		return s.duplicate(ctx, order)
	}

	// Money has moved (or definitively not): run to a terminal outcome even if
	// the caller goes away.
	ctx = context.WithoutCancel(ctx)
	now := s.now()

	if !outcome.Captured {
		order, err = s.repo.TransitionOrder(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusPaymentFailed, domain.OrderUpdate{
			StatusDetail: "capture not completed: " + outcome.Status,
			At:           now,
		})
		if err != nil {
			return s.staleOrErr(ctx, gatewayOrderID, err)
		}
		s.logger.Printf("payment not captured id=%s gateway_status=%s", order.ID, outcome.Status)
		span.SetAttributes(attribute.String("order.status", string(order.Status)))
		return CaptureResult{Order: order}, nil
	}

	order, err = s.repo.TransitionOrder(ctx, order.ID, domain.OrderStatusCreated, domain.OrderStatusPaid, domain.OrderUpdate{
		PayerEmail: outcome.PayerEmail,
		At:         now,
	})
	if err != nil {
		return s.staleOrErr(ctx, gatewayOrderID, err)
	}
	s.logger.Printf("payment captured id=%s", order.ID)

	res, err := s.provision(ctx, order)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return CaptureResult{}, err
	}
	span.SetAttributes(attribute.String("order.status", string(res.Order.Status)))
	return res, nil
}

// provision moves a paid order through provisioning. The provisioning call is
// made without holding any record lock; the paid->provisioning fence keeps it
// from running twice.
func (s *OrderService) provision(ctx context.Context, paid domain.Order) (CaptureResult, error) {
	order, err := s.repo.TransitionOrder(ctx, paid.ID, domain.OrderStatusPaid, domain.OrderStatusProvisioning, domain.OrderUpdate{
		At: s.now(),
	})
	if err != nil {
		return s.staleOrErr(ctx, paid.ID, err)
	}

	spec := domain.ProvisionSpec{
		OrderID:     order.ID,
		Kind:        order.ResourceKind,
		Sizing:      order.Sizing,
		DisplayName: order.DisplayName,
		Credentials: order.Credentials,
		Email:       order.BuyerEmail,
	}
	pctx, cancel := context.WithTimeout(ctx, s.provisionTimeout)
	resourceID, err := s.backend.Create(pctx, spec)
	cancel()
	if err != nil {
		perr := &domain.ProvisioningError{OrderID: order.ID, Err: err}
		s.logger.Printf("provisioning failed id=%s err=%v", order.ID, err)

		failed, terr := s.repo.TransitionOrder(ctx, order.ID, domain.OrderStatusProvisioning, domain.OrderStatusProvisionFailed, domain.OrderUpdate{
			StatusDetail: perr.Error(),
			At:           s.now(),
		})
		if terr != nil {
			return CaptureResult{}, fmt.Errorf("record provisioning failure for %s: %w", order.ID, terr)
		}
		s.notifyAdminProvisionFailed(ctx, failed, perr.Error())
		return CaptureResult{Order: failed}, nil
	}
	if resourceID == "" {
		resourceID = newSurrogateResourceID()
	}

	provisionedAt, expiresAt := domain.ExpiryFor(s.now(), order.TermDays)
	res := domain.ProvisionedResource{
		ID:            resourceID,
		OrderID:       order.ID,
		Status:        domain.ResourceStatusActive,
		ProvisionedAt: provisionedAt,
		ExpiresAt:     expiresAt,
	}
	active, err := s.repo.ActivateOrder(ctx, order.ID, res)
	if err != nil {
		// The panel exists upstream but is not recorded; the order stays in
		// provisioning and Recover flags it for manual handling.
		s.logger.Printf("ERROR: record provisioned resource id=%s resource=%s err=%v", order.ID, resourceID, err)
		return CaptureResult{}, fmt.Errorf("activate order %s: %w", order.ID, err)
	}
	s.logger.Printf("panel provisioned id=%s resource=%s expires_at=%s",
		active.ID, res.ID, res.ExpiresAt.Format(time.RFC3339))

	if msg, err := buyerReadyMessage(active, res, s.panelURL); err == nil {
		s.send(ctx, msg)
	} else {
		s.logger.Printf("WARN: render buyer message id=%s err=%v", active.ID, err)
	}
	if s.adminEmail != "" {
		if msg, err := adminProvisionedMessage(s.adminEmail, active, res); err == nil {
			s.send(ctx, msg)
		} else {
			s.logger.Printf("WARN: render admin message id=%s err=%v", active.ID, err)
		}
	}
	return CaptureResult{Order: active, Resource: &res}, nil
}

// RecoveryReport summarises a Recover pass. Failed counts paid orders whose
// provisioning returned an error; the pass carries on with the rest.
type RecoveryReport struct {
	Reprovisioned int
	Interrupted   int
	Failed        int
}

// Recover resumes orders left mid-flight by a crash. Paid orders have no
// resource and are provisioned again; orders caught in provisioning may have a
// remote side effect and are failed for manual review.
func (s *OrderService) Recover(ctx context.Context) (RecoveryReport, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Recover")
	defer span.End()

	var report RecoveryReport

	interrupted, err := s.repo.ListOrdersByStatus(ctx, domain.OrderStatusProvisioning)
	if err != nil {
		return report, fmt.Errorf("list provisioning orders: %w", err)
	}
	for _, order := range interrupted {
		detail := "interrupted during provisioning; check the backend before retrying"
		failed, err := s.repo.TransitionOrder(ctx, order.ID, domain.OrderStatusProvisioning, domain.OrderStatusProvisionFailed, domain.OrderUpdate{
			StatusDetail: detail,
			At:           s.now(),
		})
		if err != nil {
			if errors.Is(err, domain.ErrStaleStatus) {
				continue
			}
			return report, fmt.Errorf("fail interrupted order %s: %w", order.ID, err)
		}
		s.logger.Printf("WARN: order interrupted during provisioning id=%s", order.ID)
		s.notifyAdminProvisionFailed(ctx, failed, detail)
		report.Interrupted++
	}

	paid, err := s.repo.ListOrdersByStatus(ctx, domain.OrderStatusPaid)
	if err != nil {
		return report, fmt.Errorf("list paid orders: %w", err)
	}
	for _, order := range paid {
		res, err := s.provision(ctx, order)
		if err != nil {
			s.logger.Printf("recovery provision failed id=%s err=%v", order.ID, err)
			report.Failed++
			continue
		}
		if !res.Duplicate {
			report.Reprovisioned++
		}
	}

	if report.Reprovisioned > 0 || report.Interrupted > 0 || report.Failed > 0 {
		s.logger.Printf("recovery reprovisioned=%d interrupted=%d failed=%d",
			report.Reprovisioned, report.Interrupted, report.Failed)
	}
	return report, nil
}

func (s *OrderService) duplicate(ctx context.Context, order domain.Order) (CaptureResult, error) {
	s.logger.Printf("duplicate capture ignored id=%s status=%s", order.ID, order.Status)
	result := CaptureResult{Order: order, Duplicate: true}
	if order.Status == domain.OrderStatusActive {
		if res, err := s.repo.GetResourceByOrder(ctx, order.ID); err == nil {
			result.Resource = &res
		}
	}
	return result, nil
}

// staleOrErr turns a lost status race into a duplicate no-op.
func (s *OrderService) staleOrErr(ctx context.Context, id string, err error) (CaptureResult, error) {
	if !errors.Is(err, domain.ErrStaleStatus) {
		return CaptureResult{}, err
	}
	current, gerr := s.repo.GetOrder(ctx, id)
	if gerr != nil {
		return CaptureResult{}, gerr
	}
	return s.duplicate(ctx, current)
}

func (s *OrderService) notifyAdminProvisionFailed(ctx context.Context, order domain.Order, detail string) {
	if s.adminEmail == "" {
		return
	}
	msg, err := adminProvisionFailedMessage(s.adminEmail, order, detail)
	if err != nil {
		s.logger.Printf("WARN: render admin message id=%s err=%v", order.ID, err)
		return
	}
	s.send(ctx, msg)
}

func (s *OrderService) send(ctx context.Context, msg domain.Message) {
	if err := s.notifier.Send(ctx, msg); err != nil {
		nerr := &domain.NotificationError{To: msg.To, Err: err}
		s.logger.Printf("WARN: %v", nerr)
	}
}

// Package paypal implements the payment gateway on PayPal Checkout Orders v2.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	liveBaseURL    = "https://api-m.paypal.com"
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"

	statusCompleted = "COMPLETED"
	issueCaptured   = "ORDER_ALREADY_CAPTURED"
)

// declineIssues are capture failures the buyer cannot fix by retrying the same
// approval. Any other 422, such as ORDER_NOT_APPROVED, leaves the order open.
var declineIssues = map[string]bool{
	"INSTRUMENT_DECLINED":                     true,
	"TRANSACTION_REFUSED":                     true,
	"PAYER_CANNOT_PAY":                        true,
	"PAYEE_BLOCKED_TRANSACTION":               true,
	"COMPLIANCE_VIOLATION":                    true,
	"MAX_NUMBER_OF_PAYMENT_ATTEMPTS_EXCEEDED": true,
}

type Config struct {
	ClientID string
	Secret   string
	// Mode "live" selects the production API; anything else the sandbox.
	Mode string
	// BaseURL overrides the API host chosen by Mode.
	BaseURL   string
	ReturnURL string
	CancelURL string
	BrandName string
}

// Client talks to the Orders v2 API with an OAuth2 client-credentials token.
type Client struct {
	baseURL   string
	http      *http.Client
	returnURL string
	cancelURL string
	brandName string
	logger    *log.Logger
}

type Option func(*Client)

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("paypal client id and secret are required")
	}
	if strings.TrimSpace(cfg.ReturnURL) == "" {
		return nil, errors.New("paypal return url is required")
	}

	base := cfg.BaseURL
	if base == "" {
		base = sandboxBaseURL
		if strings.EqualFold(cfg.Mode, "live") {
			base = liveBaseURL
		}
	}
	base = strings.TrimRight(base, "/")

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.Secret,
		TokenURL:     base + "/v1/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	httpClient := creds.Client(context.Background())
	httpClient.Timeout = 30 * time.Second

	c := &Client{
		baseURL:   base,
		http:      httpClient,
		returnURL: cfg.ReturnURL,
		cancelURL: cfg.CancelURL,
		brandName: cfg.BrandName,
		logger:    log.Default(),
	}
	if c.cancelURL == "" {
		c.cancelURL = cfg.ReturnURL
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type purchaseUnit struct {
	Description string    `json:"description,omitempty"`
	Amount      amount    `json:"amount"`
	Payments    *payments `json:"payments,omitempty"`
}

type payments struct {
	Captures []capture `json:"captures,omitempty"`
}

type capture struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type link struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type createRequest struct {
	Intent             string             `json:"intent"`
	PurchaseUnits      []purchaseUnit     `json:"purchase_units"`
	ApplicationContext applicationContext `json:"application_context"`
}

type applicationContext struct {
	BrandName          string `json:"brand_name,omitempty"`
	ReturnURL          string `json:"return_url"`
	CancelURL          string `json:"cancel_url"`
	UserAction         string `json:"user_action"`
	ShippingPreference string `json:"shipping_preference"`
}

type orderResponse struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	Links         []link         `json:"links"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Payer         struct {
		EmailAddress string `json:"email_address"`
	} `json:"payer"`
}

// CreateOrder creates a CAPTURE intent order and returns the buyer approval URL.
func (c *Client) CreateOrder(ctx context.Context, amt decimal.Decimal, currency, description string) (domain.GatewayOrder, error) {
	body := createRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			Description: description,
			Amount:      amount{CurrencyCode: strings.ToUpper(currency), Value: amt.StringFixed(2)},
		}},
		ApplicationContext: applicationContext{
			BrandName:          c.brandName,
			ReturnURL:          c.returnURL,
			CancelURL:          c.cancelURL,
			UserAction:         "PAY_NOW",
			ShippingPreference: "NO_SHIPPING",
		},
	}

	var resp orderResponse
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", "create-"+uuid.NewString(), body, &resp); err != nil {
		return domain.GatewayOrder{}, err
	}

	redirect := ""
	for _, l := range resp.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			redirect = l.Href
			break
		}
	}
	if redirect == "" {
		return domain.GatewayOrder{}, fmt.Errorf("order %s has no approval link", resp.ID)
	}
	return domain.GatewayOrder{ID: resp.ID, RedirectURL: redirect}, nil
}

// CaptureOrder captures an approved order. A declined payment is a definitive
// outcome, not an error; other unprocessable answers are returned as errors.
// When PayPal reports the order as already captured the order is fetched so
// the caller sees what actually happened. Every attempt for the same order
// carries the same PayPal-Request-Id.
func (c *Client) CaptureOrder(ctx context.Context, id string) (domain.CaptureOutcome, error) {
	if strings.TrimSpace(id) == "" {
		return domain.CaptureOutcome{}, domain.ErrInvalidID
	}
	path := "/v2/checkout/orders/" + url.PathEscape(id)

	var resp orderResponse
	err := c.do(ctx, http.MethodPost, path+"/capture", captureRequestID(id), struct{}{}, &resp)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnprocessableEntity {
			return domain.CaptureOutcome{}, err
		}
		switch {
		case declineIssues[apiErr.Issue]:
			c.logger.Printf("capture declined order=%s issue=%s debug_id=%s", id, apiErr.Issue, apiErr.DebugID)
			return domain.CaptureOutcome{Captured: false, Status: apiErr.Issue}, nil
		case apiErr.Issue != issueCaptured:
			return domain.CaptureOutcome{}, err
		}
		c.logger.Printf("WARN: order already captured, fetching order=%s", id)
		if err := c.do(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
			return domain.CaptureOutcome{}, err
		}
	}
	return outcomeOf(resp), nil
}

func captureRequestID(id string) string {
	return "capture-" + id
}

func outcomeOf(resp orderResponse) domain.CaptureOutcome {
	out := domain.CaptureOutcome{Status: resp.Status, PayerEmail: resp.Payer.EmailAddress}
	if resp.Status != statusCompleted {
		return out
	}
	out.Captured = true
	for _, pu := range resp.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		for _, cp := range pu.Payments.Captures {
			if cp.Status != statusCompleted {
				out.Captured = false
				out.Status = cp.Status
			}
		}
	}
	return out
}

// APIError is a non-2xx answer from PayPal.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	Issue      string
	DebugID    string
}

func (e *APIError) Error() string {
	if e.Issue != "" {
		return fmt.Sprintf("paypal %d %s: %s", e.StatusCode, e.Name, e.Issue)
	}
	return fmt.Sprintf("paypal %d %s: %s", e.StatusCode, e.Name, e.Message)
}

type errorBody struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	DebugID string `json:"debug_id"`
	Details []struct {
		Issue string `json:"issue"`
	} `json:"details"`
}

// do sends one API request. A non-empty requestID is sent as PayPal-Request-Id
// so PayPal can deduplicate retries of the same operation.
func (c *Client) do(ctx context.Context, method, path, requestID string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID != "" {
		req.Header.Set("PayPal-Request-Id", requestID)
	}
	if method == http.MethodPost {
		req.Header.Set("Prefer", "return=representation")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil {
			apiErr.Name = eb.Name
			apiErr.Message = eb.Message
			apiErr.DebugID = eb.DebugID
			if len(eb.Details) > 0 {
				apiErr.Issue = eb.Details[0].Issue
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

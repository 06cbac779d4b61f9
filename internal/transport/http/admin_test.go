package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
	"github.com/shopspring/decimal"
)

type stubAdminService struct {
	orders    []domain.Order
	resources []domain.ProvisionedResource
	listErr   error
	report    app.SweepReport
	sweepErr  error
	status    domain.OrderStatus
}

func (s *stubAdminService) ListOrders(_ context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	s.status = status
	return s.orders, s.listErr
}

func (s *stubAdminService) ListResources(context.Context) ([]domain.ProvisionedResource, error) {
	return s.resources, s.listErr
}

func (s *stubAdminService) TriggerSweep(context.Context) (app.SweepReport, error) {
	return s.report, s.sweepErr
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name           string
		token          string
		header         string
		expectedStatus int
	}{
		{name: "disabled without token", token: "", header: "Bearer anything", expectedStatus: http.StatusNotFound},
		{name: "missing header", token: "t0k", expectedStatus: http.StatusUnauthorized},
		{name: "wrong token", token: "t0k", header: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", token: "t0k", header: "Basic t0k", expectedStatus: http.StatusUnauthorized},
		{name: "valid", token: "t0k", header: "Bearer t0k", expectedStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, "/admin/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			RequireAdmin(tt.token, ok).ServeHTTP(rec, req)
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected %d, got %d", tt.expectedStatus, rec.Code)
			}
		})
	}
}

func TestHandleAdminOrders(t *testing.T) {
	t.Parallel()

	svc := &stubAdminService{orders: []domain.Order{{
		ID:           "PAY-1",
		Status:       domain.OrderStatusProvisionFailed,
		StatusDetail: "panel unreachable",
		BuyerEmail:   "buyer@shop.test",
		Credentials:  domain.Credentials{Username: "obito", Password: "s3cret"},
		Price:        decimal.NewFromInt(5),
	}}}

	req := httptest.NewRequest(http.MethodGet, "/admin/orders?status=provision_failed", nil)
	rec := httptest.NewRecorder()
	HandleAdminOrders(svc).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.status != domain.OrderStatusProvisionFailed {
		t.Fatalf("expected status filter passed, got %q", svc.status)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"statusDetail":"panel unreachable"`) || !strings.Contains(body, `"username":"obito"`) {
		t.Fatalf("unexpected body %s", body)
	}
	if strings.Contains(body, "s3cret") {
		t.Fatalf("admin listing leaked password")
	}

	svc.listErr = &domain.ValidationError{Field: "status", Reason: "unknown status"}
	rec = httptest.NewRecorder()
	HandleAdminOrders(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/orders?status=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad status, got %d", rec.Code)
	}
}

func TestHandleAdminResources(t *testing.T) {
	t.Parallel()

	svc := &stubAdminService{resources: []domain.ProvisionedResource{{
		ID: "42", OrderID: "PAY-1", Status: domain.ResourceStatusReclaiming, ReclaimAttempts: 3, LastError: "timeout",
	}}}
	rec := httptest.NewRecorder()
	HandleAdminResources(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/resources", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"reclaimAttempts":3`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	svc.listErr = errors.New("boom")
	rec = httptest.NewRecorder()
	HandleAdminResources(svc).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/resources", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHandleAdminSweep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		method         string
		err            error
		expectedStatus int
		expectedSubstr string
	}{
		{name: "accepted", method: http.MethodPost, expectedStatus: http.StatusAccepted, expectedSubstr: `"reclaimed":2`},
		{name: "in progress", method: http.MethodPost, err: domain.ErrSweepInProgress, expectedStatus: http.StatusConflict, expectedSubstr: codeSweepInProgress},
		{name: "failure", method: http.MethodPost, err: errors.New("db down"), expectedStatus: http.StatusInternalServerError},
		{name: "wrong method", method: http.MethodGet, expectedStatus: http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			svc := &stubAdminService{report: app.SweepReport{Scanned: 2, Reclaimed: 2}, sweepErr: tt.err}
			rec := httptest.NewRecorder()
			HandleAdminSweep(svc).ServeHTTP(rec, httptest.NewRequest(tt.method, "/admin/sweep", nil))
			if rec.Code != tt.expectedStatus {
				t.Fatalf("expected %d, got %d", tt.expectedStatus, rec.Code)
			}
			if tt.expectedSubstr != "" && !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Fatalf("expected %q in %s", tt.expectedSubstr, rec.Body.String())
			}
		})
	}
}

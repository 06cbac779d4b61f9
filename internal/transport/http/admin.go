package http

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/app"
	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

// AdminService is the minimal interface needed for the admin endpoints.
type AdminService interface {
	ListOrders(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error)
	ListResources(ctx context.Context) ([]domain.ProvisionedResource, error)
	TriggerSweep(ctx context.Context) (app.SweepReport, error)
}

// RequireAdmin guards next with a static bearer token. Without a configured
// token the admin surface does not exist and every request gets a 404.
func RequireAdmin(token string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if token == "" {
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
			writeError(w, http.StatusUnauthorized, codeUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// HandleAdminOrders lists orders, optionally filtered by ?status=.
func HandleAdminOrders(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		orders, err := svc.ListOrders(r.Context(), domain.OrderStatus(r.URL.Query().Get("status")))
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				writeError(w, http.StatusBadRequest, codeInvalidStatus, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		resp := make([]orderResponse, 0, len(orders))
		for _, o := range orders {
			resp = append(resp, toAdminOrderResponse(o))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleAdminResources lists provisioned resources, including those stuck in
// reclaiming.
func HandleAdminResources(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		resources, err := svc.ListResources(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		resp := make([]resourceResponse, 0, len(resources))
		for _, res := range resources {
			resp = append(resp, resourceResponse{
				ID:              res.ID,
				OrderID:         res.OrderID,
				Status:          string(res.Status),
				ProvisionedAt:   res.ProvisionedAt,
				ExpiresAt:       res.ExpiresAt,
				ReclaimAttempts: res.ReclaimAttempts,
				LastError:       res.LastError,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// HandleAdminSweep runs one reclaim pass. It answers 409 while another pass
// is running.
func HandleAdminSweep(svc AdminService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		report, err := svc.TriggerSweep(r.Context())
		if err != nil {
			if errors.Is(err, domain.ErrSweepInProgress) {
				writeError(w, http.StatusConflict, codeSweepInProgress, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
			return
		}
		writeJSON(w, http.StatusAccepted, sweepResponse{
			Scanned:   report.Scanned,
			Reclaimed: report.Reclaimed,
			Failed:    report.Failed,
			Skipped:   report.Skipped,
		})
	}
}

type resourceResponse struct {
	ID              string    `json:"id"`
	OrderID         string    `json:"orderId"`
	Status          string    `json:"status"`
	ProvisionedAt   time.Time `json:"provisionedAt"`
	ExpiresAt       time.Time `json:"expiresAt"`
	ReclaimAttempts int       `json:"reclaimAttempts"`
	LastError       string    `json:"lastError,omitempty"`
}

type sweepResponse struct {
	Scanned   int `json:"scanned"`
	Reclaimed int `json:"reclaimed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

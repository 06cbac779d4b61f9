package http

import (
	"net/http"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
)

type healthResponse struct {
	OK   bool      `json:"ok"`
	Time time.Time `json:"time"`
}

// HealthHandler reports liveness and the server clock.
func HealthHandler(clk clock.Clock) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{OK: true, Time: clk.Now().UTC()})
	}
}

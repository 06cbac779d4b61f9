package http

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/clock"
)

func TestHealthHandler_OK(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()

	HealthHandler(clock.NewFixed(now))(rec, req)

	res := rec.Result()
	if res.StatusCode != 200 {
		t.Fatalf("expected status 200, got %d", res.StatusCode)
	}

	var body healthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || !body.Time.Equal(now) {
		t.Fatalf("unexpected body %+v", body)
	}
}

package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Dispatches.WithLabelValues("sent").Inc()

	t.Run("metrics", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewRouter(reg, 0, Health{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `arcabot_dispatch_total{result="sent"}`) {
			t.Errorf("expected dispatch counter in output:\n%s", rec.Body.String())
		}
	})

	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		ok := func(context.Context) error { return nil }
		NewRouter(reg, 0, Health{Checks: []HealthCheck{ok}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("unhealthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		down := func(context.Context) error { return errors.New("db down") }
		NewRouter(reg, 0, Health{Checks: []HealthCheck{down}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("verbose", func(t *testing.T) {
		health := Health{
			Checks: []HealthCheck{func(context.Context) error { return nil }},
			Report: func(context.Context) any {
				return map[string]any{"primary": map[string]any{"healthy": true}}
			},
		}
		rec := httptest.NewRecorder()
		NewRouter(reg, 0, health).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=1", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected JSON content type, got %q", ct)
		}
		var body struct {
			Status  string                     `json:"status"`
			Details map[string]map[string]bool `json:"details"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body.Status != "ok" || !body.Details["primary"]["healthy"] {
			t.Errorf("unexpected body %+v", body)
		}
	})

	t.Run("verbose unhealthy", func(t *testing.T) {
		down := func(context.Context) error { return errors.New("db down") }
		rec := httptest.NewRecorder()
		NewRouter(reg, 0, Health{Checks: []HealthCheck{down}}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=1", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
		if !strings.Contains(rec.Body.String(), `"error":"db down"`) {
			t.Errorf("expected error in body, got %s", rec.Body.String())
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := httptest.NewRecorder()
		NewRouter(reg, 0, Health{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/healthz", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})
}

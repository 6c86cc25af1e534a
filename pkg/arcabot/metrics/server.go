package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config controls the ops HTTP server.
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// DefaultConfig serves metrics on localhost:9090.
func DefaultConfig() Config {
	return Config{Enabled: true, Address: "127.0.0.1:9090"}
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Health feeds /healthz. Checks decide the status code. Report, when set,
// is served as the JSON "details" field of /healthz?verbose=1.
type Health struct {
	Checks []HealthCheck
	Report func(ctx context.Context) any
}

// Server exposes /metrics and /healthz.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewRouter builds the ops routes. Metrics are gathered from g.
func NewRouter(g prometheus.Gatherer, timeout time.Duration, health Health) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthz(timeout, health)).Methods(http.MethodGet)
	return r
}

type healthBody struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Details any    `json:"details,omitempty"`
}

func healthz(timeout time.Duration, health Health) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		body := healthBody{Status: "ok"}
		code := http.StatusOK
		for _, check := range health.Checks {
			if err := check(ctx); err != nil {
				body = healthBody{Status: "unhealthy", Error: err.Error()}
				code = http.StatusServiceUnavailable
				break
			}
		}

		if r.URL.Query().Get("verbose") == "" {
			if code != http.StatusOK {
				http.Error(w, body.Status, code)
				return
			}
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body.Status))
			return
		}

		if health.Report != nil {
			body.Details = health.Report(ctx)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(body)
	}
}

// NewServer creates the ops server on cfg.Address.
func NewServer(cfg Config, g prometheus.Gatherer, logger *slog.Logger, health Health) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           NewRouter(g, 2*time.Second, health),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With("component", "metrics"),
	}
}

// Start serves in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("metrics: listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics: server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Package control exposes a lifecycle controller over HTTP so an external
// harness can start, query and stop the wrapped listener.
//
// Routes:
//   - POST /init      start accepting on the wrapped port
//   - POST /shutdown  stop accepting and release the port
//   - GET  /status    report whether the wrapped port is accepting
//   - GET  /live      liveness probe
//   - GET  /ready     readiness probe, ready while the wrapped port accepts
//   - GET  /metrics   Prometheus metrics, when enabled
package control

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/restinthemiddle/wrapperserver/pkg/lifecycle"
	"go.uber.org/zap"
)

// maxGoroutines is the liveness threshold for the control process.
const maxGoroutines = 1000

// Target is the controller the API drives.
type Target interface {
	lifecycle.Controller
	Port() int
}

// Options tunes the router.
type Options struct {
	Logger         *zap.Logger
	MetricsEnabled bool
	SetRequestID   bool
}

// NewRouter builds the control API for target.
func NewRouter(target Target, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(requestID(opts.SetRequestID))
	r.Use(requestLogger(logger))
	if opts.MetricsEnabled {
		r.Use(requestMetrics)
	}

	h := &handler{target: target}
	r.Post("/init", h.init)
	r.Post("/shutdown", h.shutdown)
	r.Get("/status", h.status)

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	health.AddReadinessCheck("listener-active", func() error {
		if !target.IsActive() {
			return errors.New("wrapped listener is not accepting")
		}
		return nil
	})
	r.Get("/live", health.LiveEndpoint)
	r.Get("/ready", health.ReadyEndpoint)

	if opts.MetricsEnabled {
		r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	}

	return r
}

package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/restinthemiddle/wrapperserver/internal/version"
	"github.com/restinthemiddle/wrapperserver/pkg/lifecycle"
)

var (
	// BuildInfo exposes version, build date, and git commit.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build information including version, build date, and git commit",
		},
		[]string{"version", "build_date", "git_commit"},
	)

	// ProcessUptimeSeconds tracks the uptime of the process in seconds.
	ProcessUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "process_uptime_seconds",
			Help: "Process uptime in seconds",
		},
	)

	// ServerActive is 1 while the wrapped listener is accepting.
	ServerActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wrapper_server_active",
			Help: "Whether the wrapped listener is accepting connections",
		},
		[]string{"port"},
	)

	// LifecycleOperationsTotal counts lifecycle operations by outcome.
	LifecycleOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrapper_lifecycle_operations_total",
			Help: "Total number of lifecycle operations",
		},
		[]string{"operation", "result"},
	)

	// LifecycleOperationDuration measures lifecycle operations in seconds.
	LifecycleOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wrapper_lifecycle_operation_duration_seconds",
			Help:    "Lifecycle operation duration in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"operation"},
	)

	// ControlRequestsTotal counts requests to the control API.
	ControlRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wrapper_control_requests_total",
			Help: "Total number of control API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// ControlRequestDuration measures control API requests in seconds.
	ControlRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wrapper_control_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5},
		},
		[]string{"method", "route"},
	)

	startTime time.Time
	initOnce  sync.Once
)

// Init sets the build information and starts the uptime tracker. Only the
// first call has an effect.
func Init() {
	initOnce.Do(func() {
		startTime = time.Now()

		BuildInfo.WithLabelValues(
			version.Version,
			version.BuildDate,
			version.GitCommit,
		).Set(1)

		go func() {
			ticker := time.NewTicker(1 * time.Second)
			defer ticker.Stop()
			for range ticker.C {
				ProcessUptimeSeconds.Set(time.Since(startTime).Seconds())
			}
		}()
	})
}

// Writer records lifecycle events as metrics.
type Writer struct{}

// LogEvent implements lifecycle.Writer.
func (Writer) LogEvent(event lifecycle.Event) error {
	op := string(event.Operation)
	LifecycleOperationsTotal.WithLabelValues(op, event.Result()).Inc()
	LifecycleOperationDuration.WithLabelValues(op).Observe(event.Duration.Seconds())

	active := 0.0
	if event.Active {
		active = 1
	}
	ServerActive.WithLabelValues(strconv.Itoa(event.Port)).Set(active)
	return nil
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleetmap",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Map engine metrics
	MarkersLoaded = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "markers_loaded",
		Help:      "Markers currently held by the store, by source",
	}, []string{"source"})

	MarkerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "marker_mutations_total",
		Help:      "Total marker mutations applied to the store",
	}, []string{"op"})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "persistence_failures_total",
		Help:      "Total failed durable writes of custom markers",
	})

	ViewportOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "viewport_ops_total",
		Help:      "Total viewport operations",
	}, []string{"op"})

	AnimationsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "animations_cancelled_total",
		Help:      "Total viewport animations cancelled by user input",
	})

	RendererSwitches = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "map",
		Name:      "renderer_switches_total",
		Help:      "Total renderer switches",
	}, []string{"from", "to"})

	TileCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "tiles",
		Name:      "cache_hits_total",
		Help:      "Total tile cache hits",
	})

	TileCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "tiles",
		Name:      "cache_misses_total",
		Help:      "Total tile cache misses",
	})

	TileFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "tiles",
		Name:      "fetch_errors_total",
		Help:      "Total failed tile fetches",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleetmap",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	FeedPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fleetmap",
		Subsystem: "feed",
		Name:      "poll_duration_seconds",
		Help:      "Duration of fleet feed polls",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	})

	FeedPollErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fleetmap",
		Subsystem: "feed",
		Name:      "poll_errors_total",
		Help:      "Total fleet feed poll errors",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

package metrics

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics counts API requests and their latency per route.
type HTTPMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	liveStreams *prometheus.GaugeVec
}

var (
	httpMetricsOnce sync.Once
	httpMetrics     *HTTPMetrics
)

// NewHTTPMetrics returns the process-wide HTTP metrics.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	httpMetricsOnce.Do(func() {
		httpMetrics = newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return httpMetrics
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	constLabels := prometheus.Labels{"service": "condopay"}
	if name := strings.TrimSpace(cfg.ServiceName); name != "" {
		constLabels["service"] = name
	}

	m := &HTTPMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "condopay_http_requests_total",
			Help:        "Counts API requests by method, route and status.",
			ConstLabels: constLabels,
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "condopay_http_request_duration_seconds",
			Help:        "API request latency per method and route.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"method", "route"}),
		liveStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "condopay_http_live_streams",
			Help:        "Open live report streams by transport.",
			ConstLabels: constLabels,
		}, []string{"transport"}),
	}
	registerer.MustRegister(m.requests, m.duration, m.liveStreams)
	return m
}

// GinMiddleware records every request once it completes. Streaming routes
// are observed when the stream ends.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// StreamOpened marks a live stream as open and returns the func closing it.
func (m *HTTPMetrics) StreamOpened(transport string) func() {
	if m == nil {
		return func() {}
	}
	gauge := m.liveStreams.WithLabelValues(transport)
	gauge.Inc()
	var once sync.Once
	return func() { once.Do(gauge.Dec) }
}

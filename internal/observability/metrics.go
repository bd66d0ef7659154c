package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattrix_http_requests_total",
			Help: "Total number of HTTP requests processed by the coordinator.",
		},
		[]string{"method", "route", "status"},
	)
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chattrix_http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	wsActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chattrix_ws_active_connections",
			Help: "Number of live websocket connections.",
		},
	)
	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattrix_ws_events_total",
			Help: "Total number of websocket events by name.",
		},
		[]string{"event"},
	)
	reapedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chattrix_reaped_records_total",
			Help: "Total number of records removed or expired by the reaper.",
		},
		[]string{"entity"},
	)
	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chattrix_rate_limited_total",
			Help: "Total number of messages rejected by the rate limiter.",
		},
	)
	panicWipesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chattrix_panic_wipes_total",
			Help: "Total number of panic wipes triggered.",
		},
	)
	amqpPublishErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chattrix_amqp_publish_errors_total",
			Help: "Total number of AMQP publish errors.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		wsActiveConnections,
		wsEventsTotal,
		reapedTotal,
		rateLimitedTotal,
		panicWipesTotal,
		amqpPublishErrorsTotal,
	)
}

func HTTPMetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()

		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func IncWSActive() {
	wsActiveConnections.Inc()
}

func DecWSActive() {
	wsActiveConnections.Dec()
}

func IncWSEvent(event string) {
	wsEventsTotal.WithLabelValues(event).Inc()
}

func AddReaped(entity string, count int64) {
	reapedTotal.WithLabelValues(entity).Add(float64(count))
}

func IncRateLimited() {
	rateLimitedTotal.Inc()
}

func IncPanicWipe() {
	panicWipesTotal.Inc()
}

func IncAMQPPublishError() {
	amqpPublishErrorsTotal.Inc()
}

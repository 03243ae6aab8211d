// Package metrics provides Prometheus instrumentation for the market engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts settled trades, partitioned by type.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_trades_total",
		Help: "Total number of trades settled",
	}, []string{"type"})

	// TradeRejections counts trades refused at precondition checks.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_trade_rejections_total",
		Help: "Trades rejected before settlement",
	}, []string{"reason"})

	// TickDuration tracks how long a full market repricing pass takes.
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketsim_tick_duration_seconds",
		Help:    "Duration of a full pricing tick across all instruments",
		Buckets: prometheus.DefBuckets,
	})

	// LiquidationsTotal counts forced short liquidations.
	LiquidationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsim_liquidations_total",
		Help: "Short positions force-liquidated by the position monitor",
	})

	// MarginCallsTotal counts one-shot margin-call warnings issued.
	MarginCallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketsim_margin_calls_total",
		Help: "Margin-call warnings issued",
	})

	// OrdersFilledTotal counts limit orders filled by the matcher.
	OrdersFilledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_orders_filled_total",
		Help: "Limit orders filled",
	}, []string{"kind"})

	// EventsTotal counts injected market events by type.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_events_total",
		Help: "Market events injected",
	}, []string{"type"})

	// ActiveInstruments tracks the number of listed, repricing instruments.
	ActiveInstruments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_active_instruments",
		Help: "Number of active instruments",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketsim_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// RateLimitedTotal counts requests rejected by the gateway rate
	// limiter, partitioned by route group.
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	}, []string{"scope"})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketsim_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketsim_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request count and duration per route pattern.
// Using FullPath avoids per-ID label cardinality blowups.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).
			Observe(time.Since(start).Seconds())
	}
}

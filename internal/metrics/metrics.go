// Package metrics provides Prometheus instrumentation for the settlement engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MarketsCreated counts predictions created.
	MarketsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_markets_created_total",
		Help: "Total number of prediction markets created",
	})

	// MarketsResolved counts resolutions, partitioned by outcome.
	MarketsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_markets_resolved_total",
		Help: "Total number of prediction markets resolved",
	}, []string{"outcome"})

	// OpenMarkets tracks markets created but not yet resolved.
	OpenMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_open_markets",
		Help: "Number of unresolved markets",
	})

	// BetsTotal counts accepted bets, partitioned by choice.
	BetsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_bets_total",
		Help: "Total number of bets placed",
	}, []string{"choice"})

	// StakeVolume tracks cumulative value escrowed, partitioned by choice.
	StakeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_stake_volume_total",
		Help: "Cumulative value staked in smallest units",
	}, []string{"choice"})

	// ClaimsTotal counts successful reward claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_claims_total",
		Help: "Total number of rewards claimed",
	})

	// PayoutVolume tracks cumulative value paid out of escrow.
	PayoutVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_payout_volume_total",
		Help: "Cumulative value paid out in smallest units",
	})

	// Rejections counts rejected operations by operation and error kind.
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_rejections_total",
		Help: "Operations rejected by the registry",
	}, []string{"op", "kind"})

	// EventDrops counts notifications dropped because the dispatch buffer was full.
	EventDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_event_drops_total",
		Help: "Events dropped by the dispatcher",
	})

	// SinkErrors counts failed event deliveries per sink.
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_sink_errors_total",
		Help: "Event deliveries that failed",
	}, []string{"sink"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "settlement_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// AddAmount adds a decimal amount to a counter. Counters are float64, so
// very large amounts lose precision here; the ledger stays exact.
func AddAmount(c prometheus.Counter, amount interface{ InexactFloat64() float64 }) {
	if f := amount.InexactFloat64(); f > 0 {
		c.Add(f)
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

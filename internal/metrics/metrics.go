// Package metrics provides Prometheus instrumentation for the craps engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RollsTotal counts dice rolls applied, partitioned by resolution.
	RollsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craps_rolls_total",
		Help: "Total dice rolls applied",
	}, []string{"resolution"})

	// BetsPlacedTotal counts bets placed, partitioned by bet type name.
	BetsPlacedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craps_bets_placed_total",
		Help: "Total bets placed",
	}, []string{"type"})

	// BetsSettledTotal counts settled bets by outcome.
	BetsSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craps_bets_settled_total",
		Help: "Total bets settled",
	}, []string{"outcome"})

	// SettlementLatency tracks the duration of a full settlement pass.
	SettlementLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "craps_settlement_latency_seconds",
		Help:    "Settlement pass latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// PendingRolls tracks outstanding randomness requests (0 or 1).
	PendingRolls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "craps_pending_rolls",
		Help: "Outstanding randomness requests",
	})

	// VirtualDebt tracks the house-level uncovered shortfall.
	VirtualDebt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "craps_virtual_debt",
		Help: "House virtual debt outstanding",
	})

	// RebatesClaimedTotal counts rebate claims.
	RebatesClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craps_rebates_claimed_total",
		Help: "Rebate entitlements claimed",
	})

	// RebatesExpiredTotal counts forfeited entitlements.
	RebatesExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "craps_rebates_expired_total",
		Help: "Rebate entitlements forfeited after expiry",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "craps_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "craps_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "craps_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

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

		// Use the raw path for the label; route count is small and fixed.
		path := r.URL.Path
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

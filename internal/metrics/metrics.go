// Package metrics provides Prometheus instrumentation for the ledger engine.
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
	// TradesTotal counts committed trades, partitioned by type (BUY/SELL).
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trades_total",
		Help: "Total number of trades committed",
	}, []string{"type"})

	// TradeRejections counts rejected trades by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_trade_rejections_total",
		Help: "Trades rejected during validation",
	}, []string{"reason"})

	// LedgerAppends counts ledger entries appended, by entry type.
	LedgerAppends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_entries_appended_total",
		Help: "Ledger entries appended",
	}, []string{"type"})

	// RecalcDuration tracks summary recalculation latency by kind
	// (position/player).
	RecalcDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_summary_recalc_seconds",
		Help:    "Summary recalculation duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	// ImportRows counts bulk-import rows by outcome (imported/skipped/failed).
	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_import_rows_total",
		Help: "Bulk import rows processed",
	}, []string{"outcome"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ledger_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveRecalc records one summary recalculation. Call with defer:
//
//	defer metrics.ObserveRecalc("position", time.Now())
func ObserveRecalc(kind string, start time.Time) {
	RecalcDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
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

		// Use the raw path for the label; route cardinality is low here.
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

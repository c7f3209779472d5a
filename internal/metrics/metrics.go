// Package metrics exposes Prometheus counters for HTTP traffic, order
// operations and stock movements.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/pkg/httpmiddleware"
)

const namespace = "stockroom"

// Stock movement sources.
const (
	SourceOrder    = "order"
	SourcePurchase = "purchase"
	SourceOutgoing = "outgoing"
)

// Metrics holds the service collectors.
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	stock      *prometheus.CounterVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_operations_total",
			Help:      "Total number of order lifecycle operations",
		}, []string{"operation", "result"}),
		stock: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_units_total",
			Help:      "Units of stock moved, by source and direction",
		}, []string{"source", "direction"}),
	}
}

// RecordOrderOperation counts a lifecycle operation outcome.
func (m *Metrics) RecordOrderOperation(operation string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(operation, result).Inc()
}

// RecordStock counts units moved in or out of stock.
func (m *Metrics) RecordStock(source string, delta int) {
	switch {
	case delta > 0:
		m.stock.WithLabelValues(source, "in").Add(float64(delta))
	case delta < 0:
		m.stock.WithLabelValues(source, "out").Add(float64(-delta))
	}
}

// Notify implements order.Notifier by counting committed stock movements.
func (m *Metrics) Notify(_ context.Context, e order.Event) {
	m.RecordStock(SourceOrder, e.StockMoved)
}

// Middleware records request counts and latency labelled by route pattern.
// It must run inside httpmiddleware.Wrap for the route to be known.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats := httpsnoop.CaptureMetrics(next, w, r)
		route := httpmiddleware.RoutePattern(r.Context())
		if route == "" {
			route = "unmatched"
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(stats.Code)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(stats.Duration.Seconds())
	})
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

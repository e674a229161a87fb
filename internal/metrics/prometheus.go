// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"supplier-catalog-service/internal/domain"
)

const namespace = "catalog"

type Metrics struct {
	registry *prometheus.Registry

	fetchDuration   *prometheus.HistogramVec
	fetchFailures   *prometheus.CounterVec
	products        *prometheus.GaugeVec
	refreshCycles   *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	grpcRequests    *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "supplier_fetch_duration_seconds",
			Help:      "Duration of full supplier feed fetches.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"supplier", "outcome"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supplier_fetch_failures_total",
			Help:      "Total number of failed supplier fetches.",
		}, []string{"supplier"}),
		products: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supplier_products",
			Help:      "Number of products in the latest supplier snapshot.",
		}, []string{"supplier"}),
		refreshCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_cycles_total",
			Help:      "Total number of completed refresh cycles.",
		}, []string{"trigger", "outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_cycle_duration_seconds",
			Help:      "Duration of complete refresh cycles.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "endpoint", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "endpoint", "status"}),
		grpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grpc_requests_total",
			Help: "Total number of unary gRPC requests.",
		}, []string{"method", "code"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetchDuration,
		m.fetchFailures,
		m.products,
		m.refreshCycles,
		m.refreshDuration,
		m.httpRequests,
		m.httpDuration,
		m.grpcRequests,
	)
	return m
}

// ObserveFetch records the outcome of one supplier fetch.
func (m *Metrics) ObserveFetch(supplier domain.Supplier, took time.Duration, items int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
		m.fetchFailures.WithLabelValues(string(supplier)).Inc()
		items = 0
	}
	m.fetchDuration.WithLabelValues(string(supplier), outcome).Observe(took.Seconds())
	m.products.WithLabelValues(string(supplier)).Set(float64(items))
}

// ObserveRefresh records a completed refresh cycle.
func (m *Metrics) ObserveRefresh(cycle domain.RefreshCycle) {
	outcome := "success"
	if len(cycle.FailedSuppliers()) > 0 {
		outcome = "partial"
	}
	m.refreshCycles.WithLabelValues(cycle.Trigger, outcome).Inc()
	m.refreshDuration.Observe(cycle.FinishedAt.Sub(cycle.StartedAt).Seconds())
}

// RecordRequest records metrics for one HTTP request.
func (m *Metrics) RecordRequest(method, endpoint string, statusCode int, duration time.Duration) {
	class := classifyStatus(statusCode)
	m.httpRequests.WithLabelValues(method, endpoint, class).Inc()
	m.httpDuration.WithLabelValues(method, endpoint, class).Observe(duration.Seconds())
}

// Middleware records every request under its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		code := ww.Status()
		if code == 0 {
			code = http.StatusOK
		}
		m.RecordRequest(r.Method, endpoint, code, time.Since(start))
	})
}

// UnaryServerInterceptor counts unary gRPC calls by method and status code.
func (m *Metrics) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		resp, err := handler(ctx, req)
		m.grpcRequests.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func classifyStatus(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500 && statusCode < 600:
		return "5xx"
	}
	return "unknown"
}

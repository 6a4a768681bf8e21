// Package metrics holds the Prometheus collectors of the intake service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	Submissions   *prometheus.CounterVec
	CRMSyncs      *prometheus.CounterVec
	Notifications *prometheus.CounterVec
}

// New registers every collector on reg. A nil reg gets a fresh registry with
// the Go runtime and process collectors.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "leads_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		Submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_submissions_total",
				Help: "Total number of form submissions by outcome",
			},
			[]string{"form", "outcome"}, // outcome: synced, crm_disabled, sync_failed, malformed
		),
		CRMSyncs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_crm_sync_total",
				Help: "Total number of CRM lead submissions",
			},
			[]string{"result"}, // success, failure
		),
		Notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "leads_notifications_total",
				Help: "Total number of chat notifications by result",
			},
			[]string{"result"}, // sent, failed, skipped
		),
	}
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordSubmission counts one form submission.
func (m *Metrics) RecordSubmission(form, outcome string) {
	m.Submissions.WithLabelValues(form, outcome).Inc()
}

// RecordCRMSync counts one CRM submission attempt.
func (m *Metrics) RecordCRMSync(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.CRMSyncs.WithLabelValues(result).Inc()
}

// RecordNotification counts one notification outcome.
func (m *Metrics) RecordNotification(result string) {
	m.Notifications.WithLabelValues(result).Inc()
}

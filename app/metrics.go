package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeNotFound     = "not_found"
	outcomeError        = "error"
	outcomeCSRFRejected = "csrf_rejected"
)

type metrics struct {
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	outcomes        *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	uploads         *prometheus.CounterVec
	storeFailures   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "storefront",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "pipeline_terminal_total",
			Help:      "Requests ended by the error boundary, by outcome.",
		}, []string{"outcome"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "sessions_created_total",
			Help:      "New sessions persisted.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "uploads_total",
			Help:      "Upload filter decisions.",
		}, []string{"result"}),
		storeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "storefront",
			Name:      "store_failures_total",
			Help:      "Backend failures that ended a request.",
		}, []string{"store"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration, m.outcomes, m.sessionsCreated, m.uploads, m.storeFailures)
	}
	return m
}

func (m *metrics) outcome(o string)     { m.outcomes.WithLabelValues(o).Inc() }
func (m *metrics) sessionCreated()      { m.sessionsCreated.Inc() }
func (m *metrics) upload(result string) { m.uploads.WithLabelValues(result).Inc() }
func (m *metrics) storeFailure(s string) {
	m.storeFailures.WithLabelValues(s).Inc()
}

// instrument records request count and latency. It must run inside
// recoverer so the final status is visible.
func (m *metrics) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		status := http.StatusOK
		if rw, ok := w.(*responseWriter); ok {
			status = rw.Status()
		}
		m.requests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		m.duration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

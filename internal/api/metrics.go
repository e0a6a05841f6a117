package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "whisper_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	creditsConsumedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "whisper_credits_consumed_total",
		Help: "Credits consumed, by kind.",
	}, []string{"kind"})

	whispersStored = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_stored_total",
		Help: "Number of whispers currently stored (waiting or read-pending-delete).",
	})

	activeCardsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whisper_active_cards_total",
		Help: "Number of active cards with at least one remaining credit.",
	})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, creditsConsumedTotal, whispersStored, activeCardsTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		requestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(dur)
	})
}

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics - метрики HTTP API: число запросов, латентность и запросы в работе.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

// NewHTTPMetrics регистрирует HTTP-метрики в переданном реестре (nil - DefaultRegisterer).
func NewHTTPMetrics(registerer prometheus.Registerer) *HTTPMetrics {
	return &HTTPMetrics{
		requests: register(registerer, "orderdesk_http_requests_total", prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"})),
		duration: register(registerer, "orderdesk_http_request_duration_seconds", prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orderdesk_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})),
		inFlight: register(registerer, "orderdesk_http_requests_in_flight", prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderdesk_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served",
		})),
	}
}

// Started отмечает начало обработки запроса.
func (m *HTTPMetrics) Started() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

// Observe фиксирует завершённый запрос. route - шаблон маршрута, а не сырой путь.
func (m *HTTPMetrics) Observe(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.inFlight.Dec()
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(duration.Seconds())
}

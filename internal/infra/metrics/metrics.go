package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 認証イベントの結果
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics はHTTPと認証のメトリクス
type Metrics struct {
	reg prometheus.Gatherer

	HTTPInFlight        prometheus.Gauge
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	authEvents *prometheus.CounterVec
}

// New はメトリクスを作ってregに登録する。
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		reg: reg,
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		authEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_events_total",
				Help: "Authentication events by operation and outcome.",
			},
			[]string{"event", "outcome"},
		),
	}
	reg.MustRegister(m.HTTPInFlight, m.HTTPRequestsTotal, m.HTTPRequestDuration, m.authEvents)
	return m
}

// AuthEvent は login/token/refresh などの結果を数える
func (m *Metrics) AuthEvent(event string, outcome string) {
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

// Handler はPrometheusのscrape用ハンドラ
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

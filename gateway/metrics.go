package gateway

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the gateway's prometheus collectors.
type Metrics struct {
	requests     *prometheus.CounterVec
	unauthorized prometheus.Counter
	refreshes    *prometheus.CounterVec
	retries      prometheus.Counter
	pending      prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiclient",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "HTTP attempts sent by the gateway, by method and status class.",
		}, []string{"method", "code"}),
		unauthorized: f.NewCounter(prometheus.CounterOpts{
			Namespace: "apiclient",
			Subsystem: "gateway",
			Name:      "unauthorized_total",
			Help:      "First attempts rejected with 401.",
		}),
		refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "apiclient",
			Subsystem: "gateway",
			Name:      "refreshes_total",
			Help:      "Refresh episodes started by the gateway, by outcome.",
		}, []string{"outcome"}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: "apiclient",
			Subsystem: "gateway",
			Name:      "retries_total",
			Help:      "Requests re-sent after a 401.",
		}),
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "apiclient",
			Subsystem: "gateway",
			Name:      "pending_requests",
			Help:      "Requests parked on an in-flight refresh.",
		}),
	}
}

func (m *Metrics) observe(method string, status int) {
	m.requests.WithLabelValues(method, strconv.Itoa(status/100)+"xx").Inc()
}

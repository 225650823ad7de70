package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejected        *prometheus.CounterVec
	TrackedVisitors prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realreview_ratelimit_rejected_total",
			Help: "Requests rejected by the per-IP limiter, by limited route",
		}, []string{"route"}),
		TrackedVisitors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "realreview_ratelimit_tracked_visitors",
			Help: "Client IPs currently holding a token bucket",
		}),
	}
}

func (m *Metrics) IncrementRejected(route string) {
	m.Rejected.WithLabelValues(route).Inc()
}

func (m *Metrics) SetTrackedVisitors(count int) {
	m.TrackedVisitors.Set(float64(count))
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ResolveDuration *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ResolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "realreview_geocoding_resolve_duration_seconds",
			Help:    "Latency of geocoding lookups by outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"outcome"}),
	}
}

func (m *Metrics) ObserveResolve(outcome string, d time.Duration) {
	m.ResolveDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

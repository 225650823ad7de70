package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EventsRecorded  *prometheus.CounterVec
	EventsForwarded prometheus.Counter
	ForwardDropped  prometheus.Counter
	ForwardFailed   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EventsRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realreview_moderation_events_recorded_total",
			Help: "Moderation events appended to the store by action",
		}, []string{"action"}),
		EventsForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "realreview_moderation_events_forwarded_total",
			Help: "Moderation events delivered to the broker",
		}),
		ForwardDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "realreview_moderation_events_dropped_total",
			Help: "Moderation events not forwarded because the queue was full",
		}),
		ForwardFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "realreview_moderation_events_forward_failed_total",
			Help: "Moderation events the broker rejected",
		}),
	}
}

func (m *Metrics) IncrementRecorded(action string) {
	m.EventsRecorded.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementForwarded() {
	m.EventsForwarded.Inc()
}

func (m *Metrics) IncrementDropped() {
	m.ForwardDropped.Inc()
}

func (m *Metrics) IncrementForwardFailed() {
	m.ForwardFailed.Inc()
}

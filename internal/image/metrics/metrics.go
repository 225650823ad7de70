package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers uploads, moderation and ratings.
type Metrics struct {
	Uploads          *prometheus.CounterVec
	Moderations      *prometheus.CounterVec
	RatingsSubmitted *prometheus.CounterVec
	AverageLookups   prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realreview_image_uploads_total",
			Help: "Image uploads by outcome",
		}, []string{"result"}),
		Moderations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realreview_image_moderations_total",
			Help: "Approve and reject decisions that changed an image",
		}, []string{"action"}),
		RatingsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "realreview_ratings_submitted_total",
			Help: "Ratings stored, split into new ratings and updates",
		}, []string{"kind"}),
		AverageLookups: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "realreview_image_list_size",
			Help:    "Number of images whose average rating was computed per listing",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		}),
	}
}

// IncrementUpload records an upload outcome: success, invalid_location,
// geocoder_error or storage_error.
func (m *Metrics) IncrementUpload(result string) {
	m.Uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) IncrementModeration(action string) {
	m.Moderations.WithLabelValues(action).Inc()
}

func (m *Metrics) IncrementRating(created bool) {
	kind := "updated"
	if created {
		kind = "created"
	}
	m.RatingsSubmitted.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveListing(n int) {
	m.AverageLookups.Observe(float64(n))
}

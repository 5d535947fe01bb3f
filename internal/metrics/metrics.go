package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is safe to use through a nil pointer, in which case every
// observation is a no-op.
type Metrics struct {
	imagesTotal      *prometheus.CounterVec
	failuresTotal    *prometheus.CounterVec
	pipelineDuration prometheus.Histogram
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		imagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_images_total",
				Help: "Total number of images placed, by partition",
			},
			[]string{"partition"},
		),
		failuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "moderation_failures_total",
				Help: "Total number of failed moderation requests, by failure kind",
			},
			[]string{"kind"},
		),
		pipelineDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "moderation_pipeline_duration_seconds",
				Help:    "Duration of a moderation pipeline run in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}

func (m *Metrics) ObservePlaced(partition string) {
	if m == nil {
		return
	}
	m.imagesTotal.WithLabelValues(partition).Inc()
}

func (m *Metrics) ObserveFailure(kind string) {
	if m == nil {
		return
	}
	m.failuresTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDuration(start time.Time) {
	if m == nil {
		return
	}
	m.pipelineDuration.Observe(time.Since(start).Seconds())
}

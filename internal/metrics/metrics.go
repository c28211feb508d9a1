package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "lessonscope"

var (
	PipelineRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "pipeline_runs_total", Help: "Transcription pipeline runs by outcome."},
		[]string{"outcome"},
	)
	PipelineDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_duration_seconds",
			Help:      "Wall time of one transcription pipeline run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	PipelineQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "pipeline_queue_depth", Help: "Jobs waiting for a pipeline worker."},
	)
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter."},
		[]string{"limiter"},
	)
	SessionsSwept = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "sessions_swept_total", Help: "Expired session rows removed by the janitor."},
	)
)

// RegisterCollectors registers every collector of this package on reg.
func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(PipelineRuns)
	reg.MustRegister(PipelineDuration)
	reg.MustRegister(PipelineQueueDepth)
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(SessionsSwept)
}

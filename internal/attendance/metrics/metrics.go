package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the attendance module.
type Metrics struct {
	CheckIns            *prometheus.CounterVec
	CheckOuts           prometheus.Counter
	MarkRejected        *prometheus.CounterVec
	RecognitionFailures prometheus.Counter
	MarkDuration        prometheus.Histogram
	StatsDuration       prometheus.Histogram
}

// New creates a new Metrics instance with all attendance module metrics registered.
func New() *Metrics {
	return &Metrics{
		CheckIns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_check_ins_total",
			Help: "Total number of check-ins by classification",
		}, []string{"classification"}),
		CheckOuts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presence_check_outs_total",
			Help: "Total number of check-outs",
		}),
		MarkRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "presence_mark_rejected_total",
			Help: "Total number of rejected mark attempts by reason",
		}, []string{"reason"}),
		RecognitionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "presence_recognition_failures_total",
			Help: "Total number of failed recognition attempts",
		}),
		MarkDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "presence_mark_duration_seconds",
			Help:    "Duration of the mark attendance operation",
			Buckets: prometheus.DefBuckets,
		}),
		StatsDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "presence_stats_duration_seconds",
			Help:    "Duration of monthly statistics computation",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Stage names used as metric labels and in log lines.
const (
	StageLoad      = "load"
	StageNormalize = "normalize"
	StageResample  = "resample"
	StageAlign     = "align"
	StageBlend     = "blend"
)

var (
	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "volfusion_stage_duration_seconds",
		Help:    "Duration of pipeline stages.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"stage"})
	stageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volfusion_stage_failures_total",
		Help: "Number of failed pipeline stages.",
	}, []string{"stage"})
)

// runStage times fn under the given stage label and counts failures.
func runStage(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	stageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	if err != nil {
		stageFailures.WithLabelValues(stage).Inc()
	}
	return err
}

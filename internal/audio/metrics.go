package audio

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the package's prometheus instruments, following the
// teacher's metrics.go/metrics_registry.go split (package-level promauto
// vars behind a singleton constructor) but trimmed to the counters spec.md
// §7 and §8 actually need, and reprefixed from the teacher's jetkvm_ to
// voicecore_ for this domain.
type Metrics struct {
	StateTransitions   *prometheus.CounterVec
	QueueDepth         *prometheus.GaugeVec
	FramesDropped      *prometheus.CounterVec
	DecodeErrors       prometheus.Counter
	EncodeErrors       prometheus.Counter
	WorkerActiveTasks  prometheus.Gauge
	WorkerBlockedTotal prometheus.Counter
	TransportErrors    *prometheus.CounterVec
	ThinningRemovals   prometheus.Counter
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// GetMetrics returns the process-wide Metrics instance, registering its
// collectors with the default registry on first use, matching the
// teacher's MetricsRegistry sync.Once pattern.
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = &Metrics{
			StateTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "voicecore_state_transitions_total",
				Help: "Count of device state transitions by resulting state.",
			}, []string{"state"}),
			QueueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "voicecore_queue_depth",
				Help: "Current depth of an internal bounded queue.",
			}, []string{"queue"}),
			FramesDropped: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "voicecore_frames_dropped_total",
				Help: "Count of frames dropped from a bounded queue (thinned frames are counted by voicecore_thinning_removals_total).",
			}, []string{"queue", "reason"}),
			DecodeErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voicecore_decode_errors_total",
				Help: "Count of codec decode failures.",
			}),
			EncodeErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voicecore_encode_errors_total",
				Help: "Count of codec encode failures.",
			}),
			WorkerActiveTasks: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "voicecore_worker_active_tasks",
				Help: "Current count of scheduled-but-not-finished background tasks.",
			}),
			WorkerBlockedTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voicecore_worker_schedule_blocked_total",
				Help: "Count of Schedule calls that blocked on the hard limit.",
			}),
			TransportErrors: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "voicecore_transport_errors_total",
				Help: "Count of transport errors by kind.",
			}, []string{"kind"}),
			ThinningRemovals: promauto.NewCounter(prometheus.CounterOpts{
				Name: "voicecore_thinning_removals_total",
				Help: "Count of frames removed by the thinning admission policy.",
			}),
		}
	})
	return metricsInstance
}

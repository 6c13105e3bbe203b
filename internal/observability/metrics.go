package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canwire",
			Subsystem: "rx",
			Name:      "frames_total",
			Help:      "Frames handed to the reassembly engine, by outcome.",
		},
		[]string{"node", "outcome"},
	)
	transfersCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canwire",
			Subsystem: "rx",
			Name:      "transfers_total",
			Help:      "Completed transfers delivered to the application.",
		},
		[]string{"node", "kind"},
	)
	transfersDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canwire",
			Subsystem: "rx",
			Name:      "discards_total",
			Help:      "In-progress transfers dropped, by reason.",
		},
		[]string{"node", "reason"},
	)
	framesTransmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canwire",
			Subsystem: "tx",
			Name:      "frames_total",
			Help:      "Frames handed to the link driver.",
		},
		[]string{"node"},
	)
	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "canwire",
			Subsystem: "tx",
			Name:      "queue_depth",
			Help:      "Frames pending in the priority transmit queue.",
		},
		[]string{"node"},
	)
	liveSessions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "canwire",
			Subsystem: "rx",
			Name:      "sessions",
			Help:      "Live reassembly sessions in the fixed table.",
		},
		[]string{"node"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "canwire",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests against the daemon surface.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "canwire",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			framesReceived, transfersCompleted, transfersDiscarded,
			framesTransmitted, queueDepth, liveSessions,
			httpRequests, httpDuration,
		)
	})
}

func RecordFrameReceived(node, outcome string) {
	RegisterMetrics()
	framesReceived.WithLabelValues(node, outcome).Inc()
}

func RecordTransferCompleted(node, kind string) {
	RegisterMetrics()
	transfersCompleted.WithLabelValues(node, kind).Inc()
}

func RecordTransferDiscarded(node, reason string) {
	RegisterMetrics()
	transfersDiscarded.WithLabelValues(node, reason).Inc()
}

func RecordFrameTransmitted(node string) {
	RegisterMetrics()
	framesTransmitted.WithLabelValues(node).Inc()
}

func SetQueueDepth(node string, depth int) {
	RegisterMetrics()
	queueDepth.WithLabelValues(node).Set(float64(depth))
}

func SetLiveSessions(node string, n int) {
	RegisterMetrics()
	liveSessions.WithLabelValues(node).Set(float64(n))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

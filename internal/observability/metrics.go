package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Recognitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "recognitions_total",
		Help:      "Recognition calls by outcome",
	}, []string{"outcome"}) // no_match, suppressed, checked_in, duplicate, not_recorded, error

	MatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "fd",
		Name:      "match_duration_seconds",
		Help:      "Duration of a gallery similarity scan",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	ExtractDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fd",
		Name:      "extract_duration_seconds",
		Help:      "Duration of face extraction stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fd",
		Name:      "gallery_identities",
		Help:      "Number of identities currently enrolled in the in-memory gallery",
	})

	GalleryPersistFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "gallery_persist_failures_total",
		Help:      "Gallery snapshot writes that failed after an applied mutation",
	})

	AttendanceWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "attendance_writes_total",
		Help:      "Attendance ledger results",
	}, []string{"result"}) // created, existing, conflict, failed

	StorageRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "storage_retries_total",
		Help:      "Transient storage failures that were retried",
	}, []string{"op"})

	SyncTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fd",
		Name:      "sync_ticks_total",
		Help:      "Auto-reload monitor ticks by result",
	}, []string{"result"}) // unchanged, reloaded, source_error, reload_error

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fd",
		Name:      "queue_depth",
		Help:      "Number of pending recognition tasks in queue",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fd",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fd",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)

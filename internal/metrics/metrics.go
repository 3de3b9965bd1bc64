package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subsync_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subsync_active_sessions",
			Help: "Number of open sync sessions",
		},
	)

	// Detection Metrics
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_site_detections_total",
			Help: "Total number of site detections by outcome",
		},
		[]string{"site", "outcome"},
	)

	DetectionRetries = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subsync_site_detection_retries",
			Help:    "Number of retries needed before a detection finished",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
		},
		[]string{"site"},
	)

	// Match Metrics
	TrackMatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_track_matches_total",
			Help: "Total number of preference matches by outcome",
		},
		[]string{"outcome"},
	)

	// Sync Metrics
	SyncsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_syncs_total",
			Help: "Total number of subtitle syncs by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// Retrieval Metrics
	TrackRetrievalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_track_retrievals_total",
			Help: "Total number of track retrievals by source kind and status",
		},
		[]string{"kind", "status"},
	)

	TrackRetrievalDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subsync_track_retrieval_duration_seconds",
			Help:    "Track retrieval duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"kind"},
	)

	TracksSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_tracks_skipped_total",
			Help: "Total number of tracks dropped from a batch without aborting it",
		},
		[]string{"reason"},
	)

	SegmentsFetchedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subsync_manifest_segments_fetched_total",
			Help: "Total number of manifest segments fetched",
		},
	)

	RetrievedBytes = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subsync_retrieved_bytes",
			Help:    "Size of retrieved subtitle payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 4, 10),
		},
	)

	// Search Metrics
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_search_requests_total",
			Help: "Total number of remote metadata and subtitle searches",
		},
		[]string{"service", "status"},
	)

	// Storage Metrics
	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subsync_storage_operation_duration_seconds",
			Help:    "Storage operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Database Metrics
	DatabaseOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_database_operations_total",
			Help: "Total number of database operations",
		},
		[]string{"operation", "status"},
	)

	// Cache Metrics
	CacheAccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_cache_access_total",
			Help: "Total number of cache lookups",
		},
		[]string{"cache_type", "result"},
	)

	// Queue Metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subsync_queue_depth",
			Help: "Number of messages waiting in a queue",
		},
		[]string{"queue"},
	)

	EventsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_events_processed_total",
			Help: "Total number of queued events processed by the worker",
		},
		[]string{"status"},
	)

	// Error Metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subsync_errors_total",
			Help: "Total number of errors by component and type",
		},
		[]string{"component", "error_type"},
	)
)

// RecordHTTPRequest records HTTP request metrics
func RecordHTTPRequest(method, endpoint, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordDetection records the outcome of a site detection
func RecordDetection(site, outcome string, retries int) {
	DetectionsTotal.WithLabelValues(site, outcome).Inc()
	if outcome != "unsupported" {
		DetectionRetries.WithLabelValues(site).Observe(float64(retries))
	}
}

// RecordMatch records a preference match outcome
func RecordMatch(complete bool) {
	outcome := "partial"
	if complete {
		outcome = "complete"
	}
	TrackMatchesTotal.WithLabelValues(outcome).Inc()
}

// RecordSync records a finished sync attempt
func RecordSync(trigger, status string) {
	SyncsTotal.WithLabelValues(trigger, status).Inc()
}

// RecordTrackRetrieval records a single track retrieval
func RecordTrackRetrieval(kind, status string, duration float64, bytes int) {
	TrackRetrievalsTotal.WithLabelValues(kind, status).Inc()
	TrackRetrievalDuration.WithLabelValues(kind).Observe(duration)
	if bytes > 0 {
		RetrievedBytes.Observe(float64(bytes))
	}
}

// RecordTrackSkipped records a track dropped from a batch
func RecordTrackSkipped(reason string) {
	TracksSkippedTotal.WithLabelValues(reason).Inc()
}

// RecordSegmentFetched records one fetched manifest segment
func RecordSegmentFetched() {
	SegmentsFetchedTotal.Inc()
}

// RecordSearch records a remote search call
func RecordSearch(service, status string) {
	SearchRequestsTotal.WithLabelValues(service, status).Inc()
}

// RecordStorageOperation records storage operation metrics
func RecordStorageOperation(operation, status string, duration float64) {
	StorageOperationsTotal.WithLabelValues(operation, status).Inc()
	StorageOperationDuration.WithLabelValues(operation).Observe(duration)
}

// RecordDatabaseOperation records database operation metrics
func RecordDatabaseOperation(operation, status string) {
	DatabaseOperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordCacheAccess records cache hit/miss
func RecordCacheAccess(cacheType string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheAccessTotal.WithLabelValues(cacheType, result).Inc()
}

// RecordError records an error occurrence
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// SessionOpened increments the open session gauge
func SessionOpened() {
	ActiveSessions.Inc()
}

// SessionClosed decrements the open session gauge
func SessionClosed() {
	ActiveSessions.Dec()
}

// SetQueueDepth records the number of waiting messages in a queue
func SetQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}

// RecordEventProcessed counts a worker event by outcome
func RecordEventProcessed(status string) {
	EventsProcessedTotal.WithLabelValues(status).Inc()
}

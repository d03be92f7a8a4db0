// Package metrics holds the Prometheus collectors for conversions, uploads and the HTTP API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Conversion metrics
var (
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsdrop_conversions_total",
			Help: "Total number of conversion attempts by outcome",
		},
		[]string{"status"},
	)

	ConversionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hlsdrop_conversions_in_flight",
			Help: "Number of conversions currently running",
		},
	)

	ConversionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hlsdrop_conversion_duration_seconds",
			Help:    "Wall time of a whole conversion",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlsdrop_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.05, 3, 10),
		},
		[]string{"stage"},
	)

	SegmentsPerConversion = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hlsdrop_segments_per_conversion",
			Help:    "Number of segments discovered in the generated playlist",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
	)

	EngineLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsdrop_engine_loads_total",
			Help: "Transcoding engine load attempts by outcome",
		},
		[]string{"status"},
	)
)

// Upload metrics
var (
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsdrop_uploads_total",
			Help: "Total number of artifact uploads by host, kind and outcome",
		},
		[]string{"host", "kind", "status"},
	)

	UploadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlsdrop_upload_duration_seconds",
			Help:    "Duration of a single artifact upload",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"host", "kind"},
	)

	UploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsdrop_upload_bytes_total",
			Help: "Bytes sent to hosts",
		},
		[]string{"host", "kind"},
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hlsdrop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hlsdrop_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// Outcome label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// StatusLabel maps an error to an outcome label.
func StatusLabel(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

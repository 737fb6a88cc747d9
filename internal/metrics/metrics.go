// Package metrics declares the Prometheus instrumentation for the client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Push-channel metrics
var (
	// ConnectionState tracks the current push-channel state
	// (0=connecting, 1=open, 2=closed, 3=error).
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pushchannel_connection_state",
			Help: "Current push channel state (0=connecting, 1=open, 2=closed, 3=error)",
		},
	)

	// ReconnectAttempts counts scheduled automatic reconnect attempts.
	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushchannel_reconnect_attempts_total",
			Help: "Total automatic reconnect attempts scheduled",
		},
	)

	// FramesReceived counts well-formed inbound envelopes by type.
	FramesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushchannel_frames_received_total",
			Help: "Well-formed inbound envelopes by envelope type",
		},
		[]string{"type"},
	)

	// FramesDropped counts inbound frames dropped due to parse failure.
	FramesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushchannel_frames_dropped_total",
			Help: "Inbound frames dropped because they failed to parse",
		},
	)

	// SendsFailed counts Send calls refused because the channel was not open
	// or the write failed.
	SendsFailed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pushchannel_sends_failed_total",
			Help: "Send attempts refused or failed on the push channel",
		},
	)
)

// Analysis request metrics
var (
	// AnalysisRequests counts issued analysis attempts by mode and path.
	AnalysisRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_requests_total",
			Help: "Analysis attempts by mode (realtime/manual) and path (push/fallback)",
		},
		[]string{"mode", "path"},
	)

	// AnalysisFailures counts surfaced analysis failures by path.
	AnalysisFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analysis_failures_total",
			Help: "Surfaced analysis failures by path (fallback/push_timeout)",
		},
		[]string{"path"},
	)

	// FallbackDuration tracks fallback request round-trip time in seconds.
	FallbackDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "analysis_fallback_duration_seconds",
			Help:    "Fallback request round-trip duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)
)

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the transcription service. Registered once at
// package init via promauto and scraped through the monitoring HTTP server.
var (
	// ActiveConnections tracks currently open TCP command connections
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "friday_active_connections",
		Help: "Number of currently open command connections",
	})

	// CommandsTotal counts processed commands by type and result
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_commands_total",
		Help: "Total number of processed protocol commands",
	}, []string{"type", "result"})

	// ActiveStreams tracks currently registered audio streams by type
	ActiveStreams = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "friday_active_streams",
		Help: "Number of currently active audio streams",
	}, []string{"stream_type"})

	// AudioBytesReceived counts raw PCM bytes accepted into stream buffers
	AudioBytesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_audio_bytes_received_total",
		Help: "Total raw PCM bytes accepted into stream buffers",
	}, []string{"stream_type"})

	// ChunksExtracted counts chunks pulled from stream buffers
	ChunksExtracted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_chunks_extracted_total",
		Help: "Total audio chunks extracted for transcription",
	}, []string{"stream_type"})

	// GateRejections counts chunks dropped by the quality gate, by reason
	GateRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_gate_rejections_total",
		Help: "Total chunks rejected by the quality gate",
	}, []string{"stream_type", "reason"})

	// TranscriptionRequests counts transcription engine invocations by result
	TranscriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_transcription_requests_total",
		Help: "Total transcription engine invocations",
	}, []string{"stream_type", "result"})

	// TranscriptionDuration observes transcription engine latency
	TranscriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "friday_transcription_duration_seconds",
		Help:    "Latency of transcription engine invocations",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	// TranscriptUpdates counts completed sentences pushed to clients
	TranscriptUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_transcript_updates_total",
		Help: "Total completed sentence updates emitted",
	}, []string{"stream_type", "cause"})

	// AlertChecks counts keyword alert evaluations by result
	AlertChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "friday_alert_checks_total",
		Help: "Total keyword alert evaluations",
	}, []string{"result"})
)

// Update causes for TranscriptUpdates
const (
	CausePunctuation = "punctuation"
	CauseTimeout     = "timeout"
	CauseFinalDrain  = "final_drain"
)

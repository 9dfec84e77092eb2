package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/doramirdor/friday-ai/internal/asr"
	"github.com/doramirdor/friday-ai/internal/audio"
	"github.com/doramirdor/friday-ai/internal/config"
	"github.com/doramirdor/friday-ai/internal/stream"
)

// ASRStatsProvider exposes transcription client statistics for monitoring
type ASRStatsProvider interface {
	GetStats() asr.ClientStats
}

// HTTPServer provides HTTP API endpoints for monitoring
type HTTPServer struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	registry  *stream.Registry
	tcpServer *TCPServer
	asrStats  ASRStatsProvider

	startTime time.Time
	mu        sync.RWMutex
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config,
	registry *stream.Registry, tcpServer *TCPServer, asrStats ASRStatsProvider) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		config:    appConfig,
		registry:  registry,
		tcpServer: tcpServer,
		asrStats:  asrStats,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/streams", h.handleStreams)
	mux.HandleFunc("/streams/", h.handleStreamDetail)
	mux.HandleFunc("/config", h.handleConfig)
	mux.HandleFunc("/stats", h.handleStats)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/", h.handleRoot)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// streamInfo is the monitoring view of one active stream
type streamInfo struct {
	StreamID    string            `json:"stream_id"`
	StreamType  string            `json:"stream_type"`
	StartedAt   time.Time         `json:"started_at"`
	Uptime      string            `json:"uptime"`
	Buffer      audio.BufferStats `json:"buffer"`
	Accumulating bool             `json:"accumulating"`
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(h.startTime)
	serverStats := h.tcpServer.GetStatistics()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    uptime.String(),
		"service": map[string]interface{}{
			"name":    "friday-transcription-service",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"command_server": map[string]interface{}{
				"status":             "running",
				"active_connections": serverStats.ActiveConnections,
				"commands_total":     serverStats.CommandsTotal,
				"command_errors":     serverStats.CommandErrors,
			},
			"streams": map[string]interface{}{
				"status":       "running",
				"active_count": h.registry.Count(),
			},
			"transcription": h.transcriptionHealth(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

func (h *HTTPServer) transcriptionHealth() map[string]interface{} {
	if h.asrStats == nil {
		return map[string]interface{}{"status": "unavailable"}
	}

	stats := h.asrStats.GetStats()
	return map[string]interface{}{
		"status":          "running",
		"total_requests":  stats.TotalRequests,
		"success_rate":    stats.SuccessRate,
		"active_requests": stats.ActiveRequests,
	}
}

// handleStreams implements the /streams endpoint
func (h *HTTPServer) handleStreams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streams := h.registry.ActiveStreams()
	infos := make([]streamInfo, 0, len(streams))

	for _, s := range streams {
		infos = append(infos, streamInfoFor(s))
	}

	response := map[string]interface{}{
		"total_streams": len(infos),
		"timestamp":     time.Now().UTC(),
		"streams":       infos,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleStreamDetail implements the /streams/{stream_id} endpoint
func (h *HTTPServer) handleStreamDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	streamID := r.URL.Path[len("/streams/"):]
	if streamID == "" {
		http.Error(w, "Stream ID required", http.StatusBadRequest)
		return
	}

	s, err := h.registry.Get(streamID)
	if err != nil {
		http.Error(w, "Stream not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(streamInfoFor(s))
}

func streamInfoFor(s *stream.Stream) streamInfo {
	return streamInfo{
		StreamID:     s.ID,
		StreamType:   s.Type.String(),
		StartedAt:    s.StartedAt,
		Uptime:       time.Since(s.StartedAt).Round(time.Millisecond).String(),
		Buffer:       s.Buffer.GetStats(),
		Accumulating: s.Accumulator.Accumulating(),
	}
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Sanitized configuration; the ASR API key is intentionally omitted
	sanitized := map[string]interface{}{
		"server": map[string]interface{}{
			"port":            h.config.Server.Port,
			"bind_address":    h.config.Server.BindAddress,
			"max_connections": h.config.Server.MaxConnections,
		},
		"audio": map[string]interface{}{
			"sample_rate":        h.config.Audio.SampleRate,
			"chunk_duration":     h.config.Audio.ChunkDuration,
			"min_chunk_duration": h.config.Audio.MinChunkDuration,
			"overlap_duration":   h.config.Audio.OverlapDuration,
		},
		"transcript": map[string]interface{}{
			"sentence_timeout":     h.config.Transcript.SentenceTimeout,
			"min_segment_duration": h.config.Transcript.MinSegmentDuration,
			"history_size":         h.config.Transcript.HistorySize,
		},
		"asr": map[string]interface{}{
			"endpoint":       h.config.ASR.Endpoint,
			"timeout":        h.config.ASR.Timeout,
			"max_retries":    h.config.ASR.MaxRetries,
			"max_concurrent": h.config.ASR.MaxConcurrent,
			"language":       h.config.ASR.Language,
			"model":          h.config.ASR.Model,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitized)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serverStats := h.tcpServer.GetStatistics()
	uptime := time.Since(h.startTime)

	stats := map[string]interface{}{
		"uptime":    uptime.String(),
		"timestamp": time.Now().UTC(),
		"server":    serverStats,
		"streams": map[string]interface{}{
			"active_count": h.registry.Count(),
		},
	}

	if h.asrStats != nil {
		stats["transcription"] = h.asrStats.GetStats()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Friday Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                    "API documentation",
			"GET /health":              "Service health check",
			"GET /streams":             "List all active streams",
			"GET /streams/{stream_id}": "Get detailed stream information",
			"GET /config":              "Get service configuration",
			"GET /stats":               "Get service statistics",
			"GET /metrics":             "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}

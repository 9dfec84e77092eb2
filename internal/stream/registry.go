package stream

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/doramirdor/friday-ai/internal/audio"
	"github.com/doramirdor/friday-ai/internal/metrics"
	"github.com/doramirdor/friday-ai/internal/protocol"
	"github.com/doramirdor/friday-ai/internal/transcript"
)

var (
	// ErrStreamExists is returned when starting a stream whose ID is taken
	ErrStreamExists = errors.New("stream already exists")
	// ErrStreamNotFound is returned for operations on an unknown stream ID
	ErrStreamNotFound = errors.New("stream not found")
)

// Stream holds the per-stream state: its identity, its audio buffer and its
// sentence accumulator. The buffer has its own lock; the accumulator is
// mutated only under procMu.
type Stream struct {
	ID          string
	Type        protocol.StreamType
	Buffer      *audio.StreamBuffer
	Accumulator *transcript.Accumulator
	StartedAt   time.Time

	// procMu serializes chunk processing with the final drain. The drain
	// runs on the stopping connection's goroutine, and a processing cycle
	// may still hold this stream from a snapshot taken before removal, so
	// both must take it before touching the accumulator.
	procMu sync.Mutex
}

// Drainer performs the final synchronous drain of a stopping stream. The
// processing loop implements it; the registry calls it from StopStream so
// trailing audio is transcribed before the stream is forgotten.
type Drainer interface {
	Drain(s *Stream)
}

// RegistryConfig carries the parameters new streams are built with
type RegistryConfig struct {
	Buffer     audio.BufferConfig
	Transcript transcript.Config
}

// Registry owns the set of active streams. Start, stop and lookup take the
// registry lock briefly; audio appends then proceed under the individual
// buffer's lock so a chatty stream cannot stall the others.
type Registry struct {
	config  RegistryConfig
	logger  *slog.Logger
	drainer Drainer

	streams map[string]*Stream
	mu      sync.RWMutex
}

// NewRegistry creates an empty stream registry
func NewRegistry(config RegistryConfig, logger *slog.Logger) *Registry {
	return &Registry{
		config:  config,
		logger:  logger,
		streams: make(map[string]*Stream),
	}
}

// SetDrainer installs the final-drain hook. Must be called before StopStream;
// the registry and the processing loop reference each other, so the hook is
// wired after both are constructed.
func (r *Registry) SetDrainer(d Drainer) {
	r.drainer = d
}

// StartStream registers a new stream. The stream ID must be unused.
func (r *Registry) StartStream(id string, streamType protocol.StreamType) (*Stream, error) {
	if id == "" {
		return nil, fmt.Errorf("stream id cannot be empty")
	}
	if !streamType.Valid() {
		return nil, fmt.Errorf("unknown stream type %q", streamType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.streams[id]; exists {
		return nil, fmt.Errorf("stream %s: %w", id, ErrStreamExists)
	}

	s := &Stream{
		ID:     id,
		Type:   streamType,
		Buffer: audio.NewStreamBuffer(r.config.Buffer),
		Accumulator: transcript.NewAccumulator(streamType, r.config.Transcript),
		StartedAt: time.Now(),
	}

	r.streams[id] = s
	metrics.ActiveStreams.WithLabelValues(streamType.String()).Inc()

	r.logger.Info("Stream started",
		"stream_id", id,
		"stream_type", streamType)

	return s, nil
}

// StopStream removes a stream after draining its remaining audio and
// flushing any partial sentence. Stopping an unknown stream is an error.
func (r *Registry) StopStream(id string) error {
	r.mu.Lock()
	s, exists := r.streams[id]
	if exists {
		delete(r.streams, id)
	}
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}

	if r.drainer != nil {
		r.drainer.Drain(s)
	}

	metrics.ActiveStreams.WithLabelValues(s.Type.String()).Dec()

	r.logger.Info("Stream stopped",
		"stream_id", id,
		"stream_type", s.Type,
		"duration", time.Since(s.StartedAt).Round(time.Millisecond))

	return nil
}

// AddAudioChunk appends decoded PCM bytes to a stream's buffer
func (r *Registry) AddAudioChunk(id string, data []byte) error {
	r.mu.RLock()
	s, exists := r.streams[id]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}

	if err := s.Buffer.AddAudioData(data); err != nil {
		return fmt.Errorf("stream %s: %w", id, err)
	}

	metrics.AudioBytesReceived.WithLabelValues(s.Type.String()).Add(float64(len(data)))

	return nil
}

// Get returns the stream with the given ID
func (r *Registry) Get(id string) (*Stream, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, exists := r.streams[id]
	if !exists {
		return nil, fmt.Errorf("stream %s: %w", id, ErrStreamNotFound)
	}

	return s, nil
}

// ActiveStreams returns a snapshot of the current streams. The slice is
// safe to iterate without the registry lock.
func (r *Registry) ActiveStreams() []*Stream {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Stream, 0, len(r.streams))
	for _, s := range r.streams {
		out = append(out, s)
	}

	return out
}

// Count returns the number of active streams
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// StopAll stops every active stream, draining each. Used at shutdown.
func (r *Registry) StopAll() {
	for _, s := range r.ActiveStreams() {
		if err := r.StopStream(s.ID); err != nil {
			r.logger.Warn("Failed to stop stream during shutdown",
				"stream_id", s.ID,
				"error", err)
		}
	}
}

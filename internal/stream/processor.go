package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/doramirdor/friday-ai/internal/asr"
	"github.com/doramirdor/friday-ai/internal/audio"
	"github.com/doramirdor/friday-ai/internal/metrics"
	"github.com/doramirdor/friday-ai/internal/preserve"
	"github.com/doramirdor/friday-ai/internal/protocol"
	"github.com/doramirdor/friday-ai/internal/transcript"
)

// UpdateSink receives completed sentence updates for delivery to the
// connection that owns the stream
type UpdateSink interface {
	PublishUpdate(streamID string, update *transcript.Update)
}

// ProcessorConfig contains processing loop configuration
type ProcessorConfig struct {
	PollInterval time.Duration
	ASRTimeout   time.Duration // per-invocation transcription budget
	Language     string
	Model        string
}

// Processor is the single background worker that advances every stream. One
// goroutine polls all buffers on a fixed cadence, runs extracted chunks
// through the quality gate and the transcription engine, and feeds segments
// into the per-stream accumulators. A single worker keeps segment order
// deterministic per stream and bounds engine load by construction.
type Processor struct {
	config    ProcessorConfig
	registry  *Registry
	engine    asr.Engine
	gate      *audio.Gate
	preserver *preserve.Preserver
	sink      UpdateSink
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcessor creates the processing loop. Call Start to begin polling.
func NewProcessor(config ProcessorConfig, registry *Registry, engine asr.Engine,
	gate *audio.Gate, preserver *preserve.Preserver, sink UpdateSink, logger *slog.Logger) *Processor {

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		config:    config,
		registry:  registry,
		engine:    engine,
		gate:      gate,
		preserver: preserver,
		sink:      sink,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

// Start launches the background processing goroutine
func (p *Processor) Start() {
	go p.run()

	p.logger.Info("Processing loop started",
		"poll_interval", p.config.PollInterval)
}

// Stop terminates the processing loop and waits for the current cycle to
// finish
func (p *Processor) Stop() {
	p.cancel()
	<-p.done

	p.logger.Info("Processing loop stopped")
}

func (p *Processor) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.cycle()
		}
	}
}

// cycle advances every active stream once. A failure in one stream is
// logged and must not stall the others. Each stream is handled under its
// procMu so a concurrent stop's final drain cannot interleave with it.
func (p *Processor) cycle() {
	for _, s := range p.registry.ActiveStreams() {
		s.procMu.Lock()
		p.processStream(s)
		p.checkTimeout(s)
		s.procMu.Unlock()
	}
}

// processStream extracts a chunk if the stream's buffer is ready and runs it
// through the gate and the engine
func (p *Processor) processStream(s *Stream) {
	chunk := s.Buffer.ChunkIfReady()
	if chunk == nil {
		return
	}

	metrics.ChunksExtracted.WithLabelValues(s.Type.String()).Inc()

	p.transcribeChunk(s, chunk)
}

// transcribeChunk gates a chunk, invokes the engine and accumulates the
// resulting segments. Used by both the polling path and the final drain.
func (p *Processor) transcribeChunk(s *Stream, chunk []float32) {
	stats := audio.AnalyzeSamples(chunk, s.Buffer.SampleRate())

	if reason, ok := p.gate.Check(stats, s.Type); !ok {
		metrics.GateRejections.WithLabelValues(s.Type.String(), reason).Inc()

		path := p.preserver.Persist(chunk, s.Buffer.SampleRate(), s.Type, reason)
		p.preserver.AppendLog("chunk_rejected",
			"stream_id", s.ID,
			"stream_type", s.Type.String(),
			"reason", reason,
			"snapshot", path,
			"duration", stats.Duration,
			"max_amplitude", stats.MaxAmplitude,
			"rms_level", stats.RMSLevel,
			"silence_pct", stats.SilencePercentage)

		p.logger.Debug("Chunk rejected by quality gate",
			"stream_id", s.ID,
			"reason", reason,
			"duration", stats.Duration)
		return
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.config.ASRTimeout)
	defer cancel()

	opts := asr.OptionsFor(s.Type, p.config.Language, p.config.Model)

	startTime := time.Now()
	result, err := p.engine.Transcribe(ctx, chunk, s.Buffer.SampleRate(), opts)
	elapsed := time.Since(startTime)

	metrics.TranscriptionDuration.Observe(elapsed.Seconds())

	if err != nil {
		metrics.TranscriptionRequests.WithLabelValues(s.Type.String(), "error").Inc()

		path := p.preserver.Persist(chunk, s.Buffer.SampleRate(), s.Type, "failed")
		p.preserver.AppendLog("transcription_failed",
			"stream_id", s.ID,
			"stream_type", s.Type.String(),
			"error", err.Error(),
			"snapshot", path)

		p.logger.Error("Transcription failed",
			"stream_id", s.ID,
			"stream_type", s.Type,
			"duration", stats.Duration,
			"error", err)
		return
	}

	metrics.TranscriptionRequests.WithLabelValues(s.Type.String(), "success").Inc()

	p.preserver.AppendLog("chunk_transcribed",
		"stream_id", s.ID,
		"stream_type", s.Type.String(),
		"segments", len(result.Segments),
		"language", result.Language,
		"elapsed", elapsed.Seconds())

	for _, seg := range result.Segments {
		update := s.Accumulator.AddSegment(transcript.Segment{
			Text:  seg.Text,
			Start: seg.Start,
			End:   seg.End,
		})
		if update != nil {
			p.publish(s, update, metrics.CausePunctuation)
		}
	}
}

// checkTimeout flushes a partial sentence that has gone quiet
func (p *Processor) checkTimeout(s *Stream) {
	if update := s.Accumulator.CheckTimeout(); update != nil {
		p.publish(s, update, metrics.CauseTimeout)
	}
}

// Drain transcribes whatever audio remains in a stopping stream's buffer
// and flushes its partial sentence. Runs synchronously on the caller's
// goroutine so stop_stream replies only after trailing speech is handled.
// Waits on the stream's procMu until any in-flight cycle iteration for
// this stream finishes, keeping accumulator writes single-threaded.
func (p *Processor) Drain(s *Stream) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	if remaining := s.Buffer.Flush(); remaining != nil {
		p.transcribeChunk(s, remaining)
	}

	if update := s.Accumulator.FlushPending(); update != nil {
		p.publish(s, update, metrics.CauseFinalDrain)
	}
}

func (p *Processor) publish(s *Stream, update *transcript.Update, cause string) {
	metrics.TranscriptUpdates.WithLabelValues(s.Type.String(), cause).Inc()

	p.logger.Info("Transcript update",
		"stream_id", s.ID,
		"stream_type", s.Type,
		"cause", cause,
		"start", update.StartTime,
		"end", update.EndTime,
		"chars", len(update.Text))

	if p.sink != nil {
		p.sink.PublishUpdate(s.ID, update)
	}
}

// TranscribeOnce gates and transcribes standalone samples outside any
// registered stream. Serves the one-shot file transcription path.
func (p *Processor) TranscribeOnce(ctx context.Context, samples []float32, sampleRate int,
	streamType protocol.StreamType) (*asr.Result, string, error) {

	stats := audio.AnalyzeSamples(samples, sampleRate)

	if reason, ok := p.gate.Check(stats, streamType); !ok {
		metrics.GateRejections.WithLabelValues(streamType.String(), reason).Inc()

		path := p.preserver.Persist(samples, sampleRate, streamType, reason)
		p.preserver.AppendLog("chunk_rejected",
			"stream_type", streamType.String(),
			"reason", reason,
			"duration", stats.Duration,
			"max_amplitude", stats.MaxAmplitude,
			"rms_level", stats.RMSLevel,
			"silence_pct", stats.SilencePercentage,
			"snapshot", path)

		return nil, reason, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.ASRTimeout)
	defer cancel()

	opts := asr.OptionsFor(streamType, p.config.Language, p.config.Model)

	startTime := time.Now()
	result, err := p.engine.Transcribe(ctx, samples, sampleRate, opts)
	metrics.TranscriptionDuration.Observe(time.Since(startTime).Seconds())

	if err != nil {
		metrics.TranscriptionRequests.WithLabelValues(streamType.String(), "error").Inc()
		return nil, "", err
	}

	metrics.TranscriptionRequests.WithLabelValues(streamType.String(), "success").Inc()
	return result, "", nil
}

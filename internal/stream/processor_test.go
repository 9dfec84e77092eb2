package stream

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doramirdor/friday-ai/internal/asr"
	"github.com/doramirdor/friday-ai/internal/audio"
	"github.com/doramirdor/friday-ai/internal/preserve"
	"github.com/doramirdor/friday-ai/internal/protocol"
	"github.com/doramirdor/friday-ai/internal/transcript"
)

// fakeEngine returns canned segments and counts invocations
type fakeEngine struct {
	mu       sync.Mutex
	calls    int
	segments []asr.Segment
	err      error
}

func (e *fakeEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts asr.Options) (*asr.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	if e.err != nil {
		return nil, e.err
	}

	return &asr.Result{
		Segments: e.segments,
		Language: "en",
		Duration: float64(len(samples)) / float64(sampleRate),
	}, nil
}

func (e *fakeEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// recordingSink captures published updates
type recordingSink struct {
	mu      sync.Mutex
	updates []*transcript.Update
	streams []string
}

func (s *recordingSink) PublishUpdate(streamID string, update *transcript.Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update)
	s.streams = append(s.streams, streamID)
}

func (s *recordingSink) all() []*transcript.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*transcript.Update(nil), s.updates...)
}

func newTestProcessor(t *testing.T, engine asr.Engine) (*Processor, *Registry, *recordingSink) {
	t.Helper()

	registry := NewRegistry(testRegistryConfig(), testLogger())
	sink := &recordingSink{}

	gate := audio.NewGate(
		audio.GateThresholds{MinDuration: 0.05, MaxSilencePct: 99.5, MinAmplitude: 0.5, MinRMS: 0.01},
		audio.GateThresholds{MinDuration: 0.05, MaxSilencePct: 99.5, MinAmplitude: 0.5, MinRMS: 0.01},
	)

	preserver := preserve.New(t.TempDir(), "", false, testLogger())

	p := NewProcessor(ProcessorConfig{
		PollInterval: time.Hour, // cycles driven manually in tests
		ASRTimeout:   5 * time.Second,
		Language:     "en",
		Model:        "base",
	}, registry, engine, gate, preserver, sink, testLogger())

	registry.SetDrainer(p)

	return p, registry, sink
}

// loudChunk fills a stream's buffer with a full chunk of strong signal
func loudChunk(t *testing.T, r *Registry, id string) {
	t.Helper()

	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 0.8
	}

	if err := r.AddAudioChunk(id, audio.EncodeFloat32(samples)); err != nil {
		t.Fatalf("Failed to add audio: %v", err)
	}
}

func TestGateRejectionSkipsEngine(t *testing.T) {
	engine := &fakeEngine{}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	// A full chunk of pure silence
	silent := make([]float32, 1000)
	if err := registry.AddAudioChunk("s1", audio.EncodeFloat32(silent)); err != nil {
		t.Fatalf("Failed to add audio: %v", err)
	}

	p.cycle()

	if engine.callCount() != 0 {
		t.Errorf("Expected engine never invoked for rejected chunk, got %d calls", engine.callCount())
	}

	if len(sink.all()) != 0 {
		t.Errorf("Expected no updates for rejected chunk, got %d", len(sink.all()))
	}
}

func TestChunkTranscribedAndAccumulated(t *testing.T) {
	engine := &fakeEngine{
		segments: []asr.Segment{
			{Text: "Hello world.", Start: 0.1, End: 0.9},
		},
	}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	loudChunk(t, registry, "s1")
	p.cycle()

	if engine.callCount() != 1 {
		t.Fatalf("Expected 1 engine call, got %d", engine.callCount())
	}

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("Expected 1 update, got %d", len(updates))
	}

	if updates[0].Text != "Hello world." {
		t.Errorf("Expected 'Hello world.', got %q", updates[0].Text)
	}

	if updates[0].StreamType != protocol.StreamTypeMicrophone {
		t.Errorf("Expected microphone stream type, got %q", updates[0].StreamType)
	}
}

func TestUpdateCarriesEngineTimestamps(t *testing.T) {
	// Speech arriving after a long stretch of earlier audio keeps the
	// engine's timing: the update's range starts where the words started.
	engine := &fakeEngine{
		segments: []asr.Segment{
			{Text: "Hello world.", Start: 20.0, End: 21.5},
		},
	}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	loudChunk(t, registry, "s1")
	p.cycle()

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("Expected exactly 1 update, got %d", len(updates))
	}

	if updates[0].Text != "Hello world." {
		t.Errorf("Expected 'Hello world.', got %q", updates[0].Text)
	}

	if updates[0].StartTime != 20.0 {
		t.Errorf("Expected start time 20.0, got %f", updates[0].StartTime)
	}

	if updates[0].EndTime != 21.5 {
		t.Errorf("Expected end time 21.5, got %f", updates[0].EndTime)
	}
}

func TestSegmentBelowMinimumDurationDropped(t *testing.T) {
	engine := &fakeEngine{
		segments: []asr.Segment{
			{Text: "Hi.", Start: 0.1, End: 0.2}, // below MinSegmentDuration 0.5
		},
	}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	loudChunk(t, registry, "s1")
	p.cycle()

	if len(sink.all()) != 0 {
		t.Errorf("Expected short segment dropped, got %d updates", len(sink.all()))
	}
}

func TestEngineErrorIsolated(t *testing.T) {
	engine := &fakeEngine{err: context.DeadlineExceeded}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	loudChunk(t, registry, "s1")
	p.cycle()

	if len(sink.all()) != 0 {
		t.Errorf("Expected no updates after engine failure, got %d", len(sink.all()))
	}

	// The stream stays registered and processable
	if registry.Count() != 1 {
		t.Errorf("Expected stream still active after engine failure, got %d", registry.Count())
	}
}

func TestDrainFlushesTrailingAudioAndPartialSentence(t *testing.T) {
	engine := &fakeEngine{
		segments: []asr.Segment{
			{Text: "trailing words", Start: 0.1, End: 0.9}, // no terminal punctuation
		},
	}
	_, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	// Below the minimum flush threshold, so only the final drain sees it
	samples := make([]float32, 50)
	for i := range samples {
		samples[i] = 0.8
	}
	if err := registry.AddAudioChunk("s1", audio.EncodeFloat32(samples)); err != nil {
		t.Fatalf("Failed to add audio: %v", err)
	}

	if err := registry.StopStream("s1"); err != nil {
		t.Fatalf("Failed to stop stream: %v", err)
	}

	if engine.callCount() != 1 {
		t.Errorf("Expected trailing audio transcribed during drain, got %d calls", engine.callCount())
	}

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("Expected partial sentence flushed on drain, got %d updates", len(updates))
	}

	if updates[0].Text != "trailing words" {
		t.Errorf("Expected 'trailing words', got %q", updates[0].Text)
	}
}

func TestTimeoutFlushDuringCycle(t *testing.T) {
	engine := &fakeEngine{
		segments: []asr.Segment{
			{Text: "no punctuation here", Start: 0.1, End: 0.9},
		},
	}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	loudChunk(t, registry, "s1")
	p.cycle()

	if len(sink.all()) != 0 {
		t.Fatalf("Expected no update before timeout, got %d", len(sink.all()))
	}

	s, err := registry.Get("s1")
	if err != nil {
		t.Fatalf("Failed to get stream: %v", err)
	}
	if !s.Accumulator.Accumulating() {
		t.Fatal("Expected partial sentence held")
	}

	// Drop the re-injected overlap so the next cycle extracts nothing and
	// the accumulator goes idle.
	s.Buffer.Clear()

	// Sentence timeout in the test registry config is 1s
	time.Sleep(1100 * time.Millisecond)
	p.cycle()

	updates := sink.all()
	if len(updates) != 1 {
		t.Fatalf("Expected timeout flush, got %d updates", len(updates))
	}

	if updates[0].Text != "no punctuation here" {
		t.Errorf("Expected 'no punctuation here', got %q", updates[0].Text)
	}
}

// blockingEngine parks every invocation until released and tracks whether
// two invocations ever overlapped
type blockingEngine struct {
	started chan struct{}
	release chan struct{}

	mu          sync.Mutex
	inFlight    int
	maxInFlight int
}

func (e *blockingEngine) Transcribe(ctx context.Context, samples []float32, sampleRate int, opts asr.Options) (*asr.Result, error) {
	e.mu.Lock()
	e.inFlight++
	if e.inFlight > e.maxInFlight {
		e.maxInFlight = e.inFlight
	}
	e.mu.Unlock()

	e.started <- struct{}{}
	<-e.release

	e.mu.Lock()
	e.inFlight--
	e.mu.Unlock()

	return &asr.Result{
		Segments: []asr.Segment{{Text: "Hello.", Start: 0.1, End: 0.9}},
		Language: "en",
	}, nil
}

func TestDrainSerializedWithProcessingCycle(t *testing.T) {
	engine := &blockingEngine{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	p, registry, sink := newTestProcessor(t, engine)

	if _, err := registry.StartStream("s1", protocol.StreamTypeMicrophone); err != nil {
		t.Fatalf("Failed to start stream: %v", err)
	}

	loudChunk(t, registry, "s1")

	cycleDone := make(chan struct{})
	go func() {
		p.cycle()
		close(cycleDone)
	}()

	// The cycle is now inside the engine call, holding the stream
	<-engine.started

	stopDone := make(chan struct{})
	go func() {
		if err := registry.StopStream("s1"); err != nil {
			t.Errorf("Failed to stop stream: %v", err)
		}
		close(stopDone)
	}()

	// The stop's final drain must wait for the in-flight iteration
	select {
	case <-stopDone:
		t.Fatal("Expected drain to block while the cycle holds the stream")
	case <-time.After(100 * time.Millisecond):
	}

	engine.release <- struct{}{}
	<-cycleDone

	// The drain flushes the re-injected overlap, which is loud enough to
	// reach the engine again
	<-engine.started
	engine.release <- struct{}{}
	<-stopDone

	engine.mu.Lock()
	maxInFlight := engine.maxInFlight
	engine.mu.Unlock()

	if maxInFlight != 1 {
		t.Errorf("Expected engine invocations never to overlap, got %d concurrent", maxInFlight)
	}

	// The duplicate drain segment is suppressed, so exactly one update
	updates := sink.all()
	if len(updates) != 1 {
		t.Errorf("Expected 1 update, got %d", len(updates))
	}
}

func TestTranscribeOnceRejectionPreserved(t *testing.T) {
	engine := &fakeEngine{}

	registry := NewRegistry(testRegistryConfig(), testLogger())
	gate := audio.NewGate(
		audio.GateThresholds{MinDuration: 0.05, MaxSilencePct: 99.5, MinAmplitude: 0.5, MinRMS: 0.01},
		audio.GateThresholds{MinDuration: 0.05, MaxSilencePct: 99.5, MinAmplitude: 0.5, MinRMS: 0.01},
	)

	dir := t.TempDir()
	logPath := filepath.Join(dir, "transcription_log.jsonl")
	preserver := preserve.New(dir, logPath, true, testLogger())

	p := NewProcessor(ProcessorConfig{
		PollInterval: time.Hour,
		ASRTimeout:   5 * time.Second,
		Language:     "en",
		Model:        "base",
	}, registry, engine, gate, preserver, nil, testLogger())

	result, reason, err := p.TranscribeOnce(context.Background(), make([]float32, 1000), 1000, protocol.StreamTypeSystem)
	if err != nil {
		t.Fatalf("TranscribeOnce failed: %v", err)
	}
	if result != nil || reason == "" {
		t.Fatalf("Expected rejection, got result=%v reason=%q", result, reason)
	}

	if err := preserver.Close(); err != nil {
		t.Fatalf("Failed to close preserver: %v", err)
	}

	logData, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Expected diagnostic log written: %v", err)
	}
	if !strings.Contains(string(logData), "chunk_rejected") || !strings.Contains(string(logData), reason) {
		t.Errorf("Expected log to record the rejection reason %q, got: %s", reason, logData)
	}

	snapshots, err := filepath.Glob(filepath.Join(dir, "system_"+reason+"_*.wav"))
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	if len(snapshots) != 1 {
		t.Errorf("Expected 1 preserved snapshot tagged with the reason, got %d", len(snapshots))
	}
}

func TestTranscribeOnce(t *testing.T) {
	engine := &fakeEngine{
		segments: []asr.Segment{
			{Text: "File transcript.", Start: 0, End: 1},
		},
	}
	p, _, _ := newTestProcessor(t, engine)

	samples := make([]float32, 1000)
	for i := range samples {
		samples[i] = 0.8
	}

	result, reason, err := p.TranscribeOnce(context.Background(), samples, 1000, protocol.StreamTypeSystem)
	if err != nil {
		t.Fatalf("TranscribeOnce failed: %v", err)
	}
	if reason != "" {
		t.Fatalf("Expected no rejection, got %q", reason)
	}
	if len(result.Segments) != 1 || result.Segments[0].Text != "File transcript." {
		t.Errorf("Unexpected result: %+v", result)
	}

	// Silence is rejected without invoking the engine
	before := engine.callCount()
	result, reason, err = p.TranscribeOnce(context.Background(), make([]float32, 1000), 1000, protocol.StreamTypeSystem)
	if err != nil {
		t.Fatalf("TranscribeOnce failed: %v", err)
	}
	if result != nil {
		t.Error("Expected nil result for rejected audio")
	}
	if reason == "" {
		t.Error("Expected rejection reason for silence")
	}
	if engine.callCount() != before {
		t.Error("Expected engine not invoked for rejected audio")
	}
}

package preserve

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/doramirdor/friday-ai/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSamples() []float32 {
	samples := make([]float32, 160)
	for i := range samples {
		samples[i] = 0.5
	}
	return samples
}

func TestPersistWritesSnapshot(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "", true, testLogger())

	path := p.Persist(testSamples(), 16000, protocol.StreamTypeMicrophone, "failed")
	if path == "" {
		t.Fatal("Expected a snapshot path, got empty")
	}

	base := filepath.Base(path)
	if !strings.HasPrefix(base, "microphone_failed_") || !strings.HasSuffix(base, ".wav") {
		t.Errorf("Expected name like microphone_failed_<ts>.wav, got %q", base)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Expected snapshot on disk: %v", err)
	}
	if info.Size() <= 44 {
		t.Errorf("Expected WAV with sample data, got %d bytes", info.Size())
	}
}

func TestDisabledPreserverWritesNothing(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "", false, testLogger())

	if path := p.Persist(testSamples(), 16000, protocol.StreamTypeSystem, "failed"); path != "" {
		t.Errorf("Expected no snapshot when disabled, got %q", path)
	}

	p.AppendLog("chunk_rejected", "reason", "near_silence")
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected empty preservation dir when disabled, got %d entries", len(entries))
	}
}

func TestAppendLogUsesConfiguredPath(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "logs", "decisions.jsonl")
	p := New(dir, logPath, true, testLogger())

	p.AppendLog("chunk_transcribed", "stream_id", "s1", "segments", 2)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Expected log at configured path: %v", err)
	}
	if !strings.Contains(string(data), "chunk_transcribed") || !strings.Contains(string(data), "s1") {
		t.Errorf("Expected logged event with attributes, got: %s", data)
	}

	// The default location stays untouched when a path is configured
	if _, err := os.Stat(filepath.Join(dir, "transcription_log.jsonl")); !os.IsNotExist(err) {
		t.Errorf("Expected no log at the default location, got err=%v", err)
	}
}

func TestAppendLogDefaultsIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "", true, testLogger())

	p.AppendLog("chunk_rejected", "reason", "too_short")
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "transcription_log.jsonl"))
	if err != nil {
		t.Fatalf("Expected log at default path: %v", err)
	}
	if !strings.Contains(string(data), "too_short") {
		t.Errorf("Expected rejection reason in log, got: %s", data)
	}
}

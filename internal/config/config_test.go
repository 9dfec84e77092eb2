package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default configuration failed validation: %v", err)
	}

	if cfg.Server.Port != 9001 {
		t.Errorf("Expected default port 9001, got %d", cfg.Server.Port)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("Expected default sample rate 16000, got %d", cfg.Audio.SampleRate)
	}

	if cfg.Processing.PollIntervalMS != 100 {
		t.Errorf("Expected default poll interval 100ms, got %d", cfg.Processing.PollIntervalMS)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	content := `
server:
  port: 9500
transcript:
  sentence_timeout: 2.5
`
	path := writeTempConfig(t, content)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 9500 {
		t.Errorf("Expected overridden port 9500, got %d", cfg.Server.Port)
	}

	if cfg.Transcript.SentenceTimeout != 2.5 {
		t.Errorf("Expected overridden timeout 2.5, got %f", cfg.Transcript.SentenceTimeout)
	}

	// Untouched sections keep their defaults
	if cfg.Audio.ChunkDuration != 30.0 {
		t.Errorf("Expected default chunk duration 30.0, got %f", cfg.Audio.ChunkDuration)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad port",
			content: "server:\n  port: 99999\n",
			wantErr: "port",
		},
		{
			name:    "wrong sample rate",
			content: "audio:\n  sample_rate: 44100\n",
			wantErr: "sample_rate",
		},
		{
			name:    "min chunk above chunk",
			content: "audio:\n  min_chunk_duration: 31.0\n",
			wantErr: "min_chunk_duration",
		},
		{
			name:    "overlap above chunk",
			content: "audio:\n  overlap_duration: 31.0\n",
			wantErr: "overlap_duration",
		},
		{
			name:    "silence percentage out of range",
			content: "quality:\n  microphone:\n    max_silence_pct: 150\n",
			wantErr: "max_silence_pct",
		},
		{
			name:    "zero sentence timeout",
			content: "transcript:\n  sentence_timeout: 0\n",
			wantErr: "sentence_timeout",
		},
		{
			name:    "poll interval too small",
			content: "processing:\n  poll_interval_ms: 1\n",
			wantErr: "poll_interval_ms",
		},
		{
			name:    "bad log level",
			content: "logging:\n  level: verbose\n",
			wantErr: "level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempConfig(t, tt.content)

			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected validation error")
			}

			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for missing config file")
	}
}

func TestDurationGetters(t *testing.T) {
	cfg := Default()

	if cfg.Audio.GetChunkDuration() != 30*time.Second {
		t.Errorf("Expected 30s chunk duration, got %v", cfg.Audio.GetChunkDuration())
	}

	if cfg.Audio.GetOverlapDuration() != time.Second {
		t.Errorf("Expected 1s overlap, got %v", cfg.Audio.GetOverlapDuration())
	}

	if cfg.Transcript.GetSentenceTimeout() != time.Second {
		t.Errorf("Expected 1s sentence timeout, got %v", cfg.Transcript.GetSentenceTimeout())
	}

	if cfg.Processing.GetPollInterval() != 100*time.Millisecond {
		t.Errorf("Expected 100ms poll interval, got %v", cfg.Processing.GetPollInterval())
	}
}

func TestLockFilePathDefault(t *testing.T) {
	cfg := Default()

	path := cfg.Server.GetLockFilePath()
	if filepath.Base(path) != "friday_transcription.lock" {
		t.Errorf("Expected default lock file name, got %s", path)
	}

	cfg.Server.LockFile = "/var/run/custom.lock"
	if cfg.Server.GetLockFilePath() != "/var/run/custom.lock" {
		t.Errorf("Expected explicit lock file honored, got %s", cfg.Server.GetLockFilePath())
	}
}

func TestPreserveDirectoryDefault(t *testing.T) {
	cfg := Default()

	dir := cfg.Preserve.GetDirectory()
	if filepath.Base(dir) != "Friday_Transcription_Files" {
		t.Errorf("Expected default preservation directory name, got %s", dir)
	}

	logPath := cfg.Preserve.GetLogPath()
	if filepath.Base(logPath) != "transcription_log.jsonl" {
		t.Errorf("Expected default log file name, got %s", logPath)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write temp config: %v", err)
	}
	return path
}

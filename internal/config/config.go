package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	HTTP       HTTPConfig       `yaml:"http"`
	Audio      AudioConfig      `yaml:"audio"`
	Quality    QualityConfig    `yaml:"quality"`
	Transcript TranscriptConfig `yaml:"transcript"`
	ASR        ASRConfig        `yaml:"asr"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Preserve   PreserveConfig   `yaml:"preserve"`
	Processing ProcessingConfig `yaml:"processing"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig contains TCP command server configuration
type ServerConfig struct {
	Port           int    `yaml:"port"`
	BindAddress    string `yaml:"bind_address"`
	MaxConnections int    `yaml:"max_connections"`
	LockFile       string `yaml:"lock_file"` // empty = <tmpdir>/friday_transcription.lock
}

// HTTPConfig contains the monitoring HTTP API server configuration
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AudioConfig contains streaming buffer parameters
type AudioConfig struct {
	SampleRate       int     `yaml:"sample_rate"`        // Hz, the transcription engine's required rate
	ChunkDuration    float64 `yaml:"chunk_duration"`     // seconds per extracted chunk
	MinChunkDuration float64 `yaml:"min_chunk_duration"` // seconds buffered before a time-based flush
	OverlapDuration  float64 `yaml:"overlap_duration"`   // seconds retained between consecutive chunks
}

// GateConfig contains quality-gate thresholds for one stream type.
// The amplitude/RMS floors are deliberately configuration, not constants:
// the historical defaults (min_amplitude 0.5) predate the switch to
// normalized float samples and operators may need to retune them.
type GateConfig struct {
	MinDuration   float64 `yaml:"min_duration"`    // seconds
	MaxSilencePct float64 `yaml:"max_silence_pct"` // percent, 0-100
	MinAmplitude  float64 `yaml:"min_amplitude"`
	MinRMS        float64 `yaml:"min_rms"`
}

// QualityConfig contains per-stream-type quality gate thresholds.
// System audio and microphone audio have different noise floors.
type QualityConfig struct {
	Microphone GateConfig `yaml:"microphone"`
	System     GateConfig `yaml:"system"`
}

// TranscriptConfig contains sentence accumulation parameters
type TranscriptConfig struct {
	SentenceTimeout    float64 `yaml:"sentence_timeout"`     // seconds before a partial sentence is flushed
	MinSegmentDuration float64 `yaml:"min_segment_duration"` // seconds, shorter engine segments are dropped
	HistorySize        int     `yaml:"history_size"`         // retained recent segments per stream
}

// ASRConfig contains transcription engine client configuration
type ASRConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Timeout       int    `yaml:"timeout"` // seconds, per-invocation budget
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	Language      string `yaml:"language"`
	Model         string `yaml:"model"`
}

// AlertsConfig contains the keyword alert matcher configuration
type AlertsConfig struct {
	Endpoint string `yaml:"endpoint"`
	Model    string `yaml:"model"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// PreserveConfig contains chunk preservation / diagnostic logging configuration
type PreserveConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Directory string `yaml:"directory"` // empty = ~/Documents/Friday_Transcription_Files
	LogPath   string `yaml:"log_path"`  // empty = <directory>/transcription_log.jsonl
}

// ProcessingConfig contains the background processing loop configuration
type ProcessingConfig struct {
	PollIntervalMS int `yaml:"poll_interval_ms"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns a configuration populated with the service defaults.
// Load unmarshals the file on top of it, so a partial config is valid.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           9001,
			BindAddress:    "127.0.0.1",
			MaxConnections: 16,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "127.0.0.1",
			Port:    9002,
		},
		Audio: AudioConfig{
			SampleRate:       16000,
			ChunkDuration:    30.0,
			MinChunkDuration: 2.0,
			OverlapDuration:  1.0,
		},
		Quality: QualityConfig{
			Microphone: GateConfig{
				MinDuration:   0.05,
				MaxSilencePct: 99.5,
				MinAmplitude:  0.5,
				MinRMS:        0.01,
			},
			System: GateConfig{
				MinDuration:   0.05,
				MaxSilencePct: 99.5,
				MinAmplitude:  0.5,
				MinRMS:        0.01,
			},
		},
		Transcript: TranscriptConfig{
			SentenceTimeout:    1.0,
			MinSegmentDuration: 1.0,
			HistorySize:        50,
		},
		ASR: ASRConfig{
			Endpoint:      "http://127.0.0.1:8090/transcribe",
			Timeout:       30,
			MaxRetries:    3,
			MaxConcurrent: 4,
			Language:      "en",
			Model:         "base",
		},
		Alerts: AlertsConfig{
			Endpoint: "http://127.0.0.1:11434/api/embeddings",
			Model:    "nomic-embed-text",
			Timeout:  10,
		},
		Preserve: PreserveConfig{
			Enabled: true,
		},
		Processing: ProcessingConfig{
			PollIntervalMS: 100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads and parses the configuration file on top of the defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate performs validation of the complete configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Quality.Validate(); err != nil {
		return fmt.Errorf("quality config: %w", err)
	}

	if err := c.Transcript.Validate(); err != nil {
		return fmt.Errorf("transcript config: %w", err)
	}

	if err := c.ASR.Validate(); err != nil {
		return fmt.Errorf("asr config: %w", err)
	}

	if err := c.Alerts.Validate(); err != nil {
		return fmt.Errorf("alerts config: %w", err)
	}

	if err := c.Processing.Validate(); err != nil {
		return fmt.Errorf("processing config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.MaxConnections < 1 {
		return fmt.Errorf("max_connections must be at least 1, got %d", s.MaxConnections)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz (the transcription engine's rate), got %d", a.SampleRate)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.MinChunkDuration <= 0 || a.MinChunkDuration >= a.ChunkDuration {
		return fmt.Errorf("min_chunk_duration must be between 0 and chunk_duration (%f), got %f",
			a.ChunkDuration, a.MinChunkDuration)
	}

	if a.OverlapDuration < 0 || a.OverlapDuration >= a.ChunkDuration {
		return fmt.Errorf("overlap_duration must be between 0 and chunk_duration (%f), got %f",
			a.ChunkDuration, a.OverlapDuration)
	}

	return nil
}

// Validate validates one stream type's gate thresholds
func (g *GateConfig) Validate() error {
	if g.MinDuration < 0 {
		return fmt.Errorf("min_duration cannot be negative, got %f", g.MinDuration)
	}

	if g.MaxSilencePct < 0 || g.MaxSilencePct > 100 {
		return fmt.Errorf("max_silence_pct must be between 0 and 100, got %f", g.MaxSilencePct)
	}

	if g.MinAmplitude < 0 {
		return fmt.Errorf("min_amplitude cannot be negative, got %f", g.MinAmplitude)
	}

	if g.MinRMS < 0 {
		return fmt.Errorf("min_rms cannot be negative, got %f", g.MinRMS)
	}

	return nil
}

// Validate validates quality gate configuration
func (q *QualityConfig) Validate() error {
	if err := q.Microphone.Validate(); err != nil {
		return fmt.Errorf("microphone: %w", err)
	}

	if err := q.System.Validate(); err != nil {
		return fmt.Errorf("system: %w", err)
	}

	return nil
}

// Validate validates transcript accumulation configuration
func (t *TranscriptConfig) Validate() error {
	if t.SentenceTimeout <= 0 {
		return fmt.Errorf("sentence_timeout must be positive, got %f", t.SentenceTimeout)
	}

	if t.MinSegmentDuration < 0 {
		return fmt.Errorf("min_segment_duration cannot be negative, got %f", t.MinSegmentDuration)
	}

	if t.HistorySize < 1 {
		return fmt.Errorf("history_size must be at least 1, got %d", t.HistorySize)
	}

	return nil
}

// Validate validates ASR client configuration
func (a *ASRConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	if a.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", a.MaxRetries)
	}

	if a.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", a.MaxConcurrent)
	}

	return nil
}

// Validate validates alert matcher configuration
func (a *AlertsConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates processing loop configuration
func (p *ProcessingConfig) Validate() error {
	if p.PollIntervalMS < 10 {
		return fmt.Errorf("poll_interval_ms must be at least 10, got %d", p.PollIntervalMS)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the target chunk duration as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetMinChunkDuration returns the time-based flush threshold as a time.Duration
func (a *AudioConfig) GetMinChunkDuration() time.Duration {
	return time.Duration(a.MinChunkDuration * float64(time.Second))
}

// GetOverlapDuration returns the overlap window as a time.Duration
func (a *AudioConfig) GetOverlapDuration() time.Duration {
	return time.Duration(a.OverlapDuration * float64(time.Second))
}

// GetSentenceTimeout returns the sentence flush timeout as a time.Duration
func (t *TranscriptConfig) GetSentenceTimeout() time.Duration {
	return time.Duration(t.SentenceTimeout * float64(time.Second))
}

// GetTimeoutDuration returns the per-invocation transcription budget as a time.Duration
func (a *ASRConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetTimeoutDuration returns the alert matcher timeout as a time.Duration
func (a *AlertsConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetPollInterval returns the processing loop cadence as a time.Duration
func (p *ProcessingConfig) GetPollInterval() time.Duration {
	return time.Duration(p.PollIntervalMS) * time.Millisecond
}

// GetLockFilePath returns the single-instance lock file location
func (s *ServerConfig) GetLockFilePath() string {
	if s.LockFile != "" {
		return s.LockFile
	}
	return filepath.Join(os.TempDir(), "friday_transcription.lock")
}

// GetDirectory returns the preservation directory, defaulting to the
// per-user documents folder used by the desktop app
func (p *PreserveConfig) GetDirectory() string {
	if p.Directory != "" {
		return p.Directory
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "Friday_Transcription_Files")
	}
	return filepath.Join(home, "Documents", "Friday_Transcription_Files")
}

// GetLogPath returns the JSON-lines diagnostic log location
func (p *PreserveConfig) GetLogPath() string {
	if p.LogPath != "" {
		return p.LogPath
	}
	return filepath.Join(p.GetDirectory(), "transcription_log.jsonl")
}

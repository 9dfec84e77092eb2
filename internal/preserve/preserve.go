package preserve

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doramirdor/friday-ai/internal/audio"
	"github.com/doramirdor/friday-ai/internal/protocol"
)

// Preserver writes diagnostic artifacts for later inspection: WAV snapshots
// of processed audio and a JSONL log of pipeline decisions. Preservation is
// best-effort; a full disk or missing directory must never disturb the
// transcription path, so failures are logged and swallowed.
type Preserver struct {
	dir     string
	logPath string
	enabled bool
	logger  *slog.Logger

	logFile *os.File
	jsonLog *slog.Logger
	mu      sync.Mutex
}

// New creates a preserver rooted at dir, appending decisions to logPath
// (empty means the default file inside dir). The directory is created on
// first use; if that fails the preserver disables itself.
func New(dir, logPath string, enabled bool, logger *slog.Logger) *Preserver {
	if logPath == "" {
		logPath = filepath.Join(dir, "transcription_log.jsonl")
	}

	return &Preserver{
		dir:     dir,
		logPath: logPath,
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether preservation is active
func (p *Preserver) Enabled() bool {
	return p.enabled
}

// Persist writes samples as a WAV snapshot named by stream type, tag and
// timestamp. Returns the written path, or empty when preservation is off or
// the write failed.
func (p *Preserver) Persist(samples []float32, sampleRate int, streamType protocol.StreamType, tag string) string {
	if !p.enabled || len(samples) == 0 {
		return ""
	}

	if err := p.ensureDir(); err != nil {
		p.logger.Warn("preservation directory unavailable", "dir", p.dir, "error", err)
		return ""
	}

	wavData, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		p.logger.Warn("failed to encode preservation snapshot", "error", err)
		return ""
	}

	name := fmt.Sprintf("%s_%s_%s.wav", streamType, tag, time.Now().Format("20060102_150405.000"))
	path := filepath.Join(p.dir, name)

	if err := os.WriteFile(path, wavData, 0644); err != nil {
		p.logger.Warn("failed to write preservation snapshot", "path", path, "error", err)
		return ""
	}

	return path
}

// AppendLog records one pipeline decision in the JSONL log. Attribute pairs
// follow slog conventions.
func (p *Preserver) AppendLog(event string, attrs ...any) {
	if !p.enabled {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.jsonLog == nil {
		if err := p.openLogLocked(); err != nil {
			p.logger.Warn("failed to open preservation log", "error", err)
			p.enabled = false
			return
		}
	}

	p.jsonLog.Info(event, attrs...)
}

// Close releases the log file
func (p *Preserver) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.logFile == nil {
		return nil
	}

	err := p.logFile.Close()
	p.logFile = nil
	p.jsonLog = nil
	return err
}

func (p *Preserver) ensureDir() error {
	return os.MkdirAll(p.dir, 0755)
}

func (p *Preserver) openLogLocked() error {
	if err := os.MkdirAll(filepath.Dir(p.logPath), 0755); err != nil {
		return err
	}

	f, err := os.OpenFile(p.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	p.logFile = f
	p.jsonLog = slog.New(slog.NewJSONHandler(f, nil))
	return nil
}

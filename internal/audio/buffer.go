package audio

import (
	"fmt"
	"sync"
	"time"
)

// BufferConfig contains the derived sizing parameters for a stream buffer
type BufferConfig struct {
	SampleRate       int
	ChunkDuration    time.Duration // target duration per extracted chunk
	MinChunkDuration time.Duration // minimum buffered audio before a time-based flush
	OverlapDuration  time.Duration // trailing audio re-inserted after each extraction
}

// StreamBuffer accumulates raw mono PCM samples for one audio stream and
// hands out fixed-size chunks for transcription. Appends and extractions
// take the buffer's own lock, so a connection can keep adding audio while
// the processing loop extracts.
type StreamBuffer struct {
	sampleRate     int
	chunkSamples   int // target chunk size
	minSamples     int // minimum before a time-based flush
	overlapSamples int // retained between consecutive chunks

	samples     []float32
	lastExtract time.Time

	// Statistics
	bytesReceived   uint64
	chunksExtracted uint64

	mu sync.Mutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	BufferedSamples int     `json:"buffered_samples"`
	BufferedSeconds float64 `json:"buffered_seconds"`
	BytesReceived   uint64  `json:"bytes_received"`
	ChunksExtracted uint64  `json:"chunks_extracted"`
}

// NewStreamBuffer creates a stream buffer sized from the given durations
func NewStreamBuffer(cfg BufferConfig) *StreamBuffer {
	secs := func(d time.Duration) int {
		return int(d.Seconds() * float64(cfg.SampleRate))
	}

	return &StreamBuffer{
		sampleRate:     cfg.SampleRate,
		chunkSamples:   secs(cfg.ChunkDuration),
		minSamples:     secs(cfg.MinChunkDuration),
		overlapSamples: secs(cfg.OverlapDuration),
		samples:        make([]float32, 0, secs(cfg.ChunkDuration)),
		lastExtract:    time.Now(),
	}
}

// AddAudioData decodes the payload as little-endian float32 mono PCM and
// appends it to the tail of the buffer.
func (b *StreamBuffer) AddAudioData(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	if len(data)%4 != 0 {
		return fmt.Errorf("audio payload length must be a multiple of 4 (float32 samples), got %d bytes", len(data))
	}

	decoded := DecodeFloat32(data)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = append(b.samples, decoded...)
	b.bytesReceived += uint64(len(data))

	return nil
}

// ChunkIfReady extracts up to chunkSamples from the head of the buffer when
// either a full chunk is buffered, or at least minSamples are buffered and a
// full chunk duration has passed since the previous extraction. The trailing
// overlap window of the extracted chunk is re-inserted at the head so a word
// straddling the boundary appears in both chunks. Returns nil when not ready.
func (b *StreamBuffer) ChunkIfReady() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	buffered := len(b.samples)
	if buffered == 0 {
		return nil
	}

	full := buffered >= b.chunkSamples
	elapsed := time.Since(b.lastExtract) >= b.chunkDuration()
	if !full && !(buffered >= b.minSamples && elapsed) {
		return nil
	}

	return b.extractLocked(true)
}

// Flush extracts everything left in the buffer regardless of readiness.
// Used for the final drain when a stream stops; no overlap is re-inserted.
func (b *StreamBuffer) Flush() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.samples) == 0 {
		return nil
	}

	return b.extractLocked(false)
}

// extractLocked removes up to chunkSamples from the head and optionally
// re-inserts the overlap tail. Caller must hold b.mu.
func (b *StreamBuffer) extractLocked(keepOverlap bool) []float32 {
	n := len(b.samples)
	if n > b.chunkSamples {
		n = b.chunkSamples
	}

	chunk := make([]float32, n)
	copy(chunk, b.samples[:n])

	overlap := 0
	if keepOverlap {
		overlap = b.overlapSamples
		if overlap > n {
			overlap = n
		}
	}

	// Shift the remainder to the head, preceded by the overlap tail of the
	// extracted chunk.
	remaining := len(b.samples) - n
	rebuilt := make([]float32, 0, overlap+remaining)
	rebuilt = append(rebuilt, chunk[n-overlap:]...)
	rebuilt = append(rebuilt, b.samples[n:]...)
	b.samples = rebuilt

	b.lastExtract = time.Now()
	b.chunksExtracted++

	return chunk
}

// Clear drops all buffered samples and resets the extraction clock
func (b *StreamBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.samples = b.samples[:0]
	b.lastExtract = time.Now()
}

// Len returns the current number of buffered samples
func (b *StreamBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// SampleRate returns the buffer's sample rate in Hz
func (b *StreamBuffer) SampleRate() int {
	return b.sampleRate
}

// ChunkSamples returns the target chunk size in samples
func (b *StreamBuffer) ChunkSamples() int {
	return b.chunkSamples
}

// OverlapSamples returns the configured overlap window in samples
func (b *StreamBuffer) OverlapSamples() int {
	return b.overlapSamples
}

// GetStats returns current buffer statistics
func (b *StreamBuffer) GetStats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		BufferedSamples: len(b.samples),
		BufferedSeconds: float64(len(b.samples)) / float64(b.sampleRate),
		BytesReceived:   b.bytesReceived,
		ChunksExtracted: b.chunksExtracted,
	}
}

func (b *StreamBuffer) chunkDuration() time.Duration {
	return time.Duration(float64(b.chunkSamples) / float64(b.sampleRate) * float64(time.Second))
}

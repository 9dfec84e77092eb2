package codec

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/doramirdor/friday-ai/internal/audio"
)

// Converter turns on-disk audio files into analyzable PCM samples
type Converter interface {
	// ResampleToPCM decodes a file into mono float32 samples at the given rate
	ResampleToPCM(ctx context.Context, path string, sampleRate int) ([]float32, error)
	// Analyze decodes a file and reports its signal statistics
	Analyze(ctx context.Context, path string, sampleRate int) (*audio.Stats, error)
}

// FFmpegConverter shells out to ffmpeg for decoding. It handles whatever
// container the client hands over (m4a, mp3, webm) without linking codec
// libraries into the service.
type FFmpegConverter struct {
	binary string
}

// NewFFmpegConverter creates a converter using the given ffmpeg binary,
// falling back to the one on PATH
func NewFFmpegConverter(binary string) *FFmpegConverter {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegConverter{binary: binary}
}

// ResampleToPCM decodes the file to mono float32 little-endian samples at
// the requested rate
func (c *FFmpegConverter) ResampleToPCM(ctx context.Context, path string, sampleRate int) ([]float32, error) {
	// ffmpeg -i input -ac 1 -ar rate -f f32le -
	cmd := exec.CommandContext(ctx, c.binary,
		"-hide_banner", "-loglevel", "error",
		"-i", path,
		"-ac", "1", "-ar", strconv.Itoa(sampleRate),
		"-f", "f32le",
		"-",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", err, stderr.String())
	}

	return audio.DecodeFloat32(stdout.Bytes()), nil
}

// Analyze decodes the file and computes its signal statistics
func (c *FFmpegConverter) Analyze(ctx context.Context, path string, sampleRate int) (*audio.Stats, error) {
	samples, err := c.ResampleToPCM(ctx, path, sampleRate)
	if err != nil {
		return nil, err
	}

	stats := audio.AnalyzeSamples(samples, sampleRate)
	return &stats, nil
}

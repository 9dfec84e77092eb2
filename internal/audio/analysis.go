package audio

import (
	"encoding/binary"
	"math"
)

// silenceThreshold is the absolute amplitude below which a sample counts as
// silent, matching the offline analysis tooling.
const silenceThreshold = 0.01

// Stats represents the cheap signal statistics used by the quality gate and
// by the file analysis path.
type Stats struct {
	Duration          float64 `json:"duration"` // seconds
	SampleRate        int     `json:"sample_rate"`
	Channels          int     `json:"channels"`
	MaxAmplitude      float64 `json:"max_amplitude"`
	RMSLevel          float64 `json:"rms_level"`
	SilencePercentage float64 `json:"silence_percentage"`
}

// AnalyzeSamples computes signal statistics over normalized mono samples
func AnalyzeSamples(samples []float32, sampleRate int) Stats {
	stats := Stats{
		SampleRate: sampleRate,
		Channels:   1,
	}

	if len(samples) == 0 || sampleRate <= 0 {
		return stats
	}

	stats.Duration = float64(len(samples)) / float64(sampleRate)

	var sumSquares float64
	silent := 0
	for _, s := range samples {
		abs := math.Abs(float64(s))
		if abs > stats.MaxAmplitude {
			stats.MaxAmplitude = abs
		}
		if abs < silenceThreshold {
			silent++
		}
		sumSquares += float64(s) * float64(s)
	}

	stats.RMSLevel = math.Sqrt(sumSquares / float64(len(samples)))
	stats.SilencePercentage = float64(silent) / float64(len(samples)) * 100

	return stats
}

// DecodeFloat32 interprets raw bytes as little-endian float32 PCM samples.
// Trailing bytes that do not form a complete sample are ignored.
func DecodeFloat32(data []byte) []float32 {
	n := len(data) / 4
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples
}

// EncodeFloat32 converts samples back to little-endian float32 PCM bytes
func EncodeFloat32(samples []float32) []byte {
	data := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(s))
	}
	return data
}

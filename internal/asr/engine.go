package asr

import (
	"context"

	"github.com/doramirdor/friday-ai/internal/protocol"
)

// Segment is one timed piece of recognized text, relative to the submitted audio
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Result is the engine's output for one audio submission
type Result struct {
	Segments            []Segment `json:"segments"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
}

// Options controls one transcription invocation. The VAD fields mirror the
// faster-whisper parameter names.
type Options struct {
	Language                string
	Model                   string
	BeamSize                int
	ConditionOnPreviousText bool
	Temperature             float64

	VADFilter            bool
	MinSilenceDurationMS int
	SpeechPadMS          int
	MaxSpeechDurationS   int
}

// Engine converts PCM audio into timed text segments. Implementations must
// honor the context deadline: a stalled call may not hold up the caller past
// its budget.
type Engine interface {
	Transcribe(ctx context.Context, samples []float32, sampleRate int, opts Options) (*Result, error)
}

// OptionsFor returns the per-stream-type transcription profile. System
// audio runs without VAD: its loopback signal confused the filter badly
// enough that whole chunks came back empty. Microphone audio keeps VAD but
// with lenient settings so quiet speakers are not clipped away.
func OptionsFor(streamType protocol.StreamType, language, model string) Options {
	opts := Options{
		Language:                language,
		Model:                   model,
		BeamSize:                1,
		ConditionOnPreviousText: false,
		Temperature:             0.0,
	}

	if streamType == protocol.StreamTypeSystem {
		opts.VADFilter = false
		return opts
	}

	opts.VADFilter = true
	opts.MinSilenceDurationMS = 1000
	opts.SpeechPadMS = 400
	opts.MaxSpeechDurationS = 30

	return opts
}

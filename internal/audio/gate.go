package audio

import (
	"github.com/doramirdor/friday-ai/internal/protocol"
)

// Rejection reasons recorded with preserved chunks so a missing transcript
// can be diagnosed from disk afterwards.
const (
	RejectTooShort    = "too_short"
	RejectNearSilence = "near_silence"
	RejectLowSignal   = "low_signal"
)

// GateThresholds holds the signal floors applied to one stream type
type GateThresholds struct {
	MinDuration   float64 // seconds
	MaxSilencePct float64 // percent
	MinAmplitude  float64
	MinRMS        float64
}

// Gate decides whether an extracted chunk is worth sending to the
// transcription engine. It is stateless: each decision depends only on the
// chunk's signal statistics and the thresholds for its stream type.
type Gate struct {
	microphone GateThresholds
	system     GateThresholds
}

// NewGate creates a quality gate with per-stream-type thresholds
func NewGate(microphone, system GateThresholds) *Gate {
	return &Gate{
		microphone: microphone,
		system:     system,
	}
}

// Check classifies a chunk. It returns ok=true when the chunk should be
// transcribed, otherwise ok=false and the rejection reason.
func (g *Gate) Check(stats Stats, streamType protocol.StreamType) (reason string, ok bool) {
	t := g.thresholds(streamType)

	if stats.Duration < t.MinDuration {
		return RejectTooShort, false
	}

	if stats.SilencePercentage > t.MaxSilencePct {
		return RejectNearSilence, false
	}

	if stats.MaxAmplitude < t.MinAmplitude || stats.RMSLevel < t.MinRMS {
		return RejectLowSignal, false
	}

	return "", true
}

func (g *Gate) thresholds(streamType protocol.StreamType) GateThresholds {
	if streamType == protocol.StreamTypeSystem {
		return g.system
	}
	return g.microphone
}

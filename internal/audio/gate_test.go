package audio

import (
	"math"
	"testing"

	"github.com/doramirdor/friday-ai/internal/protocol"
)

func defaultThresholds() GateThresholds {
	return GateThresholds{
		MinDuration:   0.05,
		MaxSilencePct: 99.5,
		MinAmplitude:  0.5,
		MinRMS:        0.01,
	}
}

func TestGateCheck(t *testing.T) {
	gate := NewGate(defaultThresholds(), defaultThresholds())

	tests := []struct {
		name       string
		stats      Stats
		wantOK     bool
		wantReason string
	}{
		{
			name: "good signal passes",
			stats: Stats{
				Duration:          5.0,
				MaxAmplitude:      0.8,
				RMSLevel:          0.2,
				SilencePercentage: 40.0,
			},
			wantOK: true,
		},
		{
			name: "too short",
			stats: Stats{
				Duration:          0.01,
				MaxAmplitude:      0.8,
				RMSLevel:          0.2,
				SilencePercentage: 0.0,
			},
			wantOK:     false,
			wantReason: RejectTooShort,
		},
		{
			name: "long but nearly silent",
			stats: Stats{
				Duration:          5.0,
				MaxAmplitude:      0.8,
				RMSLevel:          0.2,
				SilencePercentage: 99.8,
			},
			wantOK:     false,
			wantReason: RejectNearSilence,
		},
		{
			name: "amplitude below floor",
			stats: Stats{
				Duration:          5.0,
				MaxAmplitude:      0.3,
				RMSLevel:          0.2,
				SilencePercentage: 40.0,
			},
			wantOK:     false,
			wantReason: RejectLowSignal,
		},
		{
			name: "rms below floor",
			stats: Stats{
				Duration:          5.0,
				MaxAmplitude:      0.8,
				RMSLevel:          0.005,
				SilencePercentage: 40.0,
			},
			wantOK:     false,
			wantReason: RejectLowSignal,
		},
		{
			name: "silence exactly at limit passes that check",
			stats: Stats{
				Duration:          5.0,
				MaxAmplitude:      0.8,
				RMSLevel:          0.2,
				SilencePercentage: 99.5,
			},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, ok := gate.Check(tt.stats, protocol.StreamTypeMicrophone)

			if ok != tt.wantOK {
				t.Errorf("Expected ok=%v, got ok=%v (reason %q)", tt.wantOK, ok, reason)
			}

			if !tt.wantOK && reason != tt.wantReason {
				t.Errorf("Expected reason %q, got %q", tt.wantReason, reason)
			}
		})
	}
}

func TestGatePerStreamTypeThresholds(t *testing.T) {
	lenient := GateThresholds{MinDuration: 0.05, MaxSilencePct: 99.5, MinAmplitude: 0.01, MinRMS: 0.001}
	strict := defaultThresholds()

	gate := NewGate(strict, lenient)

	quiet := Stats{
		Duration:          5.0,
		MaxAmplitude:      0.1,
		RMSLevel:          0.05,
		SilencePercentage: 40.0,
	}

	if _, ok := gate.Check(quiet, protocol.StreamTypeMicrophone); ok {
		t.Error("Expected quiet signal rejected under strict microphone thresholds")
	}

	if reason, ok := gate.Check(quiet, protocol.StreamTypeSystem); !ok {
		t.Errorf("Expected quiet signal accepted under lenient system thresholds, rejected with %q", reason)
	}
}

func TestAnalyzeSamples(t *testing.T) {
	// Half loud constant, half silent
	samples := make([]float32, 1000)
	for i := 0; i < 500; i++ {
		samples[i] = 0.8
	}

	stats := AnalyzeSamples(samples, 1000)

	if stats.Duration != 1.0 {
		t.Errorf("Expected duration 1.0s, got %f", stats.Duration)
	}

	if stats.MaxAmplitude < 0.79 || stats.MaxAmplitude > 0.81 {
		t.Errorf("Expected max amplitude ~0.8, got %f", stats.MaxAmplitude)
	}

	if stats.SilencePercentage != 50.0 {
		t.Errorf("Expected 50%% silence, got %f", stats.SilencePercentage)
	}

	wantRMS := 0.8 * math.Sqrt(0.5)
	if math.Abs(stats.RMSLevel-wantRMS) > 0.001 {
		t.Errorf("Expected RMS ~%f, got %f", wantRMS, stats.RMSLevel)
	}
}

func TestAnalyzeSamplesEmpty(t *testing.T) {
	stats := AnalyzeSamples(nil, 16000)

	if stats.Duration != 0 {
		t.Errorf("Expected zero duration for empty input, got %f", stats.Duration)
	}
}

func TestFloat32RoundTrip(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 1.0, -1.0, 0.123}

	decoded := DecodeFloat32(EncodeFloat32(samples))

	if len(decoded) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(decoded))
	}

	for i := range samples {
		if decoded[i] != samples[i] {
			t.Errorf("Sample %d: expected %f, got %f", i, samples[i], decoded[i])
		}
	}
}

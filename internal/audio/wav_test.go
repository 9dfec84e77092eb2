package audio

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV(t *testing.T) {
	samples := []float32{0.0, 0.5, -0.5, 1.0, -1.0}

	data, err := EncodeWAV(samples, 16000)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	wantLen := 44 + len(samples)*2
	if len(data) != wantLen {
		t.Errorf("Expected %d bytes, got %d", wantLen, len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("Expected RIFF/WAVE header markers")
	}

	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != 16000 {
		t.Errorf("Expected sample rate 16000 in header, got %d", rate)
	}

	if channels := binary.LittleEndian.Uint16(data[22:24]); channels != 1 {
		t.Errorf("Expected mono, got %d channels", channels)
	}

	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", bits)
	}

	if dataSize := binary.LittleEndian.Uint32(data[40:44]); dataSize != uint32(len(samples)*2) {
		t.Errorf("Expected data size %d, got %d", len(samples)*2, dataSize)
	}

	// Full-scale samples are clipped, not wrapped
	first := int16(binary.LittleEndian.Uint16(data[44:46]))
	if first != 0 {
		t.Errorf("Expected first sample 0, got %d", first)
	}

	max := int16(binary.LittleEndian.Uint16(data[50:52]))
	if max != 32767 {
		t.Errorf("Expected full-scale sample 32767, got %d", max)
	}
}

func TestEncodeWAVValidation(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000); err == nil {
		t.Error("Expected error for empty samples")
	}

	if _, err := EncodeWAV([]float32{0.1}, 0); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestEncodeWAVClipsOutOfRange(t *testing.T) {
	data, err := EncodeWAV([]float32{2.0, -2.0}, 16000)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}

	hi := int16(binary.LittleEndian.Uint16(data[44:46]))
	lo := int16(binary.LittleEndian.Uint16(data[46:48]))

	if hi != 32767 {
		t.Errorf("Expected clipped positive sample 32767, got %d", hi)
	}

	if lo != -32767 {
		t.Errorf("Expected clipped negative sample -32767, got %d", lo)
	}
}

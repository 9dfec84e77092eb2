// Package audio handles audio buffering, signal analysis, and quality
// gating. It implements the per-stream sample queue with overlap-preserving
// chunk extraction, cheap signal statistics, the pre-transcription quality
// gate, and WAV encoding for preservation and uploads.
package audio

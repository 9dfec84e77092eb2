// Package codec decodes client-provided audio files into mono PCM samples
// by shelling out to ffmpeg, so the file-based transcription path accepts
// any container ffmpeg understands.
package codec

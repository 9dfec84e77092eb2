// Package stream owns the active stream registry and the background
// processing loop. The registry tracks per-stream buffers and accumulators;
// a single processor goroutine polls every buffer, gates and transcribes
// extracted chunks, and publishes completed sentences to the update sink.
package stream

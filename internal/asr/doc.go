// Package asr sends captured audio to a speech recognition backend and
// returns timed text segments. The HTTP client bounds concurrency with a
// semaphore, retries transient failures with exponential backoff, and keeps
// request statistics. Per-stream-type option profiles select the voice
// activity filtering behavior.
package asr

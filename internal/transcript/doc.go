// Package transcript reassembles timed transcription segments into
// sentence-bounded updates. A per-stream accumulator merges segments until
// terminal punctuation or a timeout, suppresses duplicates caused by the
// chunk overlap window, and keeps a bounded history of recent segments.
package transcript

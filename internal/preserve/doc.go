// Package preserve writes best-effort diagnostic artifacts: WAV snapshots
// of chunks that pass through the pipeline and a JSONL decision log. All
// failures degrade silently so preservation can never break transcription.
package preserve

// Package alerts matches transcripts against user-configured keywords.
// Matching is semantic: keyword and transcript sentences are embedded via a
// local Ollama endpoint and compared with cosine similarity, with exact
// substring hits recognized directly.
package alerts

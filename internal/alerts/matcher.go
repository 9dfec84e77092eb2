package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/doramirdor/friday-ai/internal/protocol"
)

// Matcher checks a transcript against configured alert keywords
type Matcher interface {
	Match(ctx context.Context, transcript string, keywords []protocol.Keyword) ([]protocol.AlertMatch, error)
}

// Config contains embedding matcher configuration
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// EmbeddingMatcher scores keyword relevance with text embeddings from an
// Ollama-compatible endpoint. A keyword matches when the cosine similarity
// between its embedding and a transcript sentence meets the keyword's
// threshold. Exact substring hits short-circuit with similarity 1.0 so a
// literal mention never depends on embedding quality.
type EmbeddingMatcher struct {
	config     Config
	httpClient *http.Client

	// Keyword embeddings are stable for a given model, cache them.
	cache   map[string][]float64
	cacheMu sync.RWMutex
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// NewEmbeddingMatcher creates a matcher backed by an embeddings endpoint
func NewEmbeddingMatcher(config Config) (*EmbeddingMatcher, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.Model == "" {
		config.Model = "nomic-embed-text"
	}

	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	return &EmbeddingMatcher{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		cache: make(map[string][]float64),
	}, nil
}

// Match evaluates every enabled keyword against the transcript. Sentences
// are scored individually so one strong sentence is not diluted by the rest
// of the transcript.
func (m *EmbeddingMatcher) Match(ctx context.Context, transcript string, keywords []protocol.Keyword) ([]protocol.AlertMatch, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return nil, nil
	}

	sentences := splitSentences(transcript)

	var matches []protocol.AlertMatch

	for _, kw := range keywords {
		if !kw.Enabled || strings.TrimSpace(kw.Keyword) == "" {
			continue
		}

		threshold := kw.Threshold
		if threshold <= 0 || threshold > 1 {
			threshold = 0.8
		}

		if idx := indexFold(transcript, kw.Keyword); idx >= 0 {
			matches = append(matches, protocol.AlertMatch{
				Keyword:     kw.Keyword,
				MatchedText: snippet(transcript, idx, len(kw.Keyword)),
				Similarity:  1.0,
			})
			continue
		}

		kwEmbedding, err := m.embed(ctx, kw.Keyword)
		if err != nil {
			return nil, fmt.Errorf("failed to embed keyword %q: %w", kw.Keyword, err)
		}

		bestScore := 0.0
		bestSentence := ""
		for _, sentence := range sentences {
			sentEmbedding, err := m.embed(ctx, sentence)
			if err != nil {
				return nil, fmt.Errorf("failed to embed sentence: %w", err)
			}

			score := cosineSimilarity(kwEmbedding, sentEmbedding)
			if score > bestScore {
				bestScore = score
				bestSentence = sentence
			}
		}

		if bestScore >= threshold {
			matches = append(matches, protocol.AlertMatch{
				Keyword:     kw.Keyword,
				MatchedText: bestSentence,
				Similarity:  bestScore,
			})
		}
	}

	return matches, nil
}

// embed fetches the embedding for a text, using the cache for keywords and
// repeated sentences
func (m *EmbeddingMatcher) embed(ctx context.Context, text string) ([]float64, error) {
	m.cacheMu.RLock()
	cached, ok := m.cache[text]
	m.cacheMu.RUnlock()
	if ok {
		return cached, nil
	}

	reqBody, err := json.Marshal(embeddingRequest{
		Model:  m.config.Model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", m.config.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if len(embResp.Embedding) == 0 {
		return nil, fmt.Errorf("empty embedding in response")
	}

	m.cacheMu.Lock()
	m.cache[text] = embResp.Embedding
	m.cacheMu.Unlock()

	return embResp.Embedding, nil
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// splitSentences breaks a transcript on terminal punctuation. The remainder
// after the last terminator is kept as a trailing sentence.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for _, r := range text {
		current.WriteRune(r)
		if r == '.' || r == '?' || r == '!' {
			if s := strings.TrimSpace(current.String()); s != "" {
				sentences = append(sentences, s)
			}
			current.Reset()
		}
	}

	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

// indexFold is a case-insensitive strings.Index
func indexFold(haystack, needle string) int {
	return strings.Index(strings.ToLower(haystack), strings.ToLower(needle))
}

// snippet returns the matched text with a little surrounding context
func snippet(text string, idx, length int) string {
	const pad = 30

	start := idx - pad
	if start < 0 {
		start = 0
	}
	end := idx + length + pad
	if end > len(text) {
		end = len(text)
	}

	return strings.TrimSpace(text[start:end])
}

package match

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

// EmbedClient calls an OpenAI-compatible embeddings endpoint. It is the only
// network dependency of the embedding scorer; when it is unreachable the
// engine reports a structured error rather than degrading to another scorer
// with a different score scale.
type EmbedClient struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
	logger  *slog.Logger
}

// NewEmbedClient builds an embeddings client.
func NewEmbedClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *EmbedClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &EmbedClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// maxEmbedChars caps each input; embedding endpoints reject very long texts
// and the head of a report is what identifies its layout anyway.
const maxEmbedChars = 8000

// Embed returns one vector per input text, in order.
func (c *EmbedClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	inputs := make([]string, len(texts))
	for i, t := range texts {
		if len(t) > maxEmbedChars {
			t = t[:maxEmbedChars]
		}
		inputs[i] = t
	}

	body, err := json.Marshal(map[string]any{
		"model": c.model,
		"input": inputs,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding embeddings request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, fmt.Errorf("reading embeddings response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned %s: %s", resp.Status, truncateBody(raw))
	}

	var decoded struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decoding embeddings response: %w", err)
	}
	if len(decoded.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings endpoint returned %d vectors for %d inputs", len(decoded.Data), len(inputs))
	}

	vectors := make([][]float64, len(inputs))
	for _, d := range decoded.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embeddings endpoint returned out-of-range index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}

	c.logger.Debug("embeddings fetched",
		slog.Int("inputs", len(inputs)),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return vectors, nil
}

func truncateBody(raw []byte) string {
	const max = 512
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}

// FitEmbeddings embeds every pseudo-document and returns the dense model.
func FitEmbeddings(ctx context.Context, client *EmbedClient, pseudoDocs map[string]string, order []string) (*Artifacts, error) {
	texts := make([]string, 0, len(order))
	for _, code := range order {
		texts = append(texts, pseudoDocs[code])
	}

	vectors, err := client.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding pseudo-documents: %w", err)
	}

	return &Artifacts{
		Scorer:     "embedding",
		Labels:     append([]string(nil), order...),
		Embeddings: vectors,
		TrainedAt:  time.Now().UTC(),
	}, nil
}

// EmbeddingScorer scores queries by cosine similarity between the query
// embedding and each layout's pseudo-document embedding.
type EmbeddingScorer struct {
	client     *EmbedClient
	labels     []string
	embeddings [][]float64
}

// NewEmbeddingScorer builds a scorer from loaded artifacts.
func NewEmbeddingScorer(a *Artifacts, client *EmbedClient) *EmbeddingScorer {
	return &EmbeddingScorer{client: client, labels: a.Labels, embeddings: a.Embeddings}
}

// Scores implements Scorer. Negative cosines clamp to zero so the base score
// stays on the same 0–100 scale as the other strategies.
func (s *EmbeddingScorer) Scores(ctx context.Context, query string) (map[string]float64, error) {
	vectors, err := s.client.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding service unavailable: %w", err)
	}
	queryVec := vectors[0]

	scores := make(map[string]float64, len(s.labels))
	for i, row := range s.embeddings {
		if cos := cosineDense(queryVec, row); cos > 0 {
			scores[s.labels[i]] = cos * 100
		}
	}
	return scores, nil
}

func cosineDense(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
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

package match

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// embeddingStub returns fixed unit vectors per known text so cosine scores
// are predictable: axis-aligned vectors for the trained docs, and the query
// vector aimed at whichever doc the test wants to win.
func embeddingStub(t *testing.T, vectors map[string][]float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)

		var req struct {
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type datum struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		}
		data := make([]datum, len(req.Input))
		for i, text := range req.Input {
			vec, known := vectors[text]
			require.True(t, known, "unexpected embedding input %q", text)
			data[i] = datum{Index: i, Embedding: vec}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"data": data})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func embedTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestEmbedClient_Embed(t *testing.T) {
	srv := embeddingStub(t, map[string][]float64{
		"texto um":   {1, 0},
		"texto dois": {0, 1},
	})
	client := NewEmbedClient(srv.URL, "key", "test-model", time.Second, embedTestLogger())

	vectors, err := client.Embed(context.Background(), []string{"texto um", "texto dois"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{1, 0}, vectors[0])
	assert.Equal(t, []float64{0, 1}, vectors[1])
}

func TestEmbedClient_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	client := NewEmbedClient(srv.URL, "", "test-model", time.Second, embedTestLogger())
	_, err := client.Embed(context.Background(), []string{"texto"})
	assert.ErrorContains(t, err, "503")
}

func TestEmbedClient_VectorCountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":[]}`)
	}))
	t.Cleanup(srv.Close)

	client := NewEmbedClient(srv.URL, "", "test-model", time.Second, embedTestLogger())
	_, err := client.Embed(context.Background(), []string{"texto"})
	assert.Error(t, err)
}

func TestEmbeddingScorer_Scores(t *testing.T) {
	srv := embeddingStub(t, map[string][]float64{
		"doc cem":       {1, 0},
		"doc duzentos":  {0, 1},
		"parece o cem":  {0.9, 0.1},
		"parece nenhum": {-1, -1},
	})
	client := NewEmbedClient(srv.URL, "", "test-model", time.Second, embedTestLogger())

	artifacts, err := FitEmbeddings(context.Background(), client, map[string]string{
		"100": "doc cem",
		"200": "doc duzentos",
	}, []string{"100", "200"})
	require.NoError(t, err)
	require.NoError(t, artifacts.Validate())

	scorer := NewEmbeddingScorer(artifacts, client)

	t.Run("closest document wins", func(t *testing.T) {
		scores, err := scorer.Scores(context.Background(), "parece o cem")
		require.NoError(t, err)
		assert.Greater(t, scores["100"], scores["200"])
		assert.Greater(t, scores["100"], 90.0)
	})

	t.Run("negative cosine clamps to zero", func(t *testing.T) {
		scores, err := scorer.Scores(context.Background(), "parece nenhum")
		require.NoError(t, err)
		assert.Empty(t, scores)
	})
}

func TestEmbeddingScorer_ServiceUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client := NewEmbedClient(srv.URL, "", "test-model", time.Second, embedTestLogger())
	scorer := NewEmbeddingScorer(&Artifacts{Scorer: "embedding", Labels: []string{"100"}, Embeddings: [][]float64{{1}}}, client)

	_, err := scorer.Scores(context.Background(), "qualquer")
	assert.ErrorContains(t, err, "embedding service unavailable")
}

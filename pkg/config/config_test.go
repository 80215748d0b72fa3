package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "arquivos_de_treinamento", cfg.Paths.TrainingDir)
	assert.Equal(t, "layouts.json", cfg.Paths.MetadataFile)
	assert.Equal(t, "tfidf", cfg.Matching.Scorer)
	assert.Equal(t, 5, cfg.Matching.TopN)
	assert.Equal(t, 4, cfg.Matching.MaxPages)
	assert.True(t, cfg.OCR.Enabled)
	assert.Equal(t, "por", cfg.OCR.Language)
	assert.Equal(t, 20*time.Second, cfg.OCR.ImageTimeout)
	assert.Equal(t, int64(32<<20), cfg.Server.MaxUploadBytes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9999")
	t.Setenv("MATCH_SCORER", "keyword")
	t.Setenv("OCR_ENABLED", "false")
	t.Setenv("OCR_IMAGE_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "keyword", cfg.Matching.Scorer)
	assert.False(t, cfg.OCR.Enabled)
	assert.Equal(t, 5*time.Second, cfg.OCR.ImageTimeout)
}

func TestLoad_InvalidScorer(t *testing.T) {
	t.Setenv("MATCH_SCORER", "magic")

	_, err := Load()
	assert.ErrorContains(t, err, "MATCH_SCORER")
}

func TestLoad_EmbeddingRequiresBaseURL(t *testing.T) {
	t.Setenv("MATCH_SCORER", "embedding")
	t.Setenv("EMBEDDING_BASE_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "EMBEDDING_BASE_URL")
}

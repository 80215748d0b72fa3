package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/internal/domain/train"
	"github.com/mfbarros/layout-identifier/pkg/config"
)

const statementText = "extrato bancario saldo anterior lancamento credito transferencia agencia"

type apiFixture struct {
	server  *httptest.Server
	store   *catalog.Store
	trainer *train.Trainer
	cfg     *config.Config
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	cfg := &config.Config{}
	cfg.Server.RateLimitPerSecond = 1000
	cfg.Server.RateLimitBurst = 1000
	cfg.Server.MaxUploadBytes = 8 << 20
	cfg.Paths.TempDir = filepath.Join(dir, "temp")
	cfg.Paths.TrainingDir = filepath.Join(dir, "arquivos_de_treinamento")
	cfg.Paths.CacheDir = filepath.Join(dir, "cache")
	cfg.Paths.ArtifactsDir = filepath.Join(dir, "model")
	cfg.Paths.MetadataFile = filepath.Join(dir, "layouts.json")
	cfg.Matching.Scorer = "tfidf"
	cfg.Matching.TopN = 5

	store := catalog.NewStore(cfg.Paths.MetadataFile)
	require.NoError(t, store.Save([]catalog.Layout{
		{
			Code:         "100",
			Description:  "BB - Extrato Conta Corrente",
			FileFormat:   catalog.FormatText,
			TargetSystem: "Banco do Brasil",
			ReportType:   catalog.ReportTypeBanking,
			Keywords:     []string{"extrato"},
		},
	}))

	artifacts := match.FitTFIDF(map[string]string{"100": statementText}, []string{"100"})
	require.NoError(t, match.SaveArtifacts(cfg.Paths.ArtifactsDir, artifacts))

	extractor := extract.New(extract.Config{}, logger)
	engine := match.NewEngine(match.Config{
		ArtifactsDir: cfg.Paths.ArtifactsDir,
		ScorerKind:   "tfidf",
		TopN:         5,
	}, extractor, store, nil, logger)
	_, err := engine.Reload(context.Background())
	require.NoError(t, err)

	trainer := train.NewTrainer(train.Config{
		TrainingDir:  cfg.Paths.TrainingDir,
		CacheDir:     cfg.Paths.CacheDir,
		ArtifactsDir: cfg.Paths.ArtifactsDir,
		Scorer:       "tfidf",
	}, extractor, store, nil, nil, logger)

	srv := httptest.NewServer(NewServer(cfg, engine, trainer, store, extractor, logger).Router())
	t.Cleanup(srv.Close)

	return &apiFixture{server: srv, store: store, trainer: trainer, cfg: cfg}
}

func multipartUpload(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestIdentifyEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("matches an uploaded statement", func(t *testing.T) {
		body, contentType := multipartUpload(t, map[string]string{
			"target_system": "Banco do Brasil",
		}, "extrato.txt", statementText)

		resp, err := http.Post(f.server.URL+"/v1/identify", contentType, body)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var out struct {
			Status  string        `json:"status"`
			Matches []match.Match `json:"matches"`
		}
		decodeBody(t, resp, &out)
		assert.Equal(t, "ok", out.Status)
		require.NotEmpty(t, out.Matches)
		assert.Equal(t, "100", out.Matches[0].Code)
		assert.Greater(t, out.Matches[0].Score, 100.0)
	})

	t.Run("missing file field", func(t *testing.T) {
		resp, err := http.Post(f.server.URL+"/v1/identify", "multipart/form-data; boundary=x", strings.NewReader("--x--\r\n"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unsupported format is unprocessable", func(t *testing.T) {
		body, contentType := multipartUpload(t, nil, "documento.docx", "anything")
		resp, err := http.Post(f.server.URL+"/v1/identify", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	})

	t.Run("uploads are cleaned up", func(t *testing.T) {
		body, contentType := multipartUpload(t, nil, "extrato.txt", statementText)
		resp, err := http.Post(f.server.URL+"/v1/identify", contentType, body)
		require.NoError(t, err)
		resp.Body.Close()

		entries, err := os.ReadDir(f.cfg.Paths.TempDir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestLayoutsEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("lists the catalog", func(t *testing.T) {
		resp, err := http.Get(f.server.URL + "/v1/layouts")
		require.NoError(t, err)
		var out struct {
			Layouts []catalog.Layout `json:"layouts"`
			Total   int              `json:"total"`
		}
		decodeBody(t, resp, &out)
		assert.Equal(t, 1, out.Total)
		assert.Equal(t, "100", out.Layouts[0].Code)
	})

	t.Run("searches with a query", func(t *testing.T) {
		resp, err := http.Get(f.server.URL + "/v1/layouts?q=extrato")
		require.NoError(t, err)
		var out struct {
			Results []catalog.SearchResult `json:"results"`
			Total   int                    `json:"total"`
		}
		decodeBody(t, resp, &out)
		require.Equal(t, 1, out.Total)
		assert.Equal(t, "100", out.Results[0].Layout.Code)
	})
}

func TestConfirmLayoutEndpoint(t *testing.T) {
	t.Run("metadata only", func(t *testing.T) {
		f := newAPIFixture(t)

		payload := `{"description":"Sicoob - Extrato Conta Corrente","file_format":"pdf","keywords":["cooperativa","extrato"]}`
		resp, err := http.Post(f.server.URL+"/v1/layouts/900/confirm", "application/json", strings.NewReader(payload))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		m, err := f.store.LoadMap()
		require.NoError(t, err)
		layout := m["900"]
		assert.Equal(t, "Sicoob - Extrato Conta Corrente", layout.Description)
		assert.Equal(t, catalog.FormatPDF, layout.FileFormat)
		assert.Equal(t, "Sicoob", layout.TargetSystem)
		assert.Equal(t, catalog.ReportTypeBanking, layout.ReportType)
	})

	t.Run("with document copies it into the corpus", func(t *testing.T) {
		f := newAPIFixture(t)

		body, contentType := multipartUpload(t, map[string]string{
			"description": "Sicredi - Extrato Conta Corrente",
			"file_format": "txt",
		}, "extrato_sicredi.txt", statementText)

		resp, err := http.Post(f.server.URL+"/v1/layouts/950/confirm", contentType, body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		entries, err := os.ReadDir(f.cfg.Paths.TrainingDir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		name := entries[0].Name()
		assert.True(t, strings.HasPrefix(name, "950_confirmed_"), name)
		assert.True(t, strings.HasSuffix(name, "_extrato_sicredi.txt"), name)

		cached, ok := train.NewTextCache(f.cfg.Paths.CacheDir).Get(filepath.Join(f.cfg.Paths.TrainingDir, name))
		require.True(t, ok)
		assert.Equal(t, statementText, cached)

		m, err := f.store.LoadMap()
		require.NoError(t, err)
		layout := m["950"]
		assert.Equal(t, catalog.FormatText, layout.FileFormat)
		// No keywords were supplied, so they are mined from the document.
		assert.Contains(t, layout.Keywords, "bancario")
	})
}

func TestTrainEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("status starts idle", func(t *testing.T) {
		resp, err := http.Get(f.server.URL + "/v1/train/status")
		require.NoError(t, err)
		var report train.Report
		decodeBody(t, resp, &report)
		assert.Equal(t, "idle", report.Status)
	})

	t.Run("invalid mode is rejected", func(t *testing.T) {
		resp, err := http.Post(f.server.URL+"/v1/train?mode=turbo", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestModelEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("model info", func(t *testing.T) {
		resp, err := http.Get(f.server.URL + "/v1/model")
		require.NoError(t, err)
		var info match.ModelInfo
		decodeBody(t, resp, &info)
		assert.True(t, info.Loaded)
		assert.Equal(t, "tfidf", info.Scorer)
		assert.Equal(t, 1, info.Layouts)
	})

	t.Run("reload succeeds", func(t *testing.T) {
		resp, err := http.Post(f.server.URL+"/v1/model/reload", "application/json", nil)
		require.NoError(t, err)
		var info match.ModelInfo
		decodeBody(t, resp, &info)
		assert.True(t, info.Loaded)
	})
}

func TestHealthEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

package train

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
)

const (
	bankText   = "extrato bancario saldo anterior lancamento credito transferencia agencia"
	ledgerText = "razao contabil conta contrapartida historico balancete periodo acumulado"
)

type trainerFixture struct {
	trainer *Trainer
	store   *catalog.Store
	cfg     Config
}

func newTrainerFixture(t *testing.T) *trainerFixture {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	trainingDir := filepath.Join(dir, "arquivos_de_treinamento")
	require.NoError(t, os.MkdirAll(trainingDir, 0o755))

	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(trainingDir, name), []byte(content), 0o644))
	}
	write("100_a.txt", bankText)
	write("100_b.txt", bankText+" poupanca rendimento")
	write("200.txt", ledgerText)
	// Mixed formats under one code: the whole group must be rejected.
	write("300_a.txt", "qualquer texto")
	write("300_b.xlsx", "not really a spreadsheet")
	// No layout code in the name.
	write("modelo_antigo.txt", "qualquer texto")

	mappingFile := filepath.Join(dir, "mapeamento.csv")
	mapping := "code,description,format\n100,BB - Extrato Conta Corrente,txt\n"
	require.NoError(t, os.WriteFile(mappingFile, []byte(mapping), 0o644))

	cfg := Config{
		TrainingDir:  trainingDir,
		CacheDir:     filepath.Join(dir, "cache_de_texto"),
		ArtifactsDir: filepath.Join(dir, "model"),
		MappingFile:  mappingFile,
		Scorer:       "tfidf",
	}
	store := catalog.NewStore(filepath.Join(dir, "layouts.json"))
	extractor := extract.New(extract.Config{}, logger)

	return &trainerFixture{
		trainer: NewTrainer(cfg, extractor, store, nil, nil, logger),
		store:   store,
		cfg:     cfg,
	}
}

func TestTrainer_RunFull(t *testing.T) {
	f := newTrainerFixture(t)

	var lastDone, lastTotal int
	f.trainer.OnProgress = func(done, total int) { lastDone, lastTotal = done, total }

	report, err := f.trainer.Run(context.Background(), ModeFull)
	require.NoError(t, err)

	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 2, report.Layouts)
	assert.Equal(t, 3, report.FilesUsed)
	assert.Equal(t, 1, report.FilesSkipped)
	assert.Equal(t, 1, report.GroupsSkipped)

	t.Run("progress reaches the total", func(t *testing.T) {
		assert.Equal(t, 5, lastTotal)
		assert.Equal(t, lastTotal, lastDone)
	})

	t.Run("catalog is rewritten", func(t *testing.T) {
		layouts, err := f.store.Load()
		require.NoError(t, err)
		require.Len(t, layouts, 2)

		assert.Equal(t, "100", layouts[0].Code)
		assert.Equal(t, "BB - Extrato Conta Corrente", layouts[0].Description)
		assert.Equal(t, "Banco do Brasil", layouts[0].TargetSystem)
		assert.Equal(t, catalog.ReportTypeBanking, layouts[0].ReportType)
		assert.Equal(t, catalog.FormatText, layouts[0].FileFormat)
		assert.Contains(t, layouts[0].Keywords, "bancario")

		// Without a mapping row the description falls back to the code.
		assert.Equal(t, "Layout 200", layouts[1].Description)
		assert.Equal(t, catalog.ReportTypeFinancial, layouts[1].ReportType)
	})

	t.Run("artifacts are fitted and aligned", func(t *testing.T) {
		a, err := match.LoadArtifacts(f.cfg.ArtifactsDir)
		require.NoError(t, err)
		assert.Equal(t, "tfidf", a.Scorer)
		assert.Equal(t, []string{"100", "200"}, a.Labels)
		assert.False(t, a.TrainedAt.IsZero())
	})

	t.Run("extracted text is cached", func(t *testing.T) {
		cache := NewTextCache(f.cfg.CacheDir)
		text, ok := cache.Get(filepath.Join(f.cfg.TrainingDir, "100_a.txt"))
		require.True(t, ok)
		assert.Equal(t, bankText, text)
	})

	t.Run("trainer returns to idle", func(t *testing.T) {
		assert.Equal(t, "success", f.trainer.Status().Status)
	})
}

func TestTrainer_RunFastUsesCacheOnly(t *testing.T) {
	f := newTrainerFixture(t)

	// Seed the cache for a single file; fast mode must skip the rest.
	cache := NewTextCache(f.cfg.CacheDir)
	require.NoError(t, cache.Put(filepath.Join(f.cfg.TrainingDir, "200.txt"), ledgerText))

	report, err := f.trainer.Run(context.Background(), ModeFast)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Layouts)
	assert.Equal(t, 1, report.FilesUsed)

	a, err := match.LoadArtifacts(f.cfg.ArtifactsDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"200"}, a.Labels)
}

func TestTrainer_RunMetadataOnly(t *testing.T) {
	f := newTrainerFixture(t)

	report, err := f.trainer.Run(context.Background(), ModeMetadata)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Layouts)

	t.Run("catalog holds the mapping rows", func(t *testing.T) {
		layouts, err := f.store.Load()
		require.NoError(t, err)
		require.Len(t, layouts, 1)
		assert.Equal(t, "100", layouts[0].Code)
	})

	t.Run("no artifacts are written", func(t *testing.T) {
		_, err := match.LoadArtifacts(f.cfg.ArtifactsDir)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestTrainer_SingleFlight(t *testing.T) {
	f := newTrainerFixture(t)

	f.trainer.mu.Lock()
	f.trainer.running = true
	f.trainer.mu.Unlock()

	_, err := f.trainer.Run(context.Background(), ModeFull)
	assert.ErrorIs(t, err, ErrTrainingBusy)

	err = f.trainer.Start(context.Background(), ModeFull)
	assert.ErrorIs(t, err, ErrTrainingBusy)
}

func TestTrainer_EmptyTrainingDir(t *testing.T) {
	f := newTrainerFixture(t)
	require.NoError(t, os.RemoveAll(f.cfg.TrainingDir))
	require.NoError(t, os.MkdirAll(f.cfg.TrainingDir, 0o755))

	report, err := f.trainer.Run(context.Background(), ModeFull)
	assert.Error(t, err)
	assert.Equal(t, "failed", report.Status)
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{
		"":         ModeFull,
		"full":     ModeFull,
		"Fast":     ModeFast,
		"METADATA": ModeMetadata,
	} {
		got, err := ParseMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseMode("turbo")
	assert.Error(t, err)
}

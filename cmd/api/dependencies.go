package main

import (
	"fmt"
	"log/slog"

	"github.com/mfbarros/layout-identifier/internal/api"
	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/internal/domain/train"
	"github.com/mfbarros/layout-identifier/pkg/config"
	"github.com/mfbarros/layout-identifier/pkg/cron"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	Store      *catalog.Store
	Extractor  *extract.Extractor
	Enrichment *catalog.EnrichmentClient
	Embed      *match.EmbedClient

	Engine  *match.Engine
	Trainer *train.Trainer

	Server    *api.Server
	Scheduler *cron.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	deps.Store = catalog.NewStore(cfg.Paths.MetadataFile)

	deps.Extractor = extract.New(extract.Config{
		MaxPages: cfg.Matching.MaxPages,
		OCR: extract.OCRConfig{
			Enabled:      cfg.OCR.Enabled,
			PdftoppmBin:  cfg.OCR.PdftoppmBin,
			TesseractBin: cfg.OCR.TesseractBin,
			Language:     cfg.OCR.Language,
			DPI:          cfg.OCR.DPI,
			ImageTimeout: cfg.OCR.ImageTimeout,
		},
	}, logger)

	if cfg.Enrichment.BaseURL != "" {
		deps.Enrichment = catalog.NewEnrichmentClient(
			cfg.Enrichment.BaseURL,
			cfg.Enrichment.Secret,
			cfg.Enrichment.Timeout,
			logger,
		)
	}
	if cfg.Embedding.BaseURL != "" {
		deps.Embed = match.NewEmbedClient(
			cfg.Embedding.BaseURL,
			cfg.Embedding.APIKey,
			cfg.Embedding.Model,
			cfg.Embedding.Timeout,
			logger,
		)
	}
	if cfg.Matching.Scorer == "embedding" && deps.Embed == nil {
		return nil, fmt.Errorf("embedding scorer requires EMBEDDING_BASE_URL")
	}

	deps.Engine = match.NewEngine(match.Config{
		ArtifactsDir: cfg.Paths.ArtifactsDir,
		ScorerKind:   cfg.Matching.Scorer,
		TopN:         cfg.Matching.TopN,
	}, deps.Extractor, deps.Store, deps.Embed, logger)

	deps.Trainer = train.NewTrainer(train.Config{
		TrainingDir:  cfg.Paths.TrainingDir,
		CacheDir:     cfg.Paths.CacheDir,
		ArtifactsDir: cfg.Paths.ArtifactsDir,
		MappingFile:  cfg.Paths.MappingFile,
		Scorer:       cfg.Matching.Scorer,
	}, deps.Extractor, deps.Store, deps.Embed, deps.Enrichment, logger)

	deps.Server = api.NewServer(cfg, deps.Engine, deps.Trainer, deps.Store, deps.Extractor, logger)
	deps.Scheduler = cron.NewScheduler(
		deps.Trainer,
		deps.Engine,
		cfg.Cron.RetrainSpec,
		cfg.Cron.MetadataSpec,
		logger,
	)

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

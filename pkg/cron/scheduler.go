// Package cron provides scheduled background jobs using robfig/cron.
package cron

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/internal/domain/train"
)

// Scheduler manages background scheduled jobs using robfig/cron.
type Scheduler struct {
	cron    *cron.Cron
	trainer *train.Trainer
	engine  *match.Engine
	logger  *slog.Logger

	retrainSpec string
	refreshSpec string
}

// NewScheduler creates a new job scheduler. The specs use the standard
// 5-field cron format; an empty spec disables that job.
func NewScheduler(trainer *train.Trainer, engine *match.Engine, retrainSpec, refreshSpec string, logger *slog.Logger) *Scheduler {
	c := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))))

	return &Scheduler{
		cron:        c,
		trainer:     trainer,
		engine:      engine,
		logger:      logger,
		retrainSpec: retrainSpec,
		refreshSpec: refreshSpec,
	}
}

// Start begins scheduled jobs.
func (s *Scheduler) Start() error {
	if s.retrainSpec != "" {
		if _, err := s.cron.AddFunc(s.retrainSpec, s.retrain); err != nil {
			return err
		}
	}
	if s.refreshSpec != "" {
		if _, err := s.cron.AddFunc(s.refreshSpec, s.refreshMetadata); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("cron scheduler started",
		slog.Int("jobs", len(s.cron.Entries())),
	)
	return nil
}

// Stop gracefully stops all scheduled jobs.
func (s *Scheduler) Stop() context.Context {
	s.logger.Info("cron scheduler stopping")
	return s.cron.Stop()
}

// retrain runs a full training pass and reloads the serving snapshot. An
// administrator-started run in flight just skips this cycle.
func (s *Scheduler) retrain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	s.logger.Info("starting scheduled training run")
	report, err := s.trainer.Run(ctx, train.ModeFull)
	if errors.Is(err, train.ErrTrainingBusy) {
		s.logger.Info("training already in progress, skipping scheduled run")
		return
	}
	if err != nil {
		s.logger.Error("scheduled training run failed", slog.Any("error", err))
		return
	}

	s.logger.Info("scheduled training run completed",
		slog.Int("layouts", report.Layouts),
		slog.Int("files_used", report.FilesUsed),
		slog.Int("files_skipped", report.FilesSkipped),
	)
	if _, err := s.engine.Reload(ctx); err != nil {
		s.logger.Error("reload after scheduled training failed", slog.Any("error", err))
	}
}

// refreshMetadata refreshes catalog metadata from the mapping sheet and the
// enrichment API without refitting the model.
func (s *Scheduler) refreshMetadata() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	s.logger.Info("starting scheduled metadata refresh")
	report, err := s.trainer.Run(ctx, train.ModeMetadata)
	if errors.Is(err, train.ErrTrainingBusy) {
		s.logger.Info("training already in progress, skipping metadata refresh")
		return
	}
	if err != nil {
		s.logger.Error("scheduled metadata refresh failed", slog.Any("error", err))
		return
	}

	s.logger.Info("scheduled metadata refresh completed", slog.Int("layouts", report.Layouts))
	if _, err := s.engine.Reload(ctx); err != nil {
		s.logger.Error("reload after metadata refresh failed", slog.Any("error", err))
	}
}

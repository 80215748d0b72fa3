// Command trainer runs the training pipeline and ad-hoc identifications from
// the terminal, against the same configuration the API server uses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/internal/domain/train"
	"github.com/mfbarros/layout-identifier/pkg/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *catalog.Store
	extractor *extract.Extractor
	embed     *match.EmbedClient
}

func newApp() (*app, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  catalog.NewStore(cfg.Paths.MetadataFile),
	}
	a.extractor = extract.New(extract.Config{
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
	if cfg.Embedding.BaseURL != "" {
		a.embed = match.NewEmbedClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Timeout, logger)
	}
	return a, nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "trainer",
		Short:         "Train and query the report layout identification model",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())
	root.AddCommand(newIdentifyCmd())
	root.AddCommand(newKeywordsCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a training pass over the training directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			m, err := train.ParseMode(mode)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var enrichment *catalog.EnrichmentClient
			if a.cfg.Enrichment.BaseURL != "" {
				enrichment = catalog.NewEnrichmentClient(a.cfg.Enrichment.BaseURL, a.cfg.Enrichment.Secret, a.cfg.Enrichment.Timeout, a.logger)
			}

			trainer := train.NewTrainer(train.Config{
				TrainingDir:  a.cfg.Paths.TrainingDir,
				CacheDir:     a.cfg.Paths.CacheDir,
				ArtifactsDir: a.cfg.Paths.ArtifactsDir,
				MappingFile:  a.cfg.Paths.MappingFile,
				Scorer:       a.cfg.Matching.Scorer,
			}, a.extractor, a.store, a.embed, enrichment, a.logger)

			var bar *progressbar.ProgressBar
			trainer.OnProgress = func(done, total int) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetDescription("extracting"),
						progressbar.OptionShowCount(),
						progressbar.OptionClearOnFinish(),
					)
				}
				_ = bar.Set(done)
			}

			report, err := trainer.Run(ctx, m)
			if err != nil {
				return err
			}

			fmt.Printf("Training complete: %d layouts, %d files used, %d skipped, %d groups rejected (%s)\n",
				report.Layouts, report.FilesUsed, report.FilesSkipped, report.GroupsSkipped,
				report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().StringVarP(&mode, "mode", "m", "full", "training mode: full, fast or metadata")
	return cmd
}

func newIdentifyCmd() *cobra.Command {
	var (
		system      string
		description string
		reportType  string
		password    string
	)

	cmd := &cobra.Command{
		Use:   "identify <file>",
		Short: "Identify the layout of a single report file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			engine := match.NewEngine(match.Config{
				ArtifactsDir: a.cfg.Paths.ArtifactsDir,
				ScorerKind:   a.cfg.Matching.Scorer,
				TopN:         a.cfg.Matching.TopN,
			}, a.extractor, a.store, a.embed, a.logger)
			if _, err := engine.Reload(cmd.Context()); err != nil {
				return err
			}

			req := match.Request{
				FilePath:         args[0],
				TargetSystem:     system,
				ExtraDescription: description,
				ReportType:       catalog.NormalizeReportType(reportType),
			}
			if cmd.Flags().Changed("password") {
				req.Password = &password
			}

			resp, err := engine.Identify(cmd.Context(), req)
			if err != nil {
				return err
			}
			switch resp.Status {
			case match.StatusPasswordRequired:
				return fmt.Errorf("file is password protected, retry with --password")
			case match.StatusPasswordIncorrect:
				return fmt.Errorf("the supplied password was rejected")
			}

			if len(resp.Matches) == 0 {
				fmt.Println("No matching layout found.")
				return nil
			}
			for i, m := range resp.Matches {
				fmt.Printf("%d. [%s] %s  score=%.2f confidence=%s\n", i+1, m.Code, m.Description, m.Score, m.Confidence)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&system, "system", "", "target accounting system hint")
	cmd.Flags().StringVar(&description, "description", "", "extra free-text description")
	cmd.Flags().StringVar(&reportType, "type", "", "report type filter: banking, financial or all")
	cmd.Flags().StringVar(&password, "password", "", "PDF password")
	return cmd
}

func newKeywordsCmd() *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "keywords <file>",
		Short: "Suggest catalog keywords from a report file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}

			res := a.extractor.Extract(cmd.Context(), args[0], extract.Options{})
			if res.Status != extract.StatusOK {
				return fmt.Errorf("could not extract %s", args[0])
			}
			for _, kw := range train.SuggestKeywords(res.Text, count) {
				fmt.Println(kw)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 30, "number of keywords to suggest")
	return cmd
}

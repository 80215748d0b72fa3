// Package train rebuilds the layout catalog and the scoring model from the
// files dropped in the training directory. A run scans the directory, groups
// files by the layout code in their names, consolidates the extracted text
// per layout and refits the configured scorer's artifacts, then rewrites the
// catalog metadata.
package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/pkg/metrics"
)

// ErrTrainingBusy is returned when a run is requested while another is in
// progress. Runs are serialized; there is no queue.
var ErrTrainingBusy = errors.New("a training run is already in progress")

// Mode selects how much of the pipeline a run executes.
type Mode string

const (
	// ModeFull extracts every training file (consulting the cache) and
	// refits the model.
	ModeFull Mode = "full"
	// ModeFast uses only cached text; files without a fresh cache entry
	// are skipped instead of extracted.
	ModeFast Mode = "fast"
	// ModeMetadata refreshes catalog metadata from the mapping sheet and
	// the enrichment API without touching the model.
	ModeMetadata Mode = "metadata"
)

// ParseMode validates a mode string, defaulting empty to ModeFull.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeFull:
		return ModeFull, nil
	case ModeFast:
		return ModeFast, nil
	case ModeMetadata:
		return ModeMetadata, nil
	}
	return "", fmt.Errorf("unknown training mode %q", s)
}

// Report is the outcome of a run, also served as the status of the run in
// progress.
type Report struct {
	Mode          Mode      `json:"mode"`
	Status        string    `json:"status"` // idle | running | success | failed
	StartedAt     time.Time `json:"started_at,omitzero"`
	FinishedAt    time.Time `json:"finished_at,omitzero"`
	Layouts       int       `json:"layouts"`
	FilesUsed     int       `json:"files_used"`
	FilesSkipped  int       `json:"files_skipped"`
	GroupsSkipped int       `json:"groups_skipped"`
	Error         string    `json:"error,omitempty"`
}

// Config configures a Trainer.
type Config struct {
	TrainingDir  string
	CacheDir     string
	ArtifactsDir string
	MappingFile  string
	Scorer       string // keyword | tfidf | embedding
	KeywordCount int
}

// Trainer runs the training pipeline. At most one run executes at a time.
type Trainer struct {
	cfg        Config
	extractor  *extract.Extractor
	store      *catalog.Store
	cache      *TextCache
	embed      *match.EmbedClient
	enrichment *catalog.EnrichmentClient
	logger     *slog.Logger

	// OnProgress, when set, is called after each training file with the
	// number handled so far and the total.
	OnProgress func(done, total int)
	// OnSuccess, when set, is called after a run completes successfully.
	// The server uses it to reload the serving snapshot.
	OnSuccess func(Report)

	mu      sync.Mutex
	running bool
	last    Report
}

func NewTrainer(cfg Config, extractor *extract.Extractor, store *catalog.Store, embed *match.EmbedClient, enrichment *catalog.EnrichmentClient, logger *slog.Logger) *Trainer {
	if cfg.KeywordCount <= 0 {
		cfg.KeywordCount = 30
	}
	return &Trainer{
		cfg:        cfg,
		extractor:  extractor,
		store:      store,
		cache:      NewTextCache(cfg.CacheDir),
		embed:      embed,
		enrichment: enrichment,
		logger:     logger,
		last:       Report{Status: "idle"},
	}
}

// Status reports the run in progress, or the last completed run.
func (t *Trainer) Status() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Run executes one training run synchronously. A second concurrent call
// returns ErrTrainingBusy without waiting.
func (t *Trainer) Run(ctx context.Context, mode Mode) (Report, error) {
	if err := t.acquire(mode); err != nil {
		return Report{}, err
	}
	return t.execute(ctx, mode)
}

// Start begins a run in the background, returning ErrTrainingBusy
// immediately when one is already in progress. Progress is observable
// through Status.
func (t *Trainer) Start(ctx context.Context, mode Mode) error {
	if err := t.acquire(mode); err != nil {
		return err
	}
	go func() {
		if _, err := t.execute(ctx, mode); err != nil {
			t.logger.Error("background training run failed",
				slog.String("mode", string(mode)),
				slog.Any("error", err),
			)
		}
	}()
	return nil
}

func (t *Trainer) acquire(mode Mode) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		metrics.TrainingRuns.WithLabelValues("rejected").Inc()
		return ErrTrainingBusy
	}
	t.running = true
	t.last = Report{Mode: mode, Status: "running", StartedAt: time.Now()}
	return nil
}

// execute runs the pipeline and releases the gate. The caller must hold the
// gate via acquire.
func (t *Trainer) execute(ctx context.Context, mode Mode) (Report, error) {
	started := time.Now()
	report, err := t.run(ctx, mode)
	report.Mode = mode
	report.StartedAt = started
	report.FinishedAt = time.Now()
	if err != nil {
		report.Status = "failed"
		report.Error = err.Error()
		metrics.TrainingRuns.WithLabelValues("failed").Inc()
	} else {
		report.Status = "success"
		metrics.TrainingRuns.WithLabelValues("success").Inc()
	}
	metrics.TrainingDuration.Observe(time.Since(started).Seconds())

	t.mu.Lock()
	t.running = false
	t.last = report
	t.mu.Unlock()

	if err == nil && t.OnSuccess != nil {
		t.OnSuccess(report)
	}
	return report, err
}

type trainingFile struct {
	path   string
	name   TrainingName
	format catalog.Format
}

func (t *Trainer) run(ctx context.Context, mode Mode) (Report, error) {
	var report Report

	mapping := t.loadMapping()

	if mode == ModeMetadata {
		layouts, err := t.refreshMetadata(ctx, mapping)
		if err != nil {
			return report, err
		}
		report.Layouts = layouts
		return report, nil
	}

	groups, skippedFiles, err := t.scan()
	if err != nil {
		return report, err
	}
	report.FilesSkipped = skippedFiles
	if len(groups) == 0 {
		return report, fmt.Errorf("no usable training files in %s", t.cfg.TrainingDir)
	}

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	total := 0
	for _, code := range codes {
		total += len(groups[code])
	}

	pseudoDocs := make(map[string]string)
	layouts := make([]catalog.Layout, 0, len(groups))
	done := 0
	for _, code := range codes {
		files := groups[code]
		if !homogeneous(files) {
			t.logger.Warn("skipping layout group with mixed file formats",
				slog.String("code", code),
				slog.Int("files", len(files)),
			)
			report.GroupsSkipped++
			done += len(files)
			t.progress(done, total)
			continue
		}

		var texts []string
		var headerText string
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			text, ok := t.fileText(ctx, f, mode)
			done++
			t.progress(done, total)
			if !ok {
				report.FilesSkipped++
				continue
			}
			report.FilesUsed++
			texts = append(texts, text)
			if headerText == "" && f.format == catalog.FormatPDF {
				headerText = t.extractor.ExtractHeader(f.path, f.name.Password)
			}
		}
		if len(texts) == 0 {
			report.GroupsSkipped++
			continue
		}

		consolidated := strings.Join(texts, " ")
		pseudoDocs[code] = consolidated
		layouts = append(layouts, t.buildLayout(code, files[0].format, consolidated, headerText, mapping))
	}

	if len(layouts) == 0 {
		return report, errors.New("no layout produced any text, nothing to train")
	}

	order := make([]string, 0, len(pseudoDocs))
	for code := range pseudoDocs {
		order = append(order, code)
	}
	sort.Strings(order)

	artifacts, err := t.fit(ctx, pseudoDocs, order)
	if err != nil {
		return report, err
	}
	if err := match.SaveArtifacts(t.cfg.ArtifactsDir, artifacts); err != nil {
		return report, fmt.Errorf("persisting model artifacts: %w", err)
	}

	t.attachPreviews(ctx, layouts)
	if err := t.store.Save(layouts); err != nil {
		return report, fmt.Errorf("persisting catalog: %w", err)
	}

	report.Layouts = len(layouts)
	t.logger.Info("training run complete",
		slog.String("scorer", t.cfg.Scorer),
		slog.Int("layouts", len(layouts)),
		slog.Int("files_used", report.FilesUsed),
		slog.Int("files_skipped", report.FilesSkipped),
		slog.Int("groups_skipped", report.GroupsSkipped),
	)
	return report, nil
}

// scan walks the training directory grouping files by layout code. Files
// whose names carry no code are counted and skipped.
func (t *Trainer) scan() (map[string][]trainingFile, int, error) {
	entries, err := os.ReadDir(t.cfg.TrainingDir)
	if err != nil {
		return nil, 0, fmt.Errorf("reading training dir: %w", err)
	}

	groups := make(map[string][]trainingFile)
	skipped := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name, ok := ParseTrainingName(entry.Name())
		if !ok {
			t.logger.Warn("training file name has no layout code, skipping",
				slog.String("file", entry.Name()))
			skipped++
			continue
		}
		format := catalog.NormalizeFormat(filepath.Ext(entry.Name()))
		if format == "" {
			t.logger.Warn("training file has unsupported extension, skipping",
				slog.String("file", entry.Name()))
			skipped++
			continue
		}
		groups[name.Code] = append(groups[name.Code], trainingFile{
			path:   filepath.Join(t.cfg.TrainingDir, entry.Name()),
			name:   name,
			format: format,
		})
	}
	return groups, skipped, nil
}

func homogeneous(files []trainingFile) bool {
	for _, f := range files[1:] {
		if f.format != files[0].format {
			return false
		}
	}
	return true
}

// fileText returns a file's lowercased text, consulting the cache first. In
// fast mode an uncached file is skipped rather than extracted.
func (t *Trainer) fileText(ctx context.Context, f trainingFile, mode Mode) (string, bool) {
	if text, ok := t.cache.Get(f.path); ok {
		return text, text != ""
	}
	if mode == ModeFast {
		t.logger.Debug("no cached text in fast mode, skipping", slog.String("file", f.path))
		return "", false
	}

	res := t.extractor.Extract(ctx, f.path, extract.Options{Password: f.name.Password})
	if res.Status != extract.StatusOK || res.Text == "" {
		t.logger.Warn("could not extract training file",
			slog.String("file", f.path),
			slog.String("status", res.Status.String()),
		)
		return "", false
	}
	if err := t.cache.Put(f.path, res.Text); err != nil {
		t.logger.Warn("text cache write failed", slog.String("file", f.path), slog.Any("error", err))
	}
	return res.Text, true
}

func (t *Trainer) buildLayout(code string, format catalog.Format, consolidated, headerText string, mapping map[string]catalog.Layout) catalog.Layout {
	layout := catalog.Layout{
		Code:       code,
		FileFormat: format,
		Keywords:   SuggestKeywords(consolidated, t.cfg.KeywordCount),
		HeaderText: headerText,
	}
	if m, ok := mapping[code]; ok {
		layout.Description = m.Description
		layout.TargetSystem = m.TargetSystem
		layout.ReportType = m.ReportType
		if m.FileFormat != "" {
			layout.FileFormat = m.FileFormat
		}
	} else {
		layout.Description = "Layout " + code
	}
	if layout.TargetSystem == "" {
		layout.TargetSystem = catalog.DeriveSystem(layout.Description)
	}
	if layout.ReportType == "" {
		layout.ReportType = catalog.ClassifyReportType(layout.Description)
	}
	return layout
}

func (t *Trainer) fit(ctx context.Context, pseudoDocs map[string]string, order []string) (*match.Artifacts, error) {
	switch t.cfg.Scorer {
	case "keyword":
		// Keyword scoring reads the catalog directly; the artifact only
		// records which labels were trained and when.
		return &match.Artifacts{Scorer: "keyword", Labels: order, TrainedAt: time.Now().UTC()}, nil
	case "tfidf":
		return match.FitTFIDF(pseudoDocs, order), nil
	case "embedding":
		if t.embed == nil {
			return nil, errors.New("embedding scorer configured without an embedding client")
		}
		return match.FitEmbeddings(ctx, t.embed, pseudoDocs, order)
	}
	return nil, fmt.Errorf("unknown scorer %q", t.cfg.Scorer)
}

// refreshMetadata merges the mapping sheet and enrichment previews into the
// stored catalog without refitting the model.
func (t *Trainer) refreshMetadata(ctx context.Context, mapping map[string]catalog.Layout) (int, error) {
	updates := make([]catalog.Layout, 0, len(mapping))
	for _, l := range mapping {
		updates = append(updates, l)
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Code < updates[j].Code })

	t.attachPreviews(ctx, updates)
	if err := t.store.Upsert(updates); err != nil {
		return 0, fmt.Errorf("updating catalog metadata: %w", err)
	}
	layouts, err := t.store.Load()
	if err != nil {
		return 0, err
	}
	return len(layouts), nil
}

// attachPreviews decorates layouts with preview URLs from the enrichment
// API. Enrichment failures are logged and ignored.
func (t *Trainer) attachPreviews(ctx context.Context, layouts []catalog.Layout) {
	if t.enrichment == nil || !t.enrichment.Enabled() {
		return
	}
	previews, err := t.enrichment.Previews(ctx)
	if err != nil {
		t.logger.Warn("layout preview enrichment unavailable", slog.Any("error", err))
		return
	}
	for i := range layouts {
		if url, ok := previews[layouts[i].Code]; ok {
			layouts[i].PreviewURL = url
		}
	}
}

func (t *Trainer) loadMapping() map[string]catalog.Layout {
	if t.cfg.MappingFile == "" {
		return nil
	}
	rows, err := catalog.LoadMapping(t.cfg.MappingFile)
	if err != nil {
		t.logger.Warn("mapping sheet unavailable, descriptions fall back to layout codes",
			slog.String("file", t.cfg.MappingFile),
			slog.Any("error", err),
		)
		return nil
	}
	byCode := make(map[string]catalog.Layout, len(rows))
	for _, l := range rows {
		byCode[l.Code] = l
	}
	return byCode
}

func (t *Trainer) progress(done, total int) {
	if t.OnProgress != nil {
		t.OnProgress(done, total)
	}
}

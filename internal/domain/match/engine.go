// Package match scores an extracted document against every catalog layout
// and returns a ranked top-N. The scoring strategy (keyword overlap, TF-IDF
// cosine or embedding cosine) is pluggable; bonuses, filtering and ranking
// are shared.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/pkg/metrics"
)

var (
	// ErrModelNotTrained means no model artifacts exist yet.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrEmptyCatalog means the metadata store holds no layouts.
	ErrEmptyCatalog = errors.New("layout catalog is empty")
	// ErrUnreadableFile means extraction produced no usable text.
	ErrUnreadableFile = errors.New("could not read file content")
)

const (
	// descriptionBonusWeight scales the shared-word ratio of the caller's
	// extra description. Kept as-is from the tuned original arithmetic; the
	// confidence thresholds below assume it.
	descriptionBonusWeight = 20
	// systemBonus is the flat boost for a target-system hit.
	systemBonus = 25

	confidenceHigh   = 85
	confidenceMedium = 60
)

// Status distinguishes the interactive outcomes of an identification.
type Status string

const (
	StatusOK                Status = "ok"
	StatusPasswordRequired  Status = "password_required"
	StatusPasswordIncorrect Status = "password_incorrect"
)

// Request is one identification call.
type Request struct {
	FilePath         string
	TargetSystem     string
	ExtraDescription string
	ReportType       catalog.ReportType
	Password         *string
}

// Match is one ranked result.
type Match struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
	Confidence  string  `json:"confidence"`
	PreviewURL  string  `json:"preview_url,omitempty"`
}

// Response is the outcome of an identification. Matches is only meaningful
// when Status is StatusOK; an empty Matches with StatusOK means no layout
// survived filtering, which is a valid answer, not an error.
type Response struct {
	Status  Status  `json:"status"`
	Matches []Match `json:"matches"`
}

// snapshot is the immutable serving state: catalog plus fitted scorer.
// Reload builds a fresh snapshot and swaps the pointer; in-flight calls keep
// the one they started with.
type snapshot struct {
	layouts   []catalog.Layout
	byCode    map[string]catalog.Layout
	scorer    Scorer
	trainedAt time.Time
	labels    int
}

// Config configures an Engine.
type Config struct {
	ArtifactsDir string
	ScorerKind   string // keyword | tfidf | embedding
	TopN         int
}

// Engine owns the in-memory model and catalog for the serving process.
type Engine struct {
	cfg       Config
	extractor *extract.Extractor
	store     *catalog.Store
	embed     *EmbedClient
	logger    *slog.Logger
	tracer    trace.Tracer

	snap atomic.Pointer[snapshot]
}

// NewEngine creates an engine. Call Reload before serving; an engine without
// a snapshot reports ErrModelNotTrained.
func NewEngine(cfg Config, extractor *extract.Extractor, store *catalog.Store, embed *EmbedClient, logger *slog.Logger) *Engine {
	if cfg.TopN <= 0 {
		cfg.TopN = 5
	}
	return &Engine{
		cfg:       cfg,
		extractor: extractor,
		store:     store,
		embed:     embed,
		logger:    logger,
		tracer:    otel.Tracer("layout-identifier/match"),
	}
}

// ModelInfo describes the currently loaded model.
type ModelInfo struct {
	Loaded    bool      `json:"loaded"`
	Scorer    string    `json:"scorer"`
	Layouts   int       `json:"layouts"`
	Labels    int       `json:"labels"`
	TrainedAt time.Time `json:"trained_at,omitzero"`
}

// Info reports the loaded snapshot's shape.
func (e *Engine) Info() ModelInfo {
	s := e.snap.Load()
	if s == nil {
		return ModelInfo{Scorer: e.cfg.ScorerKind}
	}
	return ModelInfo{
		Loaded:    true,
		Scorer:    e.cfg.ScorerKind,
		Layouts:   len(s.layouts),
		Labels:    s.labels,
		TrainedAt: s.trainedAt,
	}
}

// Reload re-reads the catalog and the model artifacts and atomically swaps
// the serving snapshot. It is cheap and synchronous; identification calls in
// flight see either the old or the new snapshot, never a mix.
func (e *Engine) Reload(ctx context.Context) (ModelInfo, error) {
	_, span := e.tracer.Start(ctx, "engine.reload")
	defer span.End()

	layouts, err := e.store.Load()
	if err != nil {
		metrics.ModelReloads.WithLabelValues("error").Inc()
		return ModelInfo{}, fmt.Errorf("loading catalog: %w", err)
	}
	byCode := make(map[string]catalog.Layout, len(layouts))
	for _, l := range layouts {
		byCode[l.Code] = l
	}

	next := &snapshot{layouts: layouts, byCode: byCode}

	switch e.cfg.ScorerKind {
	case "keyword":
		// The keyword model lives in the catalog itself; artifacts are
		// optional and only record the trained-at marker.
		next.scorer = NewKeywordScorer(layouts)
		next.labels = len(layouts)
		if a, err := LoadArtifacts(e.cfg.ArtifactsDir); err == nil {
			next.trainedAt = a.TrainedAt
		}
	default:
		a, err := LoadArtifacts(e.cfg.ArtifactsDir)
		if errors.Is(err, os.ErrNotExist) {
			// Serve the catalog without a scorer; Identify reports the
			// untrained condition per request.
			e.snap.Store(next)
			metrics.ModelReloads.WithLabelValues("untrained").Inc()
			metrics.CatalogLayouts.Set(float64(len(layouts)))
			e.logger.Warn("no model artifacts found, engine loaded untrained",
				slog.String("dir", e.cfg.ArtifactsDir),
			)
			return e.Info(), nil
		}
		if err != nil {
			metrics.ModelReloads.WithLabelValues("error").Inc()
			return ModelInfo{}, fmt.Errorf("loading model artifacts: %w", err)
		}
		if a.Scorer != e.cfg.ScorerKind {
			metrics.ModelReloads.WithLabelValues("error").Inc()
			return ModelInfo{}, fmt.Errorf("model artifacts were fitted with scorer %q, engine configured for %q", a.Scorer, e.cfg.ScorerKind)
		}
		switch a.Scorer {
		case "tfidf":
			next.scorer = NewTFIDFScorer(a)
		case "embedding":
			next.scorer = NewEmbeddingScorer(a, e.embed)
		}
		next.trainedAt = a.TrainedAt
		next.labels = len(a.Labels)
	}

	e.snap.Store(next)
	metrics.ModelReloads.WithLabelValues("ok").Inc()
	metrics.CatalogLayouts.Set(float64(len(layouts)))
	e.logger.Info("model snapshot reloaded",
		slog.String("scorer", e.cfg.ScorerKind),
		slog.Int("layouts", len(layouts)),
		slog.Int("labels", next.labels),
	)
	return e.Info(), nil
}

// Identify extracts the document at req.FilePath and ranks catalog layouts
// against it. Password conditions come back in the Response status; data
// problems (empty catalog, unreadable file, untrained model) come back as
// errors.
func (e *Engine) Identify(ctx context.Context, req Request) (*Response, error) {
	ctx, span := e.tracer.Start(ctx, "engine.identify",
		trace.WithAttributes(attribute.String("file", filepath.Base(req.FilePath))))
	defer span.End()

	res := e.extractor.Extract(ctx, req.FilePath, extract.Options{Password: req.Password})
	switch res.Status {
	case extract.StatusPasswordRequired:
		return &Response{Status: StatusPasswordRequired}, nil
	case extract.StatusPasswordIncorrect:
		return &Response{Status: StatusPasswordIncorrect}, nil
	case extract.StatusFailed:
		return nil, fmt.Errorf("%w: %v", ErrUnreadableFile, res.Err)
	}

	snap := e.snap.Load()
	if snap == nil || snap.scorer == nil {
		return nil, ErrModelNotTrained
	}
	if len(snap.layouts) == 0 {
		return nil, ErrEmptyCatalog
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, ErrUnreadableFile
	}

	// The caller's free-text description joins the query so it can pull the
	// scorer toward layouts whose training text mentions the same terms.
	query := res.Text
	if req.ExtraDescription != "" {
		query += " " + strings.ToLower(req.ExtraDescription)
	}

	base, err := snap.scorer.Scores(ctx, query)
	if err != nil {
		return nil, err
	}

	ranked := e.rank(snap, base, req)

	docFormat := catalog.NormalizeFormat(filepath.Ext(req.FilePath))
	filtered := filterMatches(snap, ranked, docFormat, req.ReportType)

	if len(filtered) > e.cfg.TopN {
		filtered = filtered[:e.cfg.TopN]
	}
	span.SetAttributes(attribute.Int("matches", len(filtered)))
	return &Response{Status: StatusOK, Matches: filtered}, nil
}

// rank applies the bonus heuristics and sorts descending. The sort is stable
// over catalog order (ascending code), which is the documented tie-break.
func (e *Engine) rank(snap *snapshot, base map[string]float64, req Request) []Match {
	descWords := significantWords(req.ExtraDescription)
	targetSystem := strings.ToLower(strings.TrimSpace(req.TargetSystem))

	matches := make([]Match, 0, len(snap.layouts))
	for _, l := range snap.layouts {
		score := base[l.Code]

		if len(descWords) > 0 {
			layoutText := strings.ToLower(l.HeaderText + " " + l.Description)
			shared := 0
			for _, w := range descWords {
				if strings.Contains(layoutText, w) {
					shared++
				}
			}
			if shared > 0 {
				score += float64(shared) / float64(len(descWords)) * descriptionBonusWeight
			}
		}

		if targetSystem != "" &&
			(strings.Contains(strings.ToLower(l.TargetSystem), targetSystem) ||
				strings.Contains(strings.ToLower(l.Description), targetSystem)) {
			score += systemBonus
		}

		if score <= 0 {
			continue
		}
		matches = append(matches, Match{
			Code:        l.Code,
			Description: l.Description,
			Score:       round2(score),
			Confidence:  confidenceLabel(score),
			PreviewURL:  l.PreviewURL,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	return matches
}

// filterMatches applies the hard filters: file-format bucket equality and,
// when requested, exact report type.
func filterMatches(snap *snapshot, matches []Match, docFormat catalog.Format, reportType catalog.ReportType) []Match {
	filtered := make([]Match, 0, len(matches))
	for _, m := range matches {
		l := snap.byCode[m.Code]
		if l.FileFormat != docFormat {
			continue
		}
		if reportType != "" && reportType != catalog.ReportTypeAll && l.ReportType != reportType {
			continue
		}
		filtered = append(filtered, m)
	}
	return filtered
}

// significantWords lowers and splits the extra description, keeping words of
// three or more characters.
func significantWords(s string) []string {
	if s == "" {
		return nil
	}
	var words []string
	for _, w := range strings.Fields(strings.ToLower(s)) {
		if len([]rune(w)) >= 3 {
			words = append(words, w)
		}
	}
	return words
}

// confidenceLabel buckets a score. Boundaries are exact: 85.0 is High,
// 84.99 is not.
func confidenceLabel(score float64) string {
	switch {
	case score >= confidenceHigh:
		return "High"
	case score >= confidenceMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package api exposes the HTTP surface: document identification, catalog
// search and confirmation, training control and model management.
package api

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/internal/domain/train"
	"github.com/mfbarros/layout-identifier/pkg/config"
)

// Server wires the domain services to HTTP handlers.
type Server struct {
	cfg       *config.Config
	engine    *match.Engine
	trainer   *train.Trainer
	store     *catalog.Store
	extractor *extract.Extractor
	cache     *train.TextCache
	logger    *slog.Logger
}

func NewServer(cfg *config.Config, engine *match.Engine, trainer *train.Trainer, store *catalog.Store, extractor *extract.Extractor, logger *slog.Logger) *Server {
	return &Server{
		cfg:       cfg,
		engine:    engine,
		trainer:   trainer,
		store:     store,
		extractor: extractor,
		cache:     train.NewTextCache(cfg.Paths.CacheDir),
		logger:    logger,
	}
}

// Router builds the full handler chain.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/identify", s.handleIdentify)
	mux.HandleFunc("GET /v1/layouts", s.handleListLayouts)
	mux.HandleFunc("POST /v1/layouts/{code}/confirm", s.handleConfirmLayout)
	mux.HandleFunc("POST /v1/train", s.handleTrain)
	mux.HandleFunc("GET /v1/train/status", s.handleTrainStatus)
	mux.HandleFunc("POST /v1/model/reload", s.handleModelReload)
	mux.HandleFunc("GET /v1/model", s.handleModelInfo)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.cfg.Observability.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})

	var handler http.Handler = mux
	handler = s.rateLimit(handler)
	handler = c.Handler(handler)
	handler = s.logRequests(handler)
	handler = requestID(handler)
	return handler
}

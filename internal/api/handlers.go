package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mfbarros/layout-identifier/internal/domain/catalog"
	"github.com/mfbarros/layout-identifier/internal/domain/extract"
	"github.com/mfbarros/layout-identifier/internal/domain/match"
	"github.com/mfbarros/layout-identifier/internal/domain/train"
	"github.com/mfbarros/layout-identifier/pkg/metrics"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleIdentify accepts a multipart upload and returns the ranked layout
// matches. Password negotiation is part of the normal flow: the response
// status tells the client to retry with a password rather than failing the
// request.
func (s *Server) handleIdentify(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() { metrics.IdentifyDuration.Observe(time.Since(start).Seconds()) }()

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
		metrics.IdentifyRequests.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		metrics.IdentifyRequests.WithLabelValues("error").Inc()
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	tempPath, err := s.saveUpload(file, header.Filename)
	if err != nil {
		metrics.IdentifyRequests.WithLabelValues("error").Inc()
		s.logger.Error("storing upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not store upload")
		return
	}
	defer os.Remove(tempPath)

	req := match.Request{
		FilePath:         tempPath,
		TargetSystem:     r.FormValue("target_system"),
		ExtraDescription: r.FormValue("description"),
		ReportType:       catalog.NormalizeReportType(r.FormValue("report_type")),
	}
	// An absent password and an empty one mean different things: absent
	// triggers the common-password trial, present means "use exactly this".
	if values, ok := r.MultipartForm.Value["password"]; ok && len(values) > 0 {
		req.Password = &values[0]
	}

	resp, err := s.engine.Identify(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, match.ErrModelNotTrained):
			metrics.IdentifyRequests.WithLabelValues("error").Inc()
			writeError(w, http.StatusServiceUnavailable, match.ErrModelNotTrained.Error())
		case errors.Is(err, match.ErrEmptyCatalog):
			metrics.IdentifyRequests.WithLabelValues("error").Inc()
			writeError(w, http.StatusServiceUnavailable, match.ErrEmptyCatalog.Error())
		case errors.Is(err, match.ErrUnreadableFile):
			metrics.IdentifyRequests.WithLabelValues("error").Inc()
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			metrics.IdentifyRequests.WithLabelValues("error").Inc()
			s.logger.Error("identification failed", "file", header.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "identification failed")
		}
		return
	}

	switch resp.Status {
	case match.StatusPasswordRequired:
		metrics.IdentifyRequests.WithLabelValues("password_required").Inc()
	case match.StatusPasswordIncorrect:
		metrics.IdentifyRequests.WithLabelValues("password_incorrect").Inc()
	default:
		if len(resp.Matches) == 0 {
			metrics.IdentifyRequests.WithLabelValues("empty").Inc()
		} else {
			metrics.IdentifyRequests.WithLabelValues("ok").Inc()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// saveUpload writes the upload into the temp dir under a random name,
// keeping the original extension so format detection works.
func (s *Server) saveUpload(file io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(s.cfg.Paths.TempDir, 0o755); err != nil {
		return "", fmt.Errorf("creating temp dir: %w", err)
	}
	name := uuid.NewString() + strings.ToLower(filepath.Ext(originalName))
	path := filepath.Join(s.cfg.Paths.TempDir, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, file); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// handleListLayouts returns the catalog, optionally filtered by a free-text
// query over code, description and target system.
func (s *Server) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	layouts, err := s.store.Load()
	if err != nil {
		s.logger.Error("loading catalog failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load catalog")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeJSON(w, http.StatusOK, map[string]any{"layouts": layouts, "total": len(layouts)})
		return
	}

	index, err := catalog.NewSearchIndex(layouts)
	if err != nil {
		s.logger.Error("building search index failed", "error", err)
		writeError(w, http.StatusInternalServerError, "search unavailable")
		return
	}
	defer index.Close()

	results, err := index.Search(query, 20)
	if err != nil {
		s.logger.Error("catalog search failed", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "total": len(results)})
}

type confirmLayoutRequest struct {
	Description  string   `json:"description"`
	FileFormat   string   `json:"file_format"`
	TargetSystem string   `json:"target_system"`
	ReportType   string   `json:"report_type"`
	Keywords     []string `json:"keywords"`
	HeaderText   string   `json:"header_text"`
}

// handleConfirmLayout upserts one layout after a human confirms an
// identification, then reloads the serving snapshot so the confirmation
// takes effect immediately. A multipart request may carry the confirmed
// document itself; it is copied into the training corpus so the next full
// run learns from it.
func (s *Server) handleConfirmLayout(w http.ResponseWriter, r *http.Request) {
	code := r.PathValue("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing layout code")
		return
	}

	var req confirmLayoutRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxUploadBytes)
		if err := r.ParseMultipartForm(s.cfg.Server.MaxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return
		}
		req = confirmLayoutRequest{
			Description:  r.FormValue("description"),
			FileFormat:   r.FormValue("file_format"),
			TargetSystem: r.FormValue("target_system"),
			ReportType:   r.FormValue("report_type"),
			Keywords:     splitKeywords(r.FormValue("keywords")),
			HeaderText:   r.FormValue("header_text"),
		}
		if file, header, err := r.FormFile("file"); err == nil {
			defer file.Close()
			if err := s.addToCorpus(r.Context(), code, header.Filename, file, &req); err != nil {
				s.logger.Error("adding confirmed file to corpus failed", "code", code, "error", err)
				writeError(w, http.StatusInternalServerError, "could not store confirmed file")
				return
			}
		}
	} else if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	layout := catalog.Layout{
		Code:         code,
		Description:  req.Description,
		FileFormat:   catalog.NormalizeFormat(req.FileFormat),
		TargetSystem: req.TargetSystem,
		Keywords:     req.Keywords,
		HeaderText:   req.HeaderText,
	}
	if req.ReportType != "" {
		layout.ReportType = catalog.NormalizeReportType(req.ReportType)
	}
	if layout.Description != "" {
		if layout.TargetSystem == "" {
			layout.TargetSystem = catalog.DeriveSystem(layout.Description)
		}
		if layout.ReportType == "" {
			layout.ReportType = catalog.ClassifyReportType(layout.Description)
		}
	}

	if err := s.store.Upsert([]catalog.Layout{layout}); err != nil {
		s.logger.Error("layout upsert failed", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update layout")
		return
	}
	if _, err := s.engine.Reload(r.Context()); err != nil {
		s.logger.Error("reload after layout confirmation failed", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed", "code": code})
}

// addToCorpus copies a confirmed document into the training directory under
// the code it was confirmed as, pre-populates its text-cache entry and, when
// no keywords were supplied, suggests them from the document text.
func (s *Server) addToCorpus(ctx context.Context, code, originalName string, file io.Reader, req *confirmLayoutRequest) error {
	if err := os.MkdirAll(s.cfg.Paths.TrainingDir, 0o755); err != nil {
		return fmt.Errorf("creating training dir: %w", err)
	}
	name := fmt.Sprintf("%s_confirmed_%d_%s", code, time.Now().Unix(), filepath.Base(originalName))
	dest := filepath.Join(s.cfg.Paths.TrainingDir, name)

	dst, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		os.Remove(dest)
		return err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dest)
		return err
	}

	// Extraction and cache write are best effort: the copy alone makes the
	// file part of the next full training run.
	res := s.extractor.Extract(ctx, dest, extract.Options{})
	if res.Status != extract.StatusOK || strings.TrimSpace(res.Text) == "" {
		return nil
	}
	if err := s.cache.Put(dest, res.Text); err != nil {
		s.logger.Warn("caching confirmed file text failed", "file", name, "error", err)
	}
	if len(req.Keywords) == 0 {
		req.Keywords = train.SuggestKeywords(res.Text, 30)
	}
	return nil
}

func splitKeywords(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, strings.ToLower(k))
		}
	}
	return out
}

// handleTrain starts a background training run. A run already in progress
// yields 409.
func (s *Server) handleTrain(w http.ResponseWriter, r *http.Request) {
	mode, err := train.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The run outlives the request; it must not die with the client.
	if err := s.trainer.Start(context.WithoutCancel(r.Context()), mode); err != nil {
		if errors.Is(err, train.ErrTrainingBusy) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "running", "mode": string(mode)})
}

func (s *Server) handleTrainStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.trainer.Status())
}

func (s *Server) handleModelReload(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.Reload(r.Context())
	if err != nil {
		s.logger.Error("model reload failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Info())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Package extract converts documents of heterogeneous formats (PDF,
// spreadsheet, plain text/CSV, XML) into normalized lowercase text.
//
// Extraction never propagates failures as errors past this package: every
// outcome, including encrypted-PDF password negotiation, is reported as a
// Result value so batch callers can keep going.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Status classifies the outcome of an extraction.
type Status int

const (
	// StatusOK means Text holds the normalized document text (possibly empty
	// for unsupported extensions).
	StatusOK Status = iota
	// StatusPasswordRequired signals an encrypted PDF that none of the common
	// passwords unlocked. The caller is expected to collect a password
	// out-of-band and re-invoke with it.
	StatusPasswordRequired
	// StatusPasswordIncorrect signals that the manually supplied password was
	// rejected. Common passwords are not tried in that case.
	StatusPasswordIncorrect
	// StatusFailed means the document could not be read; Err carries the cause.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPasswordRequired:
		return "password_required"
	case StatusPasswordIncorrect:
		return "password_incorrect"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the outcome of extracting one document.
type Result struct {
	Status Status
	Text   string
	Err    error
}

func ok(text string) Result     { return Result{Status: StatusOK, Text: strings.ToLower(text)} }
func failed(err error) Result   { return Result{Status: StatusFailed, Err: err} }
func passwordRequired() Result  { return Result{Status: StatusPasswordRequired} }
func passwordIncorrect() Result { return Result{Status: StatusPasswordIncorrect} }

// Options tune a single extraction call.
type Options struct {
	// Password, when non-nil, is the only password tried against an encrypted
	// PDF. When nil a short list of common passwords is tried instead.
	Password *string
	// MaxPages overrides the configured PDF page cap when > 0.
	MaxPages int
}

// OCRConfig configures the external OCR toolchain used for scanned PDF pages.
type OCRConfig struct {
	Enabled      bool
	PdftoppmBin  string
	TesseractBin string
	Language     string
	DPI          int
	// ImageTimeout bounds the OCR of a single page image. A timeout skips
	// that image and extraction continues with the next one.
	ImageTimeout time.Duration
}

// Config configures an Extractor.
type Config struct {
	// MaxPages caps how many PDF pages are read per document.
	MaxPages int
	OCR      OCRConfig
}

// Extractor performs format-aware text extraction.
type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

// New creates an Extractor with the default exec-based OCR runner.
func New(cfg Config, logger *slog.Logger) *Extractor {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 4
	}
	if cfg.OCR.DPI <= 0 {
		cfg.OCR.DPI = 200
	}
	if cfg.OCR.ImageTimeout <= 0 {
		cfg.OCR.ImageTimeout = 20 * time.Second
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the OCR command runner. Used by tests to stub the
// pdftoppm/tesseract toolchain.
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract reads the file at path and returns its normalized lowercase text.
// The format is decided by extension, not content sniffing. Unsupported
// extensions yield an empty OK result.
func (e *Extractor) Extract(ctx context.Context, path string, opts Options) (res Result) {
	// Parsing libraries can panic on corrupted input; a corrupted document is
	// a per-item failure, never a crash of the caller's batch loop.
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("extraction panic recovered",
				slog.String("path", path),
				slog.Any("panic", r),
			)
			res = failed(fmt.Errorf("extracting %s: panic: %v", path, r))
		}
	}()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return e.extractPDF(ctx, path, opts)
	case ".xlsx", ".xls":
		return e.extractSpreadsheet(path)
	case ".txt", ".csv":
		return e.extractPlainText(path)
	case ".xml":
		return e.extractXML(path)
	default:
		return ok("")
	}
}

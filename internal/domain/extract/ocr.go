package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mfbarros/layout-identifier/pkg/metrics"
)

// ocrPages renders the first pages of the PDF to images and OCRs each one.
// Scanned reports carry their text as page-sized raster images, so this is
// what recovers their content. Every failure here is absorbed: OCR output is
// additive and never aborts the document.
func (e *Extractor) ocrPages(ctx context.Context, path, password string, pages int) string {
	tmpDir, err := os.MkdirTemp("", "layoutid-ocr-*")
	if err != nil {
		e.logger.Warn("ocr temp dir creation failed", slog.Any("error", err))
		return ""
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("ocr temp dir cleanup failed", slog.String("dir", tmpDir), slog.Any("error", rmErr))
		}
	}()

	prefix := filepath.Join(tmpDir, "page")
	args := []string{
		"-r", fmt.Sprintf("%d", e.cfg.OCR.DPI),
		"-png",
		"-f", "1",
		"-l", fmt.Sprintf("%d", pages),
	}
	if password != "" {
		args = append(args, "-upw", password)
	}
	args = append(args, path, prefix)

	if _, errb, err := e.runner.Run(ctx, e.cfg.OCR.PdftoppmBin, args...); err != nil {
		e.logger.Warn("pdftoppm failed, skipping OCR",
			slog.String("path", path),
			slog.String("stderr", truncate(string(errb), 1<<10)),
			slog.Any("error", err),
		)
		return ""
	}

	images, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(images)

	var b strings.Builder
	for _, img := range images {
		text, err := e.ocrImage(ctx, img)
		if err != nil {
			// Logged and skipped: one slow or broken image must not stall the
			// rest of the document.
			if ctxErr := ctx.Err(); ctxErr != nil {
				return b.String()
			}
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return b.String()
}

// ocrImage runs tesseract on one page image under its own deadline.
func (e *Extractor) ocrImage(ctx context.Context, imgPath string) (string, error) {
	imgCtx, cancel := context.WithTimeout(ctx, e.cfg.OCR.ImageTimeout)
	defer cancel()

	out, errb, err := e.runner.Run(imgCtx, e.cfg.OCR.TesseractBin, imgPath, "stdout", "-l", e.cfg.OCR.Language)
	if err != nil {
		if imgCtx.Err() == context.DeadlineExceeded {
			metrics.OCRTimeouts.Inc()
			e.logger.Warn("ocr image timed out",
				slog.String("image", filepath.Base(imgPath)),
				slog.Duration("timeout", e.cfg.OCR.ImageTimeout),
			)
		} else {
			e.logger.Warn("tesseract failed",
				slog.String("image", filepath.Base(imgPath)),
				slog.String("stderr", truncate(string(errb), 1<<10)),
				slog.Any("error", err),
			)
		}
		return "", err
	}
	return string(out), nil
}

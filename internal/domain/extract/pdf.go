package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ledongthuc/pdf"
)

// commonPasswords are tried, in order, against encrypted PDFs when the caller
// did not supply one. The empty password is always attempted first by the PDF
// library itself, so it is not listed here.
var commonPasswords = []string{"123456", "0000"}

// openPDF opens the document, negotiating encryption. It reports the password
// that unlocked the document so the OCR toolchain can reuse it.
func openPDF(path string, manual *string) (f *os.File, r *pdf.Reader, usedPassword string, res *Result) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, "", &Result{Status: StatusFailed, Err: fmt.Errorf("opening PDF %s: %w", path, err)}
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, "", &Result{Status: StatusFailed, Err: fmt.Errorf("stat PDF %s: %w", path, err)}
	}

	var used string
	var pw func() string
	if manual != nil {
		// The library always tries the empty user password before asking pw,
		// so a document whose user password is empty opens even when the
		// manual password is wrong. Only documents with a real user password
		// can be reported incorrect.
		tried := false
		pw = func() string {
			if tried {
				return ""
			}
			tried = true
			used = *manual
			return *manual
		}
	} else {
		next := 0
		pw = func() string {
			if next >= len(commonPasswords) {
				return ""
			}
			p := commonPasswords[next]
			next++
			used = p
			return p
		}
	}

	r, err = pdf.NewReaderEncrypted(f, st.Size(), pw)
	if err != nil {
		f.Close()
		if errors.Is(err, pdf.ErrInvalidPassword) {
			if manual != nil {
				return nil, nil, "", &Result{Status: StatusPasswordIncorrect}
			}
			return nil, nil, "", &Result{Status: StatusPasswordRequired}
		}
		return nil, nil, "", &Result{Status: StatusFailed, Err: fmt.Errorf("reading PDF %s: %w", path, err)}
	}
	return f, r, used, nil
}

func (e *Extractor) extractPDF(ctx context.Context, path string, opts Options) Result {
	f, reader, usedPassword, errRes := openPDF(path, opts.Password)
	if errRes != nil {
		return *errRes
	}
	defer f.Close()

	maxPages := e.cfg.MaxPages
	if opts.MaxPages > 0 {
		maxPages = opts.MaxPages
	}
	pages := reader.NumPage()
	if pages > maxPages {
		pages = maxPages
	}

	var b strings.Builder
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// One bad page does not abort the document.
			e.logger.Warn("pdf page text extraction failed",
				slog.String("path", path),
				slog.Int("page", i),
				slog.Any("error", err),
			)
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	if e.cfg.OCR.Enabled {
		ocrText := e.ocrPages(ctx, path, usedPassword, pages)
		if ocrText != "" {
			b.WriteString("\n")
			b.WriteString(ocrText)
		}
	}

	return ok(b.String())
}

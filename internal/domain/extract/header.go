package extract

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// headerRegion is the fraction of the page height, measured from the top,
// whose text counts as header content.
const headerRegion = 0.15

var nonAlphabetic = regexp.MustCompile(`[^\p{L}\s]+`)

// ExtractHeader returns normalized text from the top region of the first
// pages of a PDF. It is best-effort metadata enrichment: any failure, a
// locked document, or a non-PDF input yields an empty string.
func (e *Extractor) ExtractHeader(path string, password *string) string {
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return ""
	}

	f, reader, _, errRes := openPDF(path, password)
	if errRes != nil {
		return ""
	}
	defer f.Close()

	pages := reader.NumPage()
	if pages > e.cfg.MaxPages {
		pages = e.cfg.MaxPages
	}

	var spans []string
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		if len(content.Text) == 0 {
			continue
		}

		// PDF Y grows upward; the header is everything above the cutoff.
		top := pageTop(page, content)
		cutoff := top * (1 - headerRegion)
		for _, t := range content.Text {
			if t.Y >= cutoff && strings.TrimSpace(t.S) != "" {
				spans = append(spans, t.S)
			}
		}
	}

	return normalizeHeader(strings.Join(spans, " "))
}

// pageTop resolves the page's top Y coordinate from its MediaBox, falling
// back to the highest text span when the box is missing or inherited.
func pageTop(page pdf.Page, content pdf.Content) float64 {
	box := page.V.Key("MediaBox")
	if !box.IsNull() && box.Len() == 4 {
		if top := box.Index(3).Float64(); top > 0 {
			return top
		}
	}
	top := 0.0
	for _, t := range content.Text {
		if t.Y > top {
			top = t.Y
		}
	}
	return top
}

// normalizeHeader lowercases, strips non-alphabetic characters and
// single-letter tokens, and collapses whitespace.
func normalizeHeader(s string) string {
	s = nonAlphabetic.ReplaceAllString(strings.ToLower(s), " ")
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, w := range fields {
		if utf8.RuneCountInString(w) >= 2 {
			kept = append(kept, w)
		}
	}
	return strings.Join(kept, " ")
}

package extract

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet flattens every sheet to a whitespace-delimited table.
// Cells keep their rendered string form; no type coercion.
func (e *Extractor) extractSpreadsheet(path string) Result {
	f, err := excelize.OpenFile(path)
	if err != nil {
		// Legacy .xls workbooks land here too: excelize reads OOXML only.
		return failed(fmt.Errorf("opening spreadsheet %s: %w", path, err))
	}
	defer f.Close()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return failed(fmt.Errorf("reading sheet %s of %s: %w", sheet, path, err))
		}
		for _, row := range rows {
			line := strings.TrimSpace(strings.Join(row, " "))
			if line == "" {
				continue
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return ok(b.String())
}

// extractPlainText reads the file as text with lenient decoding: invalid byte
// sequences are dropped rather than failing the document.
func (e *Extractor) extractPlainText(path string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return failed(fmt.Errorf("reading %s: %w", path, err))
	}
	return ok(strings.ToValidUTF8(string(data), ""))
}

// extractXML walks all nodes and concatenates non-empty text content,
// space-separated.
func (e *Extractor) extractXML(path string) Result {
	f, err := os.Open(path)
	if err != nil {
		return failed(fmt.Errorf("opening %s: %w", path, err))
	}
	defer f.Close()

	dec := xml.NewDecoder(f)
	var parts []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return failed(fmt.Errorf("parsing XML %s: %w", path, err))
		}
		if cd, isText := tok.(xml.CharData); isText {
			if text := strings.TrimSpace(string(cd)); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return ok(strings.Join(parts, " "))
}

// Package catalog maintains the set of known report layouts: loading them
// from the metadata store, ingesting the external mapping sheet, deriving
// system and report-type fields, and serving lookups and search.
package catalog

import (
	"strings"
)

// Format is the normalized file-format bucket of a layout. Spreadsheet
// variants collapse into one bucket and text/csv variants into another, so a
// .csv document can match a layout trained from .txt samples.
type Format string

const (
	FormatPDF     Format = "pdf"
	FormatExcel   Format = "excel"
	FormatText    Format = "txt"
	FormatXML     Format = "xml"
	FormatUnknown Format = ""
)

// NormalizeFormat maps a free-text format or a file extension (with or
// without the leading dot) to its canonical bucket.
func NormalizeFormat(s string) Format {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "pdf":
		return FormatPDF
	case "excel", "xls", "xlsx":
		return FormatExcel
	case "txt", "csv", "text":
		return FormatText
	case "xml":
		return FormatXML
	default:
		return FormatUnknown
	}
}

// ReportType is the coarse classification of a layout.
type ReportType string

const (
	ReportTypeBanking   ReportType = "banking"
	ReportTypeFinancial ReportType = "financial"
	ReportTypeAll       ReportType = "all"
)

// NormalizeReportType accepts both the API values and the Portuguese labels
// the original front ends send.
func NormalizeReportType(s string) ReportType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "banking", "bancário", "bancario":
		return ReportTypeBanking
	case "financial", "financeiro":
		return ReportTypeFinancial
	default:
		return ReportTypeAll
	}
}

// bankingMarker flags bank-statement layouts: every statement layout's
// description carries it, financial reports never do.
const bankingMarker = "extrato"

// ClassifyReportType derives the report type from a layout description.
func ClassifyReportType(description string) ReportType {
	if strings.Contains(strings.ToLower(description), bankingMarker) {
		return ReportTypeBanking
	}
	return ReportTypeFinancial
}

// systemRenames canonicalizes bank abbreviations that appear as the system
// token in layout descriptions.
var systemRenames = map[string]string{
	"bb":        "Banco do Brasil",
	"cef":       "Caixa Econômica Federal",
	"caixa":     "Caixa Econômica Federal",
	"itau":      "Itaú",
	"brad":      "Bradesco",
	"sant":      "Santander",
	"stone":     "Stone",
	"nubank":    "Nubank",
	"dominio":   "Domínio",
	"questor":   "Questor",
	"prosoft":   "Prosoft",
	"alterdata": "Alterdata",
}

// DeriveSystem extracts the target-system token from a layout description:
// the part before the first " - " delimiter, or the first whitespace token
// when the delimiter is absent, with known abbreviations renamed.
func DeriveSystem(description string) string {
	desc := strings.TrimSpace(description)
	if desc == "" {
		return ""
	}

	var token string
	if before, _, found := strings.Cut(desc, " - "); found {
		token = strings.TrimSpace(before)
	} else {
		token = strings.Fields(desc)[0]
	}

	if full, known := systemRenames[strings.ToLower(token)]; known {
		return full
	}
	return token
}

// Layout is one catalog entry. Code is the stable unique key across retrains.
type Layout struct {
	Code         string     `json:"code"`
	Description  string     `json:"description"`
	FileFormat   Format     `json:"file_format"`
	TargetSystem string     `json:"target_system,omitempty"`
	ReportType   ReportType `json:"report_type,omitempty"`
	Keywords     []string   `json:"keywords,omitempty"`
	HeaderText   string     `json:"header_text,omitempty"`
	PreviewURL   string     `json:"preview_url,omitempty"`
}

package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

// mappingRow is one record of the external layout mapping. Header names are
// case-sensitive by contract.
type mappingRow struct {
	Code        string `csv:"code"`
	Description string `csv:"description"`
	Format      string `csv:"format"`
}

// LoadMapping parses the external tabular mapping (xlsx or csv) and returns
// catalog layouts with derived system and report-type fields filled in.
// Rows without a code or with an unknown format are skipped.
func LoadMapping(path string) ([]Layout, error) {
	var rows []mappingRow
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err = readMappingSheet(path)
	case ".csv":
		rows, err = readMappingCSV(path)
	default:
		return nil, fmt.Errorf("unsupported mapping file %s: want .xlsx or .csv", path)
	}
	if err != nil {
		return nil, err
	}

	layouts := make([]Layout, 0, len(rows))
	for _, row := range rows {
		code := strings.TrimSpace(row.Code)
		if code == "" {
			continue
		}
		format := NormalizeFormat(row.Format)
		if format == FormatUnknown {
			continue
		}
		description := strings.TrimSpace(row.Description)
		layouts = append(layouts, Layout{
			Code:         code,
			Description:  description,
			FileFormat:   format,
			TargetSystem: DeriveSystem(description),
			ReportType:   ClassifyReportType(description),
		})
	}
	return layouts, nil
}

func readMappingCSV(path string) ([]mappingRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping %s: %w", path, err)
	}
	defer f.Close()

	var rows []mappingRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parsing mapping %s: %w", path, err)
	}
	return rows, nil
}

func readMappingSheet(path string) ([]mappingRow, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening mapping %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("mapping %s has no sheets", path)
	}
	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading mapping %s: %w", path, err)
	}
	if len(cells) == 0 {
		return nil, nil
	}

	// Locate the contract columns from the header row; names are
	// case-sensitive on purpose.
	cols := map[string]int{}
	for i, name := range cells[0] {
		cols[strings.TrimSpace(name)] = i
	}
	for _, want := range []string{"code", "description", "format"} {
		if _, found := cols[want]; !found {
			return nil, fmt.Errorf("mapping %s: missing column %q", path, want)
		}
	}

	cell := func(row []string, col int) string {
		if col < len(row) {
			return row[col]
		}
		return ""
	}

	rows := make([]mappingRow, 0, len(cells)-1)
	for _, row := range cells[1:] {
		rows = append(rows, mappingRow{
			Code:        cell(row, cols["code"]),
			Description: cell(row, cols["description"]),
			Format:      cell(row, cols["format"]),
		})
	}
	return rows, nil
}

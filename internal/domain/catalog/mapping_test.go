package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestLoadMapping_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapeamento.csv")
	csv := "code,description,format\n" +
		"100,BB - Extrato Conta Corrente,pdf\n" +
		"200,Dominio - Razão Contábil,xlsx\n" +
		",Sem código,pdf\n" +
		"300,Formato desconhecido,docx\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	layouts, err := LoadMapping(path)
	require.NoError(t, err)
	require.Len(t, layouts, 2)

	assert.Equal(t, "100", layouts[0].Code)
	assert.Equal(t, FormatPDF, layouts[0].FileFormat)
	assert.Equal(t, "Banco do Brasil", layouts[0].TargetSystem)
	assert.Equal(t, ReportTypeBanking, layouts[0].ReportType)

	assert.Equal(t, FormatExcel, layouts[1].FileFormat)
	assert.Equal(t, "Domínio", layouts[1].TargetSystem)
	assert.Equal(t, ReportTypeFinancial, layouts[1].ReportType)
}

func TestLoadMapping_XLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapeamento.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for i, row := range [][]any{
		{"code", "description", "format"},
		{"1553", "Itaú - Extrato Conta Corrente", "pdf"},
		{"2001", "Questor - Balancete", "txt"},
	} {
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))

	layouts, err := LoadMapping(path)
	require.NoError(t, err)
	require.Len(t, layouts, 2)
	assert.Equal(t, "1553", layouts[0].Code)
	assert.Equal(t, "Itaú", layouts[0].TargetSystem)
	assert.Equal(t, FormatText, layouts[1].FileFormat)
}

func TestLoadMapping_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapeamento.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetCellValue(sheet, "A1", "code"))
	require.NoError(t, f.SetCellValue(sheet, "B1", "descricao"))
	require.NoError(t, f.SaveAs(path))

	_, err := LoadMapping(path)
	assert.ErrorContains(t, err, "missing column")
}

func TestLoadMapping_UnsupportedExtension(t *testing.T) {
	_, err := LoadMapping("mapeamento.ods")
	assert.Error(t, err)
}
